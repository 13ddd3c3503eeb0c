package tabular

import "strings"

// Role is what a column is used for.
type Role string

// Column roles.
const (
	RoleAddress      Role = "address"
	RoleStreet       Role = "street"
	RoleHouseNumber  Role = "house_number"
	RolePostcode     Role = "postcode"
	RoleCity         Role = "city"
	RoleMunicipality Role = "municipality"
	RoleLatitude     Role = "latitude"
	RoleLongitude    Role = "longitude"
	RoleGeocode      Role = "geocode"
	RoleMethod       Role = "geocode_method"
	RoleResult       Role = "geocode_result"
)

var roles = []Role{
	RoleAddress, RoleStreet, RoleHouseNumber, RolePostcode, RoleCity, RoleMunicipality,
	RoleLatitude, RoleLongitude, RoleGeocode, RoleMethod, RoleResult,
}

// outputRoles are appended to the header when the input lacks them.
var outputRoles = []Role{RoleGeocode, RoleMethod, RoleResult, RoleLatitude, RoleLongitude}

// synonyms lists the recognised header names per role, lower case.
var synonyms = map[Role][]string{
	RoleAddress:      {"address", "adresse"},
	RoleStreet:       {"street", "gate"},
	RoleHouseNumber:  {"house", "house number", "street number", "hus", "nummer", "gatenummer"},
	RolePostcode:     {"zip", "zipcode", "post code", "postcode", "postal code", "postnummer", "post nr"},
	RoleCity:         {"city", "poststed"},
	RoleMunicipality: {"municipality", "municipality no", "municipality number", "kommune", "kommunenr", "kommunenummer", "kommune nummer"},
	RoleLatitude:     {"latitude", "lat", "y", "nord", "north"},
	RoleLongitude:    {"longitude", "long", "lon", "x", "øst", "east"},
	RoleGeocode:      {"geocode", "geokod"},
	RoleMethod:       {"geocode method", "geokodemetode"},
	RoleResult:       {"geocode result", "geokoderesultat"},
}

// roleOf returns the role a header name is recognised as.
func roleOf(name string) (Role, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, r := range roles {
		for _, s := range synonyms[r] {
			if n == s {
				return r, true
			}
		}
	}
	return "", false
}

// DefaultHeader is the name given to an appended output column,
// e.g. "GEOCODE METHOD".
func (r Role) DefaultHeader() string {
	return strings.ToUpper(strings.ReplaceAll(string(r), "_", " "))
}

// Columns maps roles to column indexes.
type Columns map[Role]int

// MapColumns recognises the header. The first column matching a role wins.
func MapColumns(header []string) Columns {
	cols := Columns{}
	for i, h := range header {
		r, ok := roleOf(h)
		if !ok {
			continue
		}
		if _, taken := cols[r]; !taken {
			cols[r] = i
		}
	}
	return cols
}

// Has reports whether role is mapped.
func (c Columns) Has(r Role) bool {
	_, ok := c[r]
	return ok
}

// Get returns the trimmed value of role in row, or "" when unmapped.
func (c Columns) Get(row []string, r Role) string {
	i, ok := c[r]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Used returns the mapped header names in column order.
func (c Columns) Used(header []string) []string {
	var out []string
	for i, h := range header {
		for _, j := range c {
			if i == j {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
