// Package address splits free-text Norwegian postal addresses into their parts.
package address

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformedAddress is returned when no street, place, postcode or city can be found.
var ErrMalformedAddress = eris.New("address: malformed address")

// Parsed holds the components of an address such as
// "Skøyen skole, Lørenveien 7, 0585 Oslo". Any field may be empty.
type Parsed struct {
	Name        string `json:"name,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Letter      string `json:"letter,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	City        string `json:"city,omitempty"`
}

// HasHouse reports whether the address carries both a street and a house number.
func (p *Parsed) HasHouse() bool {
	return p.Street != "" && p.HouseNumber != ""
}

// String reassembles the address in canonical form.
func (p *Parsed) String() string {
	line := Join(p.Street, p.HouseNumber+p.Letter, p.Postcode, p.City)
	if p.Name == "" {
		return line
	}
	if line == "" {
		return p.Name
	}
	return p.Name + ", " + line
}

var (
	spaceRe    = regexp.MustCompile(`\s+`)
	postcodeRe = regexp.MustCompile(`^(\d{4})(?:\s+(.*))?$`)
	// "Storgata 12-14 B" and "Storgata 12/14" keep the last number.
	rangeRe  = regexp.MustCompile(`^(.*?)\s+\d+\s*[-/ ]\s*(\d+)\s*(\pL?)$`)
	numberRe = regexp.MustCompile(`^(.*?)\s*(\d+)\s*([\pL]?)$`)
)

// Parse splits raw into name, street, house number, letter, postcode and city.
// The last segment that starts with a four digit postcode supplies postcode and
// city; the segment before it is street plus house number; anything earlier is
// the optional name.
func Parse(raw string) (*Parsed, error) {
	segments := splitSegments(raw)
	if len(segments) == 0 {
		return nil, eris.Wrapf(ErrMalformedAddress, "empty input %q", raw)
	}

	p := &Parsed{}

	postIdx := -1
	for i := len(segments) - 1; i >= 0; i-- {
		if postcodeRe.MatchString(segments[i]) {
			postIdx = i
			break
		}
	}

	var streetIdx int
	switch {
	case postIdx >= 0:
		m := postcodeRe.FindStringSubmatch(segments[postIdx])
		p.Postcode = m[1]
		p.City = m[2]
		if p.City == "" && postIdx+1 < len(segments) {
			p.City = segments[postIdx+1]
		}
		streetIdx = postIdx - 1
	case len(segments) > 1:
		p.City = segments[len(segments)-1]
		streetIdx = len(segments) - 2
	default:
		streetIdx = 0
	}

	if streetIdx >= 0 {
		p.Street, p.HouseNumber, p.Letter = splitHouseNumber(segments[streetIdx])
		if streetIdx > 0 {
			p.Name = strings.Join(segments[:streetIdx], ", ")
		}
	}

	p.Street = FixNames(p.Street)
	p.Name = FixNames(p.Name)

	if p.Street == "" && p.Name == "" && p.Postcode == "" && p.City == "" {
		return nil, eris.Wrapf(ErrMalformedAddress, "no street or place in %q", raw)
	}
	return p, nil
}

// Join builds a one-line address from pre-split fields, e.g. tabular input.
func Join(street, houseNumber, postcode, city string) string {
	line := strings.TrimSpace(street)
	if n := strings.TrimSpace(houseNumber); n != "" {
		line = strings.TrimSpace(line + " " + n)
	}
	tail := strings.TrimSpace(strings.TrimSpace(postcode) + " " + strings.TrimSpace(city))
	switch {
	case line == "":
		return tail
	case tail == "":
		return line
	default:
		return line + ", " + tail
	}
}

func splitSegments(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = collapse(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitHouseNumber(segment string) (street, number, letter string) {
	if m := rangeRe.FindStringSubmatch(segment); m != nil && m[1] != "" {
		return collapse(m[1]), trimZeros(m[2]), strings.ToUpper(m[3])
	}
	if m := numberRe.FindStringSubmatch(segment); m != nil {
		return collapse(m[1]), trimZeros(m[2]), strings.ToUpper(m[3])
	}
	return segment, "", ""
}

// trimZeros turns "07" into "7", the form the cadastral register uses.
func trimZeros(number string) string {
	n, err := strconv.Atoi(number)
	if err != nil {
		return number
	}
	return strconv.Itoa(n)
}

func collapse(s string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}
