// Package geocode resolves free-text Norwegian addresses to coordinates.
//
// A Resolver runs an address through a fixed chain of stages, from the most to
// the least specific: house number in the cadastral address register, street
// in the same register (trying spelling variants), named place in the place
// name register, and finally the postal district through Nominatim. The first
// stage that produces an acceptable candidate decides the Tier of the result.
package geocode

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/osmno/geocode2osm/internal/address"
)

// Tier is the confidence class of a resolved address. Higher is better.
type Tier int

// Tiers, from least to most confident.
const (
	TierUnresolved Tier = iota
	TierDistrict
	TierPlace
	TierStreet
	TierHouse
)

var tierNames = [...]string{"unresolved", "district", "place", "street", "house"}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range tierNames {
		if n == name {
			*t = Tier(i)
			return nil
		}
	}
	return eris.Errorf("geocode: unknown tier %q", text)
}

// Tiers lists every tier from most to least confident.
func Tiers() []Tier {
	return []Tier{TierHouse, TierStreet, TierPlace, TierDistrict, TierUnresolved}
}

// Point is a WGS84 position.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Candidate is a single backend hit.
type Candidate struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lon"`
	Name        string  `json:"name"`
	HouseNumber string  `json:"house_number,omitempty"`
	Letter      string  `json:"letter,omitempty"`
	// Kind is the backend's own classification, e.g. "Vegadresse" or "Tettsted".
	Kind       string  `json:"kind,omitempty"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Point returns the candidate position.
func (c Candidate) Point() Point {
	return Point{Lat: c.Latitude, Lon: c.Longitude}
}

// Query is a structured backend query. Each provider reads the fields it
// understands and ignores the rest.
type Query struct {
	// Method labels the query in Result.Method, e.g. "address+postcode".
	Method string

	Street      string
	HouseNumber string
	Letter      string
	Postcode    string
	City        string
	// Municipality is the four digit municipality number. Matrikkel uses it
	// instead of Postcode and City when set.
	Municipality string

	// Field and Text form free-text queries: Field is "q", "postalcode" or
	// "city" for Nominatim; Stedsnavn only reads Text.
	Field string
	Text  string

	// Bounds restricts Nominatim hits. Nil means no restriction.
	Bounds *Bounds
}

func (q Query) key() string {
	return strings.Join([]string{
		q.Street, q.HouseNumber, q.Letter, q.Postcode, q.City, q.Municipality, q.Field, q.Text,
	}, "\x00")
}

// Request is one address to resolve. Address wins over the pre-split fields.
type Request struct {
	ID          string `json:"id,omitempty"`
	Address     string `json:"address,omitempty"`
	Street      string `json:"street,omitempty"`
	HouseNumber string `json:"house_number,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	City        string `json:"city,omitempty"`
}

// Text returns the one-line address to parse.
func (r Request) Text() string {
	if s := strings.TrimSpace(r.Address); s != "" {
		return s
	}
	return address.Join(r.Street, r.HouseNumber, r.Postcode, r.City)
}

// Result is the outcome of resolving one address.
type Result struct {
	ID       string          `json:"id,omitempty"`
	Address  string          `json:"address"`
	Parsed   *address.Parsed `json:"parsed,omitempty"`
	Location *Point          `json:"location,omitempty"`
	Tier     Tier            `json:"tier"`
	// Method names the backend, query and hit kind, e.g.
	// "Matrikkel/address -> Vegadresse".
	Method  string   `json:"method,omitempty"`
	Matched string   `json:"matched,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}

// Resolved reports whether the result carries a location.
func (r Result) Resolved() bool {
	return r.Location != nil && r.Tier != TierUnresolved
}

// ErrorKind classifies backend failures.
type ErrorKind string

// Backend failure kinds.
const (
	KindUnavailable ErrorKind = "unavailable"
	KindBadResponse ErrorKind = "bad response"
)

// BackendError reports a failed backend call. The resolver treats it as an
// empty candidate set.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", strings.ToLower(e.Backend), e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
