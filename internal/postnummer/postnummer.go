// Package postnummer loads Posten's postal code register, which maps every
// Norwegian postcode to its postal name and municipality.
package postnummer

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/osmno/geocode2osm/internal/fetcher"
)

// DefaultURL is where Posten publishes the register.
const DefaultURL = "https://www.bring.no/postnummerregister-ansi.txt"

// Category codes used by the register.
const (
	CategoryStreet  = "G" // street addresses
	CategoryPOBox   = "P" // post boxes
	CategoryBoth    = "B" // street addresses and post boxes
	CategoryService = "S" // service codes
)

// District is one row of the register.
type District struct {
	Code             string `json:"code"`
	City             string `json:"city"`
	MunicipalityRef  string `json:"municipality_ref"`
	MunicipalityName string `json:"municipality_name"`
	Category         string `json:"category"`
	// Multiple is set on street-address districts whose postal name is shared
	// with other street-address districts, e.g. the many "OSLO" codes.
	Multiple bool `json:"multiple"`
}

// Register is an immutable postcode lookup table, safe for concurrent use.
type Register struct {
	districts map[string]District
}

// New builds a register from districts and computes Multiple.
func New(districts ...District) *Register {
	streetCities := make(map[string]int)
	for _, d := range districts {
		if d.Category == CategoryStreet {
			streetCities[strings.ToUpper(d.City)]++
		}
	}

	r := &Register{districts: make(map[string]District, len(districts))}
	for _, d := range districts {
		d.Multiple = d.Category == CategoryStreet && streetCities[strings.ToUpper(d.City)] > 1
		r.districts[d.Code] = d
	}
	return r
}

// Parse reads the tab-separated Windows-1252 register.
func Parse(ctx context.Context, src io.Reader) (*Register, error) {
	rows, err := fetcher.ReadCSV(ctx, src, fetcher.CSVOptions{
		Delimiter:  '\t',
		Encoding:   charmap.Windows1252,
		LazyQuotes: true,
		TrimSpace:  true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "postnummer: parse register")
	}

	districts := make([]District, 0, len(rows))
	for i, row := range rows {
		if len(row) < 5 || len(row[0]) != 4 {
			zap.L().Debug("postnummer: skipping row", zap.Int("line", i+1), zap.Strings("row", row))
			continue
		}
		districts = append(districts, District{
			Code:             row[0],
			City:             row[1],
			MunicipalityRef:  row[2],
			MunicipalityName: row[3],
			Category:         row[4],
		})
	}
	if len(districts) == 0 {
		return nil, eris.New("postnummer: register is empty")
	}
	return New(districts...), nil
}

// Load reads the register from a local file or downloads it from a URL.
func Load(ctx context.Context, f fetcher.Fetcher, src string) (*Register, error) {
	if src == "" {
		src = DefaultURL
	}
	rc, err := fetcher.Open(ctx, f, src)
	if err != nil {
		return nil, eris.Wrap(err, "postnummer: open register")
	}
	defer rc.Close() //nolint:errcheck

	reg, err := Parse(ctx, rc)
	if err != nil {
		return nil, err
	}
	zap.L().Info("postnummer: register loaded", zap.String("source", src), zap.Int("districts", reg.Len()))
	return reg, nil
}

// Lookup returns the district for a four digit postcode.
func (r *Register) Lookup(code string) (District, bool) {
	if r == nil {
		return District{}, false
	}
	d, ok := r.districts[strings.TrimSpace(code)]
	return d, ok
}

// Len returns the number of districts.
func (r *Register) Len() int {
	if r == nil {
		return 0
	}
	return len(r.districts)
}
