// Package tabular geocodes addresses held in semicolon separated CSV files or
// XLSX workbooks. Columns are recognised by name in English or Norwegian;
// the result columns are appended when missing.
package tabular

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osmno/geocode2osm/internal/address"
	"github.com/osmno/geocode2osm/internal/fetcher"
	"github.com/osmno/geocode2osm/internal/osmfile"
	"github.com/osmno/geocode2osm/pkg/geocode"
)

// Delimiter separates CSV fields.
const Delimiter = ';'

// Result values written for rows that could not be placed.
const (
	NoMatch = "no match"
	Retry   = "yes"
)

// ErrNoAddressColumns is returned when the header has neither an address
// column nor any of street, postcode and city.
var ErrNoAddressColumns = eris.New("tabular: no address, street, postcode or city column")

// Format is the file type of a table.
type Format int

// Supported formats.
const (
	FormatCSV Format = iota
	FormatXLSX
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return 0, eris.Errorf("tabular: unsupported file type %q", filepath.Ext(path))
	}
}

// Table is a header row and data rows, all padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
	Sheet  string

	cols       Columns
	hadGeocode bool
}

// Read loads a CSV or XLSX table.
func Read(ctx context.Context, path string) (*Table, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	var sheet string
	switch format {
	case FormatXLSX:
		rows, sheet, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
		if err != nil {
			return nil, err
		}
	default:
		fh, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer fh.Close() //nolint:errcheck
		rows, err = fetcher.ReadCSV(ctx, fh, fetcher.CSVOptions{Delimiter: Delimiter, LazyQuotes: true})
		if err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("tabular: %s is empty", path)
	}

	t, err := NewTable(rows[0], rows[1:])
	if err != nil {
		return nil, err
	}
	t.Sheet = sheet
	return t, nil
}

// NewTable recognises the header and appends the result columns it lacks.
func NewTable(header []string, rows [][]string) (*Table, error) {
	t := &Table{Header: append([]string(nil), header...)}
	t.cols = MapColumns(t.Header)
	if !t.cols.Has(RoleAddress) && !t.cols.Has(RoleStreet) && !t.cols.Has(RolePostcode) && !t.cols.Has(RoleCity) {
		return nil, ErrNoAddressColumns
	}
	t.hadGeocode = t.cols.Has(RoleGeocode)

	zap.L().Info("tabular: columns recognised",
		zap.Strings("header", t.Header),
		zap.Strings("used", t.cols.Used(t.Header)),
	)

	for _, r := range outputRoles {
		if !t.cols.Has(r) {
			t.cols[r] = len(t.Header)
			t.Header = append(t.Header, r.DefaultHeader())
		}
	}

	t.Rows = make([][]string, len(rows))
	for i, row := range rows {
		padded := make([]string, len(t.Header))
		copy(padded, row)
		t.Rows[i] = padded
	}
	return t, nil
}

// Columns returns the recognised columns.
func (t *Table) Columns() Columns {
	return t.cols
}

// Pending reports whether row i should be geocoded. Without a geocode column
// in the input every row is.
func (t *Table) Pending(i int) bool {
	if !t.hadGeocode {
		return true
	}
	switch strings.ToLower(t.cols.Get(t.Rows[i], RoleGeocode)) {
	case "no", "done":
		return false
	}
	return true
}

// Request builds the geocoding request for row i.
func (t *Table) Request(i int) geocode.Request {
	row := t.Rows[i]
	return geocode.Request{
		ID:          strconv.Itoa(i + 1),
		Address:     t.cols.Get(row, RoleAddress),
		Street:      t.cols.Get(row, RoleStreet),
		HouseNumber: t.cols.Get(row, RoleHouseNumber),
		Postcode:    t.cols.Get(row, RolePostcode),
		City:        t.cols.Get(row, RoleCity),
	}
}

func (t *Table) set(i int, r Role, v string) {
	t.Rows[i][t.cols[r]] = v
}

// Apply writes a result into row i.
func (t *Table) Apply(i int, res geocode.Result) {
	if !res.Resolved() {
		t.set(i, RoleResult, NoMatch)
		t.set(i, RoleMethod, "")
		t.set(i, RoleGeocode, Retry)
		return
	}
	t.set(i, RoleLatitude, osmfile.FormatCoord(res.Location.Lat))
	t.set(i, RoleLongitude, osmfile.FormatCoord(res.Location.Lon))
	t.set(i, RoleMethod, res.Method)
	t.set(i, RoleResult, res.Tier.String())
	t.set(i, RoleGeocode, "done")
}

// Write saves the table in the given format.
func (t *Table) Write(path string, format Format) error {
	rows := append([][]string{t.Header}, t.Rows...)
	if format == FormatXLSX {
		return fetcher.WriteXLSX(path, t.Sheet, rows)
	}
	fh, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "tabular: create %s", path)
	}
	if err := fetcher.WriteCSV(fh, Delimiter, rows); err != nil {
		_ = fh.Close()
		return err
	}
	if err := fh.Close(); err != nil {
		return eris.Wrapf(err, "tabular: close %s", path)
	}
	return nil
}

// osmKeys maps result roles to the tag keys the OSM file collaborator reads.
var osmKeys = map[Role]string{
	RoleAddress: osmfile.KeyAddress,
	RoleGeocode: osmfile.KeyGeocode,
	RoleMethod:  osmfile.KeyMethod,
	RoleResult:  osmfile.KeyResult,
}

// OSM exports every row as a new node. Coordinates come from the latitude
// and longitude columns, "0.0" when empty; every other non-empty cell
// becomes a tag. Rows without an address get one assembled from the street
// columns.
func (t *Table) OSM() *osmfile.File {
	keys := make([]string, len(t.Header))
	for i, h := range t.Header {
		keys[i] = strings.ReplaceAll(strings.Join(strings.Fields(h), " "), " ", "_")
	}
	for r, k := range osmKeys {
		if i, ok := t.cols[r]; ok {
			keys[i] = k
		}
	}

	f := osmfile.New()
	id := int64(-1000)
	for _, row := range t.Rows {
		id--
		lat := t.cols.Get(row, RoleLatitude)
		if lat == "" {
			lat = "0.0"
		}
		lon := t.cols.Get(row, RoleLongitude)
		if lon == "" {
			lon = "0.0"
		}
		n := f.AddNode(id, lat, lon)

		for i, v := range row {
			if i == t.cols[RoleLatitude] || i == t.cols[RoleLongitude] {
				continue
			}
			if v = strings.TrimSpace(v); v != "" && keys[i] != "" {
				n.SetTag(keys[i], v)
			}
		}
		if _, ok := n.Tag(osmfile.KeyAddress); !ok {
			addr := address.Join(
				t.cols.Get(row, RoleStreet), t.cols.Get(row, RoleHouseNumber),
				t.cols.Get(row, RolePostcode), t.cols.Get(row, RoleCity),
			)
			if addr != "" {
				n.SetTag(osmfile.KeyAddress, addr)
			}
		}
	}
	return f
}
