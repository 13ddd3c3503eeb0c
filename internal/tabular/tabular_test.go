package tabular

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmno/geocode2osm/internal/fetcher"
	"github.com/osmno/geocode2osm/internal/osmfile"
	"github.com/osmno/geocode2osm/pkg/geocode"
)

var hit = geocode.Result{
	Location: &geocode.Point{Lat: 59.92951234567, Lon: 10.796},
	Tier:     geocode.TierHouse,
	Method:   "Matrikkel/address -> Vegadresse",
}

func TestMapColumns(t *testing.T) {
	cols := MapColumns([]string{"Navn", "Gate", "Nummer", "Postnummer", "Poststed", "Kommunenr", "Nord", "Øst", "Geokod"})
	assert.Equal(t, Columns{
		RoleStreet:       1,
		RoleHouseNumber:  2,
		RolePostcode:     3,
		RoleCity:         4,
		RoleMunicipality: 5,
		RoleLatitude:     6,
		RoleLongitude:    7,
		RoleGeocode:      8,
	}, cols)

	first := MapColumns([]string{"Address", "Adresse"})
	assert.Equal(t, 0, first[RoleAddress])
}

func TestNewTable_AppendsOutputColumns(t *testing.T) {
	tbl, err := NewTable([]string{"Navn", "Adresse"}, [][]string{{"Skøyen skole"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"Navn", "Adresse", "GEOCODE", "GEOCODE METHOD", "GEOCODE RESULT", "LATITUDE", "LONGITUDE"}, tbl.Header)
	assert.Len(t, tbl.Rows[0], 7, "short rows are padded")
	assert.True(t, tbl.Pending(0), "every row is pending without a geocode column")
}

func TestNewTable_NoAddressColumns(t *testing.T) {
	_, err := NewTable([]string{"Navn", "Telefon"}, nil)
	assert.ErrorIs(t, err, ErrNoAddressColumns)
}

func TestTable_PendingAndRequest(t *testing.T) {
	tbl, err := NewTable(
		[]string{"gate", "hus", "postnummer", "poststed", "geocode"},
		[][]string{
			{"Lørenveien", "7", "0585", "Oslo", "yes"},
			{"Storgata", "1", "0155", "Oslo", "done"},
			{"Kirkeveien", "2", "0368", "Oslo", "No"},
			{"Tanaveien", "", "9845", "Tana", ""},
		},
	)
	require.NoError(t, err)

	assert.True(t, tbl.Pending(0))
	assert.False(t, tbl.Pending(1))
	assert.False(t, tbl.Pending(2))
	assert.True(t, tbl.Pending(3))

	req := tbl.Request(0)
	assert.Equal(t, geocode.Request{ID: "1", Street: "Lørenveien", HouseNumber: "7", Postcode: "0585", City: "Oslo"}, req)
	assert.Equal(t, "Lørenveien 7, 0585 Oslo", req.Text())
}

func TestTable_Apply(t *testing.T) {
	tbl, err := NewTable([]string{"adresse"}, [][]string{{"Lørenveien 7, 0585 Oslo"}, {"Ukjent"}})
	require.NoError(t, err)
	cols := tbl.Columns()

	tbl.Apply(0, hit)
	row := tbl.Rows[0]
	assert.Equal(t, "59.9295123", cols.Get(row, RoleLatitude))
	assert.Equal(t, "10.796", cols.Get(row, RoleLongitude))
	assert.Equal(t, "Matrikkel/address -> Vegadresse", cols.Get(row, RoleMethod))
	assert.Equal(t, "house", cols.Get(row, RoleResult))
	assert.Equal(t, "done", cols.Get(row, RoleGeocode))

	tbl.Rows[1][cols[RoleMethod]] = "stale"
	tbl.Apply(1, geocode.Result{Tier: geocode.TierUnresolved})
	row = tbl.Rows[1]
	assert.Equal(t, NoMatch, cols.Get(row, RoleResult))
	assert.Empty(t, cols.Get(row, RoleMethod))
	assert.Equal(t, Retry, cols.Get(row, RoleGeocode))
}

func TestTable_OSM(t *testing.T) {
	tbl, err := NewTable(
		[]string{"Skolens  navn", "Gate", "Nummer", "Postnummer", "Poststed"},
		[][]string{{"Skøyen skole", "Lørenveien", "7", "0585", "Oslo"}},
	)
	require.NoError(t, err)
	tbl.Apply(0, hit)

	f := tbl.OSM()
	require.Len(t, f.Elements, 1)
	n := f.Elements[0]

	id, _ := n.Attr("id")
	lat, _ := n.Attr("lat")
	assert.Equal(t, "-1001", id)
	assert.Equal(t, "59.9295123", lat)

	tags := map[string]string{}
	for _, c := range n.Children {
		k, _ := c.Attr("k")
		v, _ := c.Attr("v")
		tags[k] = v
	}
	assert.Equal(t, map[string]string{
		"Skolens_navn":   "Skøyen skole",
		"Gate":           "Lørenveien",
		"Nummer":         "7",
		"Postnummer":     "0585",
		"Poststed":       "Oslo",
		"GEOCODE":        "done",
		"GEOCODE_METHOD": "Matrikkel/address -> Vegadresse",
		"GEOCODE_RESULT": "house",
		"ADDRESS":        "Lørenveien 7, 0585 Oslo",
	}, tags)
}

func TestJob_CSV(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "skoler.csv")
	content := "Navn;Adresse;Geocode\n" +
		"Skøyen skole;Lørenveien 7, 0585 Oslo;yes\n" +
		"Gammel skole;Storgata 1, 0155 Oslo;done\n" +
		"Ukjent skole;Ukjentveien 1;yes\n"
	require.NoError(t, os.WriteFile(in, []byte(content), 0o644))

	j, err := NewJob(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "skoler_geocoded.csv"), j.Output)
	assert.Equal(t, filepath.Join(dir, "skoler_geocoded.osm"), j.OSMOutput)

	reqs, err := j.Requests(context.Background())
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, "1", reqs[0].ID)
	assert.Equal(t, "3", reqs[1].ID)

	j.Apply(0, hit)
	j.Apply(1, geocode.Result{})
	outs, err := j.Flush()
	require.NoError(t, err)
	assert.Equal(t, []string{j.Output, j.OSMOutput}, outs)

	data, err := os.ReadFile(j.Output)
	require.NoError(t, err)
	rows, err := fetcher.ReadCSV(context.Background(), bytes.NewReader(data), fetcher.CSVOptions{Delimiter: Delimiter})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Navn", "Adresse", "Geocode", "GEOCODE METHOD", "GEOCODE RESULT", "LATITUDE", "LONGITUDE"}, rows[0])
	assert.Equal(t, []string{"Skøyen skole", "Lørenveien 7, 0585 Oslo", "done", "Matrikkel/address -> Vegadresse", "house", "59.9295123", "10.796"}, rows[1])
	assert.Equal(t, []string{"Gammel skole", "Storgata 1, 0155 Oslo", "done", "", "", "", ""}, rows[2])
	assert.Equal(t, []string{"Ukjent skole", "Ukjentveien 1", "yes", "", "no match", "", ""}, rows[3])

	export, err := osmfile.Read(j.OSMOutput)
	require.NoError(t, err)
	assert.Len(t, export.Elements, 3)
}

func TestJob_XLSXWithoutOSM(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "liste.xlsx")
	require.NoError(t, fetcher.WriteXLSX(in, "Skoler", [][]string{
		{"Adresse"},
		{"Lørenveien 7, 0585 Oslo"},
	}))

	j, err := NewJob(context.Background(), in, WithOSMExport(false))
	require.NoError(t, err)
	assert.Empty(t, j.OSMOutput)

	j.Apply(0, hit)
	outs, err := j.Flush()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "liste_geocoded.xlsx")}, outs)

	rows, sheet, err := fetcher.ReadXLSX(outs[0], fetcher.XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Skoler", sheet)
	assert.Equal(t, "house", rows[1][3])
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("a.CSV")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = FormatOf("a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = FormatOf("a.ods")
	assert.Error(t, err)
}
