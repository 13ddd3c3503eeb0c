package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmno/geocode2osm/internal/config"
	"github.com/osmno/geocode2osm/internal/osmfile"
	"github.com/osmno/geocode2osm/internal/tabular"
)

const cadastralHit = `{"adresser": [{
	"adressetekst": "Lørenveien 7",
	"adressenavn": "Lørenveien",
	"nummer": 7,
	"postnummer": "0585",
	"poststed": "OSLO",
	"kommunenummer": "0301",
	"objtype": "Vegadresse",
	"representasjonspunkt": {"lat": 59.9295, "lon": 10.796}
}]}`

// backends answers Lørenveien 7 from the cadastral register and nothing else.
func backends(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/adresser/sok", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sok") == "Lørenveien" && r.URL.Query().Get("nummer") == "7" {
			_, _ = io.WriteString(w, cadastralHit)
			return
		}
		_, _ = io.WriteString(w, `{"adresser": []}`)
	})
	mux.HandleFunc("/stedsnavn/navn", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"navn": []}`)
	})
	mux.HandleFunc("/nominatim/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func useTestConfig(t *testing.T, base string) {
	t.Helper()
	register := filepath.Join(t.TempDir(), "postnummer.txt")
	require.NoError(t, os.WriteFile(register, []byte("0585\tOSLO\t0301\tOSLO\tG\n"), 0o644))

	prev := cfg
	t.Cleanup(func() { cfg = prev })
	cfg = &config.Config{
		HTTP:        config.HTTPConfig{UserAgent: "geocode2osm-test", Timeout: 5 * time.Second},
		Matrikkel:   config.BackendConfig{BaseURL: base + "/adresser", Enabled: true},
		Stedsnavn:   config.BackendConfig{BaseURL: base + "/stedsnavn", Enabled: true},
		Kommuneinfo: config.BackendConfig{BaseURL: base + "/kommuneinfo"},
		Nominatim: config.NominatimConfig{
			BaseURL: base + "/nominatim", Enabled: true,
			Interval: time.Millisecond, HourlyLimit: 500, Window: time.Hour,
		},
		Postnummer: config.PostnummerConfig{File: register},
		Street:     config.StreetConfig{MaxVariants: 4},
		Retry:      config.RetryConfig{MaxAttempts: 1},
		Circuit:    config.CircuitConfig{FailureThreshold: 5, ResetTimeout: time.Minute},
		Batch:      config.BatchConfig{Concurrency: 1, OSMExport: true},
		Server:     config.ServerConfig{Port: 8080},
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	runCmd.SetContext(context.Background())
	runCmd.SetOut(&out)
	err := runCmd.RunE(runCmd, args)
	return out.String(), err
}

const schools = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="JOSM">
  <node id="-1" lat="0" lon="0">
    <tag k="ADDRESS" v="Skøyen skole, Lørenveien 7, 0585 Oslo"/>
    <tag k="GEOCODE" v="yes"/>
  </node>
  <node id="-2" lat="0" lon="0">
    <tag k="ADDRESS" v="Ukjentveien 3, 0585 Oslo"/>
    <tag k="GEOCODE" v="yes"/>
  </node>
</osm>
`

func TestRun_OSMFile(t *testing.T) {
	srv := backends(t)
	useTestConfig(t, srv.URL)
	runLog = true
	t.Cleanup(func() { runLog = false })

	in := filepath.Join(t.TempDir(), "skoler.osm")
	require.NoError(t, os.WriteFile(in, []byte(schools), 0o644))

	out, err := execute(t, in)
	require.NoError(t, err)
	assert.Contains(t, out, "1 Skøyen skole, Lørenveien 7, 0585 Oslo --> Matrikkel/address -> Vegadresse (house)")
	assert.Contains(t, out, "2 Ukjentveien 3, 0585 Oslo --> *** NO MATCH")
	assert.Contains(t, out, "Geocoded 1 of 2 addresses")

	f, err := osmfile.Read(osmfile.OutputPath(in))
	require.NoError(t, err)
	lat, _ := f.Elements[0].Attr("lat")
	assert.Equal(t, "59.9295", lat)
	v, _ := f.Elements[0].Tag(osmfile.KeyResult)
	assert.Equal(t, "house", v)
	v, _ = f.Elements[1].Tag(osmfile.KeyResult)
	assert.Equal(t, osmfile.NotFound, v)

	log, err := os.ReadFile(filepath.Join(filepath.Dir(in), "skoler_geocodelog.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "ADDRESS 1: Skøyen skole, Lørenveien 7, 0585 Oslo")
}

func TestRun_CSVFileWithoutOSM(t *testing.T) {
	srv := backends(t)
	useTestConfig(t, srv.URL)
	runNoOSM = true
	t.Cleanup(func() { runNoOSM = false })

	in := filepath.Join(t.TempDir(), "liste.csv")
	require.NoError(t, os.WriteFile(in, []byte("Gate;Nummer;Postnummer;Poststed\nLørenveien;7;0585;Oslo\n"), 0o644))

	_, err := execute(t, in)
	require.NoError(t, err)

	tbl, err := tabular.Read(context.Background(), tabular.OutputPath(in))
	require.NoError(t, err)
	cols := tbl.Columns()
	assert.Equal(t, "house", cols.Get(tbl.Rows[0], tabular.RoleResult))
	assert.Equal(t, "done", cols.Get(tbl.Rows[0], tabular.RoleGeocode))

	_, err = os.Stat(tabular.OSMOutputPath(in))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_UnsupportedFile(t *testing.T) {
	useTestConfig(t, "http://127.0.0.1:1")
	_, err := execute(t, filepath.Join(t.TempDir(), "adresser.ods"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an .osm, .csv or .xlsx file")
}

func TestVariantsCommand(t *testing.T) {
	useTestConfig(t, "http://127.0.0.1:1")
	cfg.Street.MaxVariants = 48

	var out bytes.Buffer
	variantsCmd.SetOut(&out)
	require.NoError(t, variantsCmd.RunE(variantsCmd, []string{"Lørenvegen"}))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	assert.Equal(t, "Lørenvegen", string(lines[0]))
	assert.Contains(t, out.String(), "lørenveien\n")
}
