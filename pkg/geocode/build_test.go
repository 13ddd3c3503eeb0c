package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmno/geocode2osm/internal/config"
)

func backendServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/adresser/sok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, matrikkelBody)
	})
	mux.HandleFunc("/stedsnavn/navn", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"navn": []}`)
	})
	mux.HandleFunc("/nominatim/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	})
	mux.HandleFunc("/kommuneinfo/kommuner/0301", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, osloKommune)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, base string) *config.Config {
	t.Helper()
	register := filepath.Join(t.TempDir(), "postnummer.txt")
	require.NoError(t, os.WriteFile(register, []byte("0585\tOSLO\t0301\tOSLO\tG\n"), 0o644))

	return &config.Config{
		HTTP:        config.HTTPConfig{UserAgent: "geocode2osm-test", Timeout: 5 * time.Second},
		Matrikkel:   config.BackendConfig{BaseURL: base + "/adresser", Enabled: true},
		Stedsnavn:   config.BackendConfig{BaseURL: base + "/stedsnavn", Enabled: true},
		Kommuneinfo: config.BackendConfig{BaseURL: base + "/kommuneinfo", Enabled: true},
		Nominatim: config.NominatimConfig{
			BaseURL: base + "/nominatim", Enabled: true,
			Interval: time.Millisecond, HourlyLimit: 500, Window: time.Hour,
		},
		Postnummer: config.PostnummerConfig{File: register},
		Street:     config.StreetConfig{MaxVariants: 48, QueryVariants: 6},
		Retry:      config.RetryConfig{MaxAttempts: 1},
		Circuit:    config.CircuitConfig{FailureThreshold: 5, ResetTimeout: time.Minute},
		Batch:      config.BatchConfig{Concurrency: 2},
		Server:     config.ServerConfig{Port: 8080},
	}
}

func TestBuild_ResolvesThroughConfiguredBackends(t *testing.T) {
	srv := backendServer(t)
	r, err := Build(context.Background(), testConfig(t, srv.URL))
	require.NoError(t, err)

	res := r.Geocode(context.Background(), "Lørenveien 7, 0585 Oslo")
	assert.Equal(t, TierHouse, res.Tier)
	assert.Equal(t, "Matrikkel/address -> Vegadresse", res.Method)

	st := r.Stats()
	assert.Equal(t, int64(1), st.Calls["matrikkel"])
	assert.Zero(t, st.Calls["nominatim"])
	assert.Equal(t, "closed", st.Circuits["matrikkel"])
	require.NotNil(t, st.Quota)
	assert.Equal(t, 500, st.Quota.Limit)
	assert.Zero(t, st.Quota.Total)
}

func TestBuild_DisabledBackendIsNotWired(t *testing.T) {
	srv := backendServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Nominatim.Enabled = false

	r, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	st := r.Stats()
	assert.NotContains(t, st.Calls, "nominatim")
	assert.Nil(t, st.Quota)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Batch.Concurrency = 0

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency")
}

func TestBuild_MissingRegister(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Postnummer.File = filepath.Join(t.TempDir(), "missing.txt")

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "postal register"))
}

func TestBuild_MissingSynonymFile(t *testing.T) {
	srv := backendServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Street.SynonymsFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
