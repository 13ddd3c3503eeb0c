package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmno/geocode2osm/pkg/geocode"
)

type fakeGeocoder struct{}

func (fakeGeocoder) Resolve(_ context.Context, req geocode.Request) geocode.Result {
	text := req.Text()
	if strings.HasPrefix(text, "Lørenveien 7") {
		return geocode.Result{
			ID:       req.ID,
			Address:  text,
			Location: &geocode.Point{Lat: 59.9295, Lon: 10.796},
			Tier:     geocode.TierHouse,
			Method:   "Matrikkel/address -> Vegadresse",
		}
	}
	return geocode.Result{ID: req.ID, Address: text, Tier: geocode.TierUnresolved}
}

func (f fakeGeocoder) ResolveAll(ctx context.Context, reqs []geocode.Request, _ func(int, geocode.Result)) ([]geocode.Result, error) {
	out := make([]geocode.Result, len(reqs))
	for i, req := range reqs {
		out[i] = f.Resolve(ctx, req)
	}
	return out, ctx.Err()
}

func (fakeGeocoder) Stats() geocode.Stats {
	return geocode.Stats{Calls: map[string]int64{"matrikkel": 2}}
}

func serveRequest(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	buildRouter(fakeGeocoder{}, []string{"https://josm.example.org"}).ServeHTTP(rr, req)
	return rr
}

func TestBuildRouter_Health(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_GeocodeGet(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodGet, "/geocode?address=L%C3%B8renveien+7%2C+0585+Oslo", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var res geocode.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, geocode.TierHouse, res.Tier)
	assert.Equal(t, "Lørenveien 7, 0585 Oslo", res.Address)
	require.NotNil(t, res.Location)
	assert.Equal(t, 59.9295, res.Location.Lat)
}

func TestBuildRouter_GeocodeGetMissingAddress(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodGet, "/geocode", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "address is required")
}

func TestBuildRouter_GeocodePost(t *testing.T) {
	body, _ := json.Marshal([]geocode.Request{
		{ID: "a", Street: "Lørenveien", HouseNumber: "7", Postcode: "0585", City: "Oslo"},
		{ID: "b", Address: "Ukjent"},
	})
	req := httptest.NewRequest(http.MethodPost, "/geocode", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := serveRequest(t, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var results []geocode.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, geocode.TierHouse, results[0].Tier)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, geocode.TierUnresolved, results[1].Tier)
	assert.Nil(t, results[1].Location)
}

func TestBuildRouter_GeocodePostInvalidBody(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodPost, "/geocode", strings.NewReader(`{"address":`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestBuildRouter_GeocodePostTooMany(t *testing.T) {
	reqs := make([]geocode.Request, maxBatch+1)
	body, _ := json.Marshal(reqs)
	rr := serveRequest(t, httptest.NewRequest(http.MethodPost, "/geocode", bytes.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestBuildRouter_Stats(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"matrikkel":2`)
}

func TestBuildRouter_CORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/geocode", nil)
	req.Header.Set("Origin", "https://josm.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := serveRequest(t, req)

	assert.Equal(t, "https://josm.example.org", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example.org")
	rr = serveRequest(t, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestBuildRouter_UnknownRoute(t *testing.T) {
	rr := serveRequest(t, httptest.NewRequest(http.MethodGet, "/webhook/enrich", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
