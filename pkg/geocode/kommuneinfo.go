package geocode

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// DefaultKommuneinfoURL is the root of Kartverket's municipality API.
const DefaultKommuneinfoURL = "https://ws.geonorge.no/kommuneinfo/v1"

// svalbard has no bounding box in the municipality API.
const svalbard = "2100"

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// WorldBounds covers every position.
func WorldBounds() Bounds {
	return Bounds{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}
}

// IsWorld reports whether b is the unrestricted box.
func (b Bounds) IsWorld() bool {
	return b == WorldBounds()
}

// Contains reports whether the point lies strictly inside b.
func (b Bounds) Contains(lat, lon float64) bool {
	return b.MinLat < lat && lat < b.MaxLat && b.MinLon < lon && lon < b.MaxLon
}

// Center returns the middle of b.
func (b Bounds) Center() Point {
	return Point{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// BoundsSource supplies the bounding box of a municipality.
type BoundsSource interface {
	Bounds(ctx context.Context, municipality string) Bounds
}

// Kommuneinfo looks up municipality bounding boxes and remembers them for
// the lifetime of the value. It is safe for concurrent use.
type Kommuneinfo struct {
	client

	mu   sync.Mutex
	memo map[string]Bounds
}

// NewKommuneinfo creates a municipality bounds source.
func NewKommuneinfo(opts ...ClientOption) *Kommuneinfo {
	return &Kommuneinfo{
		client: newClient("Kommuneinfo", DefaultKommuneinfoURL, opts),
		memo:   make(map[string]Bounds),
	}
}

type kommuneResponse struct {
	Kommunenavn      string          `json:"kommunenavn"`
	Avgrensningsboks json.RawMessage `json:"avgrensningsboks"`
}

// Bounds returns the bounding box of municipality. Svalbard, unknown
// municipalities and failed lookups give WorldBounds.
func (k *Kommuneinfo) Bounds(ctx context.Context, municipality string) Bounds {
	if municipality == "" || municipality == svalbard {
		return WorldBounds()
	}

	k.mu.Lock()
	b, ok := k.memo[municipality]
	k.mu.Unlock()
	if ok {
		return b
	}

	b, err := k.fetchBounds(ctx, municipality)
	if err != nil {
		zap.L().Warn("kommuneinfo: no bounding box, searching without limits",
			zap.String("municipality", municipality),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return b
		}
	} else {
		zap.L().Debug("kommuneinfo: bounding box",
			zap.String("municipality", municipality),
			zap.Float64("min_lat", b.MinLat), zap.Float64("min_lon", b.MinLon),
			zap.Float64("max_lat", b.MaxLat), zap.Float64("max_lon", b.MaxLon),
		)
	}

	k.mu.Lock()
	k.memo[municipality] = b
	k.mu.Unlock()
	return b
}

func (k *Kommuneinfo) fetchBounds(ctx context.Context, municipality string) (Bounds, error) {
	var resp kommuneResponse
	if err := k.getJSON(ctx, "/kommuner/"+municipality, nil, &resp); err != nil {
		return WorldBounds(), err
	}
	return parseBounds(resp.Avgrensningsboks)
}

// parseBounds turns a GeoJSON geometry into its bounding box.
func parseBounds(raw json.RawMessage) (Bounds, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return WorldBounds(), eris.New("kommuneinfo: missing bounding box")
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return WorldBounds(), eris.Wrap(err, "kommuneinfo: parse bounding box")
	}
	if g == nil {
		return WorldBounds(), eris.New("kommuneinfo: missing bounding box")
	}
	gb := g.Bounds()
	if gb.Min(0) > gb.Max(0) {
		return WorldBounds(), eris.New("kommuneinfo: empty bounding box")
	}
	return Bounds{
		MinLat: gb.Min(1),
		MinLon: gb.Min(0),
		MaxLat: gb.Max(1),
		MaxLon: gb.Max(0),
	}, nil
}
