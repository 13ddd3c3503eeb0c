package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/osmno/geocode2osm/internal/postnummer"
	"github.com/osmno/geocode2osm/internal/resilience"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// noRetry fails fast on the first error.
func noRetry() ClientOption {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 1})
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newURL := t.testServer + suffix
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// fakeProvider answers queries from an in-memory function and records them.
type fakeProvider struct {
	name   string
	down   bool
	err    error
	answer func(q Query) []Candidate

	mu      sync.Mutex
	queries []Query
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return !f.down }

func (f *fakeProvider) Lookup(_ context.Context, q Query) ([]Candidate, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.answer == nil {
		return nil, nil
	}
	return f.answer(q), nil
}

func (f *fakeProvider) calls() []Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Query(nil), f.queries...)
}

// cadastralEntry is one address in the fake cadastral register.
type cadastralEntry struct {
	street, number, letter, postcode, city, municipality string
	lat, lon                                             float64
}

func fakeMatrikkel(entries ...cadastralEntry) *fakeProvider {
	return &fakeProvider{name: "Matrikkel", answer: func(q Query) []Candidate {
		var out []Candidate
		for _, e := range entries {
			switch {
			case !strings.EqualFold(e.street, q.Street),
				q.HouseNumber != "" && q.HouseNumber != e.number,
				q.Letter != "" && q.Letter != e.letter,
				q.Municipality != "" && q.Municipality != e.municipality,
				q.Municipality == "" && q.Postcode != "" && q.Postcode != e.postcode,
				q.Municipality == "" && q.City != "" && !strings.EqualFold(q.City, e.city):
				continue
			}
			out = append(out, Candidate{
				Latitude: e.lat, Longitude: e.lon,
				Name: e.street, HouseNumber: e.number, Letter: e.letter,
				Kind: "Vegadresse", Source: "Matrikkel", Confidence: 1,
			})
		}
		return out
	}}
}

// placeEntry is one name in the fake place name register.
type placeEntry struct {
	name, municipality, kind string
	lat, lon                 float64
}

func fakeStedsnavn(entries ...placeEntry) *fakeProvider {
	return &fakeProvider{name: "Stedsnavn", answer: func(q Query) []Candidate {
		var out []Candidate
		for _, e := range entries {
			if strings.EqualFold(e.name, q.Text) && e.municipality == q.Municipality {
				out = append(out, Candidate{
					Latitude: e.lat, Longitude: e.lon, Name: e.name,
					Kind: e.kind, Source: "Stedsnavn", Confidence: 1,
				})
			}
		}
		return out
	}}
}

// fakeNominatim answers by "field=text".
func fakeNominatim(hits map[string]Candidate) *fakeProvider {
	return &fakeProvider{name: "Nominatim", answer: func(q Query) []Candidate {
		if c, ok := hits[q.Field+"="+q.Text]; ok {
			c.Source = "Nominatim"
			return []Candidate{c}
		}
		return nil
	}}
}

type fakeBounds map[string]Bounds

func (f fakeBounds) Bounds(_ context.Context, municipality string) Bounds {
	if b, ok := f[municipality]; ok {
		return b
	}
	return WorldBounds()
}

func testRegister() *postnummer.Register {
	return postnummer.New(
		postnummer.District{Code: "0585", City: "OSLO", MunicipalityRef: "0301", MunicipalityName: "OSLO", Category: "G"},
		postnummer.District{Code: "0586", City: "OSLO", MunicipalityRef: "0301", MunicipalityName: "OSLO", Category: "G"},
		postnummer.District{Code: "0560", City: "OSLO", MunicipalityRef: "0301", MunicipalityName: "OSLO", Category: "G"},
		postnummer.District{Code: "9990", City: "BÅTSFJORD", MunicipalityRef: "5632", MunicipalityName: "BÅTSFJORD", Category: "G"},
		postnummer.District{Code: "9845", City: "TANA", MunicipalityRef: "5636", MunicipalityName: "TANA", Category: "G"},
	)
}
