package geocode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/osmno/geocode2osm/internal/quota"
	"github.com/osmno/geocode2osm/internal/resilience"
)

// DefaultNominatimURL is the public OpenStreetMap Nominatim instance.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// DefaultNominatimInterval is the minimum spacing of calls the usage policy allows.
const DefaultNominatimInterval = time.Second

// Nominatim queries the OpenStreetMap general-purpose geocoder. Every HTTP
// request, retries included, takes a slot from the hourly quota and waits for
// the per-second limiter.
type Nominatim struct {
	client
	quota   *quota.Quota
	limiter *rate.Limiter
	email   string
}

// NominatimOption configures the Nominatim provider.
type NominatimOption func(*Nominatim)

// WithInterval sets the minimum spacing between calls.
func WithInterval(d time.Duration) NominatimOption {
	return func(n *Nominatim) {
		if d > 0 {
			n.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithLimiter replaces the call spacing limiter.
func WithLimiter(l *rate.Limiter) NominatimOption {
	return func(n *Nominatim) {
		n.limiter = l
	}
}

// WithEmail adds a contact address to every request, as the usage policy asks
// of bulk users.
func WithEmail(email string) NominatimOption {
	return func(n *Nominatim) {
		n.email = email
	}
}

// WithClientOptions applies HTTP options.
func WithClientOptions(opts ...ClientOption) NominatimOption {
	return func(n *Nominatim) {
		for _, opt := range opts {
			opt(&n.client)
		}
	}
}

// NewNominatim creates the general geocoder provider. A nil quota gets the
// default hourly ceiling.
func NewNominatim(q *quota.Quota, opts ...NominatimOption) *Nominatim {
	if q == nil {
		q = quota.New(quota.DefaultLimit, quota.DefaultWindow, quota.WithName("nominatim"))
	}
	n := &Nominatim{
		client:  newClient("Nominatim", DefaultNominatimURL, nil),
		quota:   q,
		limiter: rate.NewLimiter(rate.Every(DefaultNominatimInterval), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.retry.OnRetry == nil {
		n.retry.OnRetry = resilience.RetryLogger(n.name)
	}
	n.before = n.wait
	return n
}

func (n *Nominatim) wait(ctx context.Context) error {
	if err := n.quota.Acquire(ctx); err != nil {
		return err
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "nominatim: rate limit")
	}
	return nil
}

// QuotaStats reports hourly quota usage.
func (n *Nominatim) QuotaStats() quota.Stats {
	return n.quota.Stats()
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Name        string  `json:"name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// Lookup implements Provider. q.Field selects the search parameter ("q",
// "postalcode" or "city") and q.Text its value. Administrative boundaries
// and hits outside q.Bounds are dropped.
func (n *Nominatim) Lookup(ctx context.Context, q Query) ([]Candidate, error) {
	if q.Text == "" {
		return nil, nil
	}
	field := q.Field
	if field == "" {
		field = "q"
	}
	params := url.Values{
		field:          {q.Text},
		"countrycodes": {"no"},
		"format":       {"json"},
		"limit":        {"10"},
	}
	if q.Bounds != nil && !q.Bounds.IsWorld() {
		params.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f",
			q.Bounds.MinLon, q.Bounds.MinLat, q.Bounds.MaxLon, q.Bounds.MaxLat))
	}
	if n.email != "" {
		params.Set("email", n.email)
	}

	var places []nominatimPlace
	if err := n.getJSON(ctx, "/search", params, &places); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(places))
	for _, p := range places {
		if p.Class == "boundary" && p.Type == "administrative" {
			continue
		}
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lon, errLon := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		if q.Bounds != nil && !q.Bounds.Contains(lat, lon) {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.DisplayName
		}
		out = append(out, Candidate{
			Latitude:   lat,
			Longitude:  lon,
			Name:       name,
			Kind:       p.Class + "/" + p.Type,
			Source:     n.name,
			Confidence: p.Importance,
		})
	}
	return out, nil
}
