package geocode

import (
	"context"
	"errors"

	"github.com/osmno/geocode2osm/internal/quota"
	"github.com/osmno/geocode2osm/internal/resilience"
)

// Provider represents a single geocoding backend.
type Provider interface {
	Name() string
	// Available is false while the backend is known to be down.
	Available() bool
	// Lookup returns the backend's hits for q in backend order. Failures are
	// returned as *BackendError.
	Lookup(ctx context.Context, q Query) ([]Candidate, error)
}

var (
	_ Provider = (*Matrikkel)(nil)
	_ Provider = (*Stedsnavn)(nil)
	_ Provider = (*Nominatim)(nil)
)

// Optional provider capabilities read by Resolver.Stats.
type callCounter interface{ Calls() int64 }

type circuitReporter interface{ Circuit() resilience.CircuitState }

type quotaReporter interface{ QuotaStats() quota.Stats }

type typeReporter interface{ UnknownTypes() []string }

// lookup calls p and turns every failure into a note-worthy *BackendError.
func lookup(ctx context.Context, p Provider, q Query) ([]Candidate, error) {
	if !p.Available() {
		return nil, &BackendError{Backend: p.Name(), Kind: KindUnavailable, Err: resilience.ErrCircuitOpen}
	}
	cands, err := p.Lookup(ctx, q)
	if err == nil {
		return cands, nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return nil, be
	}
	return nil, &BackendError{Backend: p.Name(), Kind: KindUnavailable, Err: err}
}
