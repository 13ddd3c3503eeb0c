package geocode

import (
	"context"
	"net/http"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/osmno/geocode2osm/internal/config"
	"github.com/osmno/geocode2osm/internal/fetcher"
	"github.com/osmno/geocode2osm/internal/postnummer"
	"github.com/osmno/geocode2osm/internal/quota"
	"github.com/osmno/geocode2osm/internal/resilience"
	"github.com/osmno/geocode2osm/internal/street"
)

// Build wires a Resolver from configuration: the enabled backends with their
// retry policy and circuit breakers, the Nominatim quota, the postal register
// and the street synonym table. extra options are applied last.
func Build(ctx context.Context, cfg *config.Config, extra ...ResolverOption) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hc := &http.Client{Timeout: cfg.HTTP.Timeout}
	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff, cfg.Retry.Multiplier)
	cbCfg := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeout)
	cbCfg.ShouldTrip = resilience.IsTransient
	breakers := resilience.NewBreakers(cbCfg)

	clientOpts := func(name, baseURL string) []ClientOption {
		return []ClientOption{
			WithHTTPClient(hc),
			WithUserAgent(cfg.HTTP.UserAgent),
			WithRetry(retry),
			WithBaseURL(baseURL),
			WithBreaker(breakers.Get(name)),
		}
	}

	opts := []ResolverOption{WithConcurrency(cfg.Batch.Concurrency)}

	if cfg.Matrikkel.Enabled {
		opts = append(opts, WithMatrikkel(NewMatrikkel(clientOpts("matrikkel", cfg.Matrikkel.BaseURL)...)))
	}
	if cfg.Stedsnavn.Enabled {
		s, err := NewStedsnavn(clientOpts("stedsnavn", cfg.Stedsnavn.BaseURL)...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithStedsnavn(s))
	}
	if cfg.Nominatim.Enabled {
		q := quota.New(cfg.Nominatim.HourlyLimit, cfg.Nominatim.Window, quota.WithName("nominatim"))
		opts = append(opts, WithNominatim(NewNominatim(q,
			WithInterval(cfg.Nominatim.Interval),
			WithEmail(cfg.Nominatim.Email),
			WithClientOptions(clientOpts("nominatim", cfg.Nominatim.BaseURL)...),
		)))
	}
	if cfg.Kommuneinfo.Enabled {
		opts = append(opts, WithBoundsSource(NewKommuneinfo(clientOpts("kommuneinfo", cfg.Kommuneinfo.BaseURL)...)))
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		Retry:     retry,
	})
	src := cfg.Postnummer.File
	if src == "" {
		src = cfg.Postnummer.URL
	}
	reg, err := postnummer.Load(ctx, f, src)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: load postal register")
	}
	opts = append(opts, WithRegister(reg))

	norm, err := street.Load(cfg.Street.SynonymsFile, street.WithMaxVariants(cfg.Street.MaxVariants))
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithNormalizer(norm), WithVariantLimit(cfg.Street.QueryVariants))

	return NewResolver(append(opts, extra...)...), nil
}

var defaultResolver = sync.OnceValues(func() (*Resolver, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return Build(context.Background(), cfg)
})

// Geocode resolves one address with a resolver built from config.yaml and
// the environment on first use. The error only reports a failure to build
// that resolver; unresolved addresses come back as TierUnresolved.
func Geocode(ctx context.Context, addr string) (Result, error) {
	r, err := defaultResolver()
	if err != nil {
		return Result{}, eris.Wrap(err, "geocode: build default resolver")
	}
	return r.Geocode(ctx, addr), nil
}
