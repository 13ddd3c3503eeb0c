package geocode

import (
	"context"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/osmno/geocode2osm/internal/address"
	"github.com/osmno/geocode2osm/internal/postnummer"
	"github.com/osmno/geocode2osm/internal/quota"
	"github.com/osmno/geocode2osm/internal/street"
)

// Resolver turns addresses into classified results. It holds no state that
// changes between resolutions apart from backend memos and quota counters,
// so resolving the same address twice gives the same answer.
type Resolver struct {
	matrikkel  Provider
	stedsnavn  Provider
	nominatim  Provider
	register   *postnummer.Register
	bounds     BoundsSource
	normalizer *street.Normalizer
	ranker     Ranker

	variantLimit int
	concurrency  int
}

// DefaultVariantLimit is how many street spellings, the original included,
// the street stage tries before giving up.
const DefaultVariantLimit = 6

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithMatrikkel sets the cadastral address provider.
func WithMatrikkel(p Provider) ResolverOption {
	return func(r *Resolver) { r.matrikkel = p }
}

// WithStedsnavn sets the place name provider.
func WithStedsnavn(p Provider) ResolverOption {
	return func(r *Resolver) { r.stedsnavn = p }
}

// WithNominatim sets the general geocoder. It must enforce its own quota.
func WithNominatim(p Provider) ResolverOption {
	return func(r *Resolver) { r.nominatim = p }
}

// WithRegister sets the postal code register used to find the municipality.
func WithRegister(reg *postnummer.Register) ResolverOption {
	return func(r *Resolver) { r.register = reg }
}

// WithBoundsSource sets where municipality bounding boxes come from.
func WithBoundsSource(b BoundsSource) ResolverOption {
	return func(r *Resolver) { r.bounds = b }
}

// WithNormalizer sets the street spelling variant generator.
func WithNormalizer(n *street.Normalizer) ResolverOption {
	return func(r *Resolver) { r.normalizer = n }
}

// WithRanker replaces EditDistanceRanker.
func WithRanker(rk Ranker) ResolverOption {
	return func(r *Resolver) {
		if rk != nil {
			r.ranker = rk
		}
	}
}

// WithVariantLimit caps the spelling variants tried by the street stage.
func WithVariantLimit(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.variantLimit = n
		}
	}
}

// WithConcurrency sets how many addresses ResolveAll works on at once.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a Resolver. Stages whose provider is missing are skipped.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{ranker: EditDistanceRanker{}, variantLimit: DefaultVariantLimit, concurrency: 1}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Geocode resolves a one-line address.
func (r *Resolver) Geocode(ctx context.Context, addr string) Result {
	return r.Resolve(ctx, Request{Address: addr})
}

// Resolve runs req through the house, street, place and district stages and
// stops at the first that finds an acceptable candidate. Failures never
// surface as errors: an address nothing matched comes back unresolved with
// notes on what was tried.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	text := req.Text()
	res := Result{ID: req.ID, Address: text, Tier: TierUnresolved}

	parsed, err := address.Parse(text)
	if err != nil {
		res.Notes = []string{"parse: " + err.Error()}
		zap.L().Debug("geocode: unparseable address", zap.String("address", text), zap.Error(err))
		return res
	}
	res.Parsed = parsed

	s := r.start(parsed)
	for _, st := range r.stages() {
		if err := ctx.Err(); err != nil {
			s.notef("%s: not attempted, %v", st.name, err)
			continue
		}
		h, ok := st.run(ctx, s)
		if !ok {
			continue
		}
		res.Location = &Point{Lat: h.cand.Latitude, Lon: h.cand.Longitude}
		res.Tier = h.tier
		res.Method = fmt.Sprintf("%s/%s -> %s", h.cand.Source, h.method, h.cand.Kind)
		res.Matched = h.matched
		break
	}
	res.Notes = s.notes

	zap.L().Debug("geocode: resolved",
		zap.String("address", text),
		zap.Stringer("tier", res.Tier),
		zap.String("method", res.Method),
	)
	return res
}

// ResolveAll resolves reqs with up to the configured concurrency and returns
// results in input order. each, when not nil, is called once per finished
// address, never concurrently. The error is only set when ctx ends early.
func (r *Resolver) ResolveAll(ctx context.Context, reqs []Request, each func(i int, res Result)) ([]Result, error) {
	results := make([]Result, len(reqs))

	var mu sync.Mutex
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i, req := range reqs {
		if gCtx.Err() != nil {
			break
		}
		eg.Go(func() error {
			res := r.Resolve(gCtx, req)
			results[i] = res
			if each != nil {
				mu.Lock()
				each(i, res)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = eg.Wait()
	return results, ctx.Err()
}

// Stats summarises backend usage since the resolver was built.
type Stats struct {
	Calls        map[string]int64  `json:"calls"`
	Circuits     map[string]string `json:"circuits"`
	Quota        *quota.Stats      `json:"quota,omitempty"`
	UnknownTypes []string          `json:"unknown_name_types,omitempty"`
}

// Stats reports call counts, circuit states, quota usage and unknown place
// name types.
func (r *Resolver) Stats() Stats {
	st := Stats{Calls: map[string]int64{}, Circuits: map[string]string{}}
	backends := []any{r.matrikkel, r.stedsnavn, r.nominatim, r.bounds}
	for _, b := range backends {
		named, ok := b.(interface{ Name() string })
		if !ok {
			continue
		}
		name := strings.ToLower(named.Name())
		if c, ok := b.(callCounter); ok {
			st.Calls[name] = c.Calls()
		}
		if c, ok := b.(circuitReporter); ok {
			st.Circuits[name] = c.Circuit().String()
		}
		if q, ok := b.(quotaReporter); ok {
			qs := q.QuotaStats()
			st.Quota = &qs
		}
		if t, ok := b.(typeReporter); ok {
			st.UnknownTypes = append(st.UnknownTypes, t.UnknownTypes()...)
		}
	}
	return st
}

type stage struct {
	name string
	run  func(ctx context.Context, s *resolution) (hit, bool)
}

func (r *Resolver) stages() []stage {
	return []stage{
		{"house", r.houseLevel},
		{"street", r.streetLevel},
		{"place", r.placeLevel},
		{"district", r.districtLevel},
	}
}

// resolution is the per-address working state.
type resolution struct {
	parsed   *address.Parsed
	district postnummer.District
	known    bool

	boundsFn func(ctx context.Context) Bounds
	bounds   *Bounds

	cache map[string][]Candidate
	notes []string
}

type hit struct {
	cand    Candidate
	tier    Tier
	method  string
	matched string
}

func (r *Resolver) start(p *address.Parsed) *resolution {
	s := &resolution{parsed: p, cache: make(map[string][]Candidate)}
	if p.Postcode != "" {
		s.district, s.known = r.register.Lookup(p.Postcode)
		if !s.known {
			s.notef("postcode %s not in postal register", p.Postcode)
		}
	}
	s.boundsFn = func(ctx context.Context) Bounds {
		if r.bounds == nil {
			return WorldBounds()
		}
		return r.bounds.Bounds(ctx, s.district.MunicipalityRef)
	}
	return s
}

func (s *resolution) municipality() string {
	return s.district.MunicipalityRef
}

func (s *resolution) hasLocality() bool {
	return s.parsed.Postcode != "" || s.parsed.City != "" || s.municipality() != ""
}

func (s *resolution) box(ctx context.Context) *Bounds {
	if s.bounds == nil {
		b := s.boundsFn(ctx)
		s.bounds = &b
	}
	return s.bounds
}

func (s *resolution) notef(format string, args ...any) {
	s.notes = append(s.notes, fmt.Sprintf(format, args...))
}

// query asks p once per distinct query; repeats are answered from memory.
func (s *resolution) query(ctx context.Context, p Provider, q Query) []Candidate {
	key := p.Name() + "\x00" + q.key()
	if cands, ok := s.cache[key]; ok {
		return cands
	}
	cands, err := lookup(ctx, p, q)
	if err != nil {
		s.notef("%s", err.Error())
	}
	zap.L().Debug("geocode: query",
		zap.String("backend", p.Name()),
		zap.String("method", q.Method),
		zap.String("street", q.Street),
		zap.String("number", q.HouseNumber),
		zap.String("text", q.Text),
		zap.Int("hits", len(cands)),
	)
	s.cache[key] = cands
	return cands
}

// pick ranks acceptable candidates and notes ties.
func (r *Resolver) pick(s *resolution, stage, name, number string, cands []Candidate) Candidate {
	best, ambiguous := r.ranker.Pick(name, number, cands)
	if ambiguous {
		s.notef("%s: ambiguous, %d candidates for %q ranked equal, kept the first", stage, len(cands), name)
	}
	return cands[best]
}

func houseText(c Candidate) string {
	return strings.TrimSpace(c.Name + " " + c.HouseNumber + c.Letter)
}

func (r *Resolver) houseLevel(ctx context.Context, s *resolution) (hit, bool) {
	p := s.parsed
	switch {
	case r.matrikkel == nil:
		s.notef("house: skipped, no cadastral backend")
		return hit{}, false
	case !p.HasHouse():
		s.notef("house: skipped, no house number")
		return hit{}, false
	case !s.hasLocality():
		s.notef("house: skipped, no postcode, city or municipality")
		return hit{}, false
	}

	base := Query{Street: p.Street, HouseNumber: p.HouseNumber, Letter: p.Letter}
	var queries []Query
	add := func(method string, mod func(*Query)) {
		q := base
		q.Method = method
		mod(&q)
		if q.Postcode != "" || q.City != "" || q.Municipality != "" {
			queries = append(queries, q)
		}
	}
	add("address", func(q *Query) { q.Postcode, q.City = p.Postcode, p.City })
	add("address+postcode", func(q *Query) { q.Postcode = p.Postcode })
	add("address+city", func(q *Query) { q.City = p.City })
	if p.Letter != "" {
		add("address-letter", func(q *Query) { q.Letter, q.Postcode, q.City = "", p.Postcode, p.City })
	}
	add("address+municipality", func(q *Query) { q.Municipality = s.municipality() })

	for _, q := range queries {
		if h, ok := r.houseHit(ctx, s, q, "house"); ok {
			return h, true
		}
	}
	s.notef("house: no %s %s in the cadastral register", p.Street, p.HouseNumber+p.Letter)
	return hit{}, false
}

// houseHit accepts only candidates with the requested house number.
func (r *Resolver) houseHit(ctx context.Context, s *resolution, q Query, stage string) (hit, bool) {
	var exact []Candidate
	for _, c := range s.query(ctx, r.matrikkel, q) {
		if c.HouseNumber == s.parsed.HouseNumber {
			exact = append(exact, c)
		}
	}
	if len(exact) == 0 {
		return hit{}, false
	}
	c := r.pick(s, stage, q.Street, q.HouseNumber, exact)
	return hit{cand: c, tier: TierHouse, method: q.Method, matched: houseText(c)}, true
}

func (r *Resolver) variants(name string) iter.Seq[string] {
	if r.normalizer == nil {
		return func(yield func(string) bool) { yield(name) }
	}
	return r.normalizer.Variants(name)
}

func (r *Resolver) streetLevel(ctx context.Context, s *resolution) (hit, bool) {
	p := s.parsed
	switch {
	case r.matrikkel == nil:
		s.notef("street: skipped, no cadastral backend")
		return hit{}, false
	case p.Street == "":
		s.notef("street: skipped, no street")
		return hit{}, false
	case !s.hasLocality():
		s.notef("street: skipped, no postcode, city or municipality")
		return hit{}, false
	}

	locate := func(q *Query) {
		if m := s.municipality(); m != "" {
			q.Municipality = m
		} else {
			q.Postcode, q.City = p.Postcode, p.City
		}
	}

	tried := 0
	for v := range r.variants(p.Street) {
		if tried == r.variantLimit {
			break
		}
		fixed := tried > 0
		tried++

		if fixed && p.HasHouse() {
			q := Query{Method: "address+fix", Street: v, HouseNumber: p.HouseNumber, Letter: p.Letter}
			locate(&q)
			if h, ok := r.houseHit(ctx, s, q, "street"); ok {
				return h, true
			}
		}

		q := Query{Method: "street", Street: v}
		if fixed {
			q.Method = "street+fix"
		}
		locate(&q)
		var named []Candidate
		for _, c := range s.query(ctx, r.matrikkel, q) {
			if strings.EqualFold(c.Name, v) {
				named = append(named, c)
			}
		}
		if len(named) > 0 {
			c := r.pick(s, "street", v, p.HouseNumber, named)
			return hit{cand: c, tier: TierStreet, method: q.Method, matched: c.Name}, true
		}
	}
	s.notef("street: no match for %q in %d spelling variants", p.Street, tried)
	return hit{}, false
}

func (r *Resolver) placeLevel(ctx context.Context, s *resolution) (hit, bool) {
	p := s.parsed
	if r.stedsnavn == nil {
		s.notef("place: skipped, no place name backend")
		return hit{}, false
	}
	if s.municipality() == "" {
		s.notef("place: skipped, municipality unknown")
		return hit{}, false
	}

	var queries []Query
	add := func(method, text string) {
		if text != "" {
			queries = append(queries, Query{Method: method, Text: text, Municipality: s.municipality()})
		}
	}
	if p.HouseNumber == "" {
		add("street", p.Street)
	}
	add("name", p.Name)
	if s.district.Multiple {
		s.notef("place: %s has several postal districts, not searching the city name", s.district.City)
	} else {
		add("city", p.City)
		if !strings.EqualFold(s.district.City, p.City) {
			add("postname", s.district.City)
		}
	}
	if len(queries) == 0 {
		s.notef("place: skipped, no name to search for")
		return hit{}, false
	}

	for _, q := range queries {
		var same []Candidate
		for _, c := range s.query(ctx, r.stedsnavn, q) {
			if strings.EqualFold(c.Name, q.Text) {
				same = append(same, c)
			}
		}
		if len(same) == 0 {
			continue
		}
		c := r.nearest(ctx, s, same)
		return hit{cand: c, tier: TierPlace, method: q.Method, matched: c.Name}, true
	}
	s.notef("place: no place named %s", quoteTexts(queries))
	return hit{}, false
}

// nearest returns the candidate closest to the municipality centre, the
// first one on ties or when the municipality has no bounds.
func (r *Resolver) nearest(ctx context.Context, s *resolution, cands []Candidate) Candidate {
	if len(cands) > 1 {
		s.notef("place: %d places named %q, chose the one nearest the municipality centre", len(cands), cands[0].Name)
	}
	b := s.box(ctx)
	if b.IsWorld() {
		return cands[0]
	}
	centre := b.Center()
	best, bestDist := 0, math.Inf(1)
	for i, c := range cands {
		d := math.Hypot(c.Latitude-centre.Lat, (c.Longitude-centre.Lon)*math.Cos(centre.Lat*math.Pi/180))
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return cands[best]
}

func (r *Resolver) districtLevel(ctx context.Context, s *resolution) (hit, bool) {
	p := s.parsed
	if r.nominatim == nil {
		s.notef("district: skipped, no general geocoder")
		return hit{}, false
	}

	city := p.City
	if city == "" {
		city = s.district.City
	}
	bounds := s.box(ctx)

	var queries []Query
	add := func(method, field, text string) {
		if text != "" {
			queries = append(queries, Query{Method: method, Field: field, Text: text, Bounds: bounds})
		}
	}
	add("postcode", "postalcode", p.Postcode)
	add("city", "city", s.district.City)
	switch name := s.district.MunicipalityName; {
	case city == "":
	case name != "" && !strings.EqualFold(name, city):
		add("city+municipality", "q", city+", "+name)
	default:
		add("city", "q", city)
	}
	if len(queries) == 0 {
		s.notef("district: skipped, no postcode or city")
		return hit{}, false
	}

	for _, q := range queries {
		if cands := s.query(ctx, r.nominatim, q); len(cands) > 0 {
			c := cands[0]
			return hit{cand: c, tier: TierDistrict, method: q.Method, matched: c.Name}, true
		}
	}
	s.notef("district: no area found for %s", quoteTexts(queries))
	return hit{}, false
}

func quoteTexts(queries []Query) string {
	texts := make([]string, 0, len(queries))
	for _, q := range queries {
		t := fmt.Sprintf("%q", q.Text)
		if !slices.Contains(texts, t) {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, ", ")
}
