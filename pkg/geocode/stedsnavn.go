package geocode

import (
	"context"
	_ "embed"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultStedsnavnURL is the root of Kartverket's place name API.
const DefaultStedsnavnURL = "https://ws.geonorge.no/stedsnavn/v1"

//go:embed nametypes.yaml
var embeddedNameTypes []byte

// NameTypes classifies place name types into usable, fallback and ignored.
type NameTypes struct {
	Accepted       []string            `yaml:"accepted"`
	AcceptedGroups []string            `yaml:"accepted_groups"`
	Fallback       []string            `yaml:"fallback"`
	Groups         map[string][]string `yaml:"groups"`

	group map[string]string
}

// ParseNameTypes reads a name type table.
func ParseNameTypes(data []byte) (*NameTypes, error) {
	var nt NameTypes
	if err := yaml.Unmarshal(data, &nt); err != nil {
		return nil, eris.Wrap(err, "stedsnavn: parse name types")
	}
	nt.group = make(map[string]string)
	for g, types := range nt.Groups {
		for _, t := range types {
			nt.group[t] = g
		}
	}
	return &nt, nil
}

var defaultNameTypes = sync.OnceValues(func() (*NameTypes, error) {
	return ParseNameTypes(embeddedNameTypes)
})

// Known reports whether t is listed in any group.
func (nt *NameTypes) Known(t string) bool {
	_, ok := nt.group[t]
	return ok
}

// Usable reports whether a place of type t is a good location.
func (nt *NameTypes) Usable(t string) bool {
	return slices.Contains(nt.Accepted, t) || slices.Contains(nt.AcceptedGroups, nt.group[t])
}

// IsFallback reports whether t is only used when no usable place exists.
func (nt *NameTypes) IsFallback(t string) bool {
	return slices.Contains(nt.Fallback, t)
}

// Stedsnavn searches the central place name register.
type Stedsnavn struct {
	client
	types *NameTypes

	mu      sync.Mutex
	unknown []string
}

// NewStedsnavn creates a place name provider using the embedded name type table.
func NewStedsnavn(opts ...ClientOption) (*Stedsnavn, error) {
	nt, err := defaultNameTypes()
	if err != nil {
		return nil, err
	}
	return NewStedsnavnWithTypes(nt, opts...), nil
}

// NewStedsnavnWithTypes creates a place name provider with a custom table.
func NewStedsnavnWithTypes(nt *NameTypes, opts ...ClientOption) *Stedsnavn {
	return &Stedsnavn{client: newClient("Stedsnavn", DefaultStedsnavnURL, opts), types: nt}
}

type stedsnavnResponse struct {
	Navn []stedsnavnPlace `json:"navn"`
}

type stedsnavnPlace struct {
	Skrivemate      string `json:"skrivemåte"`
	Navneobjekttype string `json:"navneobjekttype"`
	Punkt           struct {
		Nord float64 `json:"nord"`
		Ost  float64 `json:"øst"`
	} `json:"representasjonspunkt"`
}

var stedsnavnStrip = strings.NewReplacer("(", "", ")", "")

// Lookup implements Provider. It searches for q.Text within q.Municipality.
// Places of usable types are returned in register order; when there are
// none, islands and headlands are returned instead.
func (s *Stedsnavn) Lookup(ctx context.Context, q Query) ([]Candidate, error) {
	text := strings.TrimSpace(stedsnavnStrip.Replace(q.Text))
	if text == "" {
		return nil, nil
	}
	params := url.Values{"sok": {text}, "utkoordsys": {"4258"}}
	if q.Municipality != "" {
		params.Set("knr", q.Municipality)
	}

	var resp stedsnavnResponse
	if err := s.getJSON(ctx, "/navn", params, &resp); err != nil {
		return nil, err
	}

	var usable, fallback []Candidate
	for _, p := range resp.Navn {
		if !s.types.Known(p.Navneobjekttype) {
			s.recordUnknown(p.Navneobjekttype)
		}
		c := Candidate{
			Latitude:  p.Punkt.Nord,
			Longitude: p.Punkt.Ost,
			Name:      p.Skrivemate,
			Kind:      p.Navneobjekttype,
			Source:    s.name,
		}
		switch {
		case s.types.Usable(p.Navneobjekttype):
			c.Confidence = 1
			usable = append(usable, c)
		case s.types.IsFallback(p.Navneobjekttype):
			c.Confidence = 0.5
			fallback = append(fallback, c)
		}
	}
	if len(usable) > 0 {
		return usable, nil
	}
	return fallback, nil
}

func (s *Stedsnavn) recordUnknown(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.unknown, t) {
		return
	}
	s.unknown = append(s.unknown, t)
	zap.L().Warn("stedsnavn: unknown name type", zap.String("type", t))
}

// UnknownTypes lists name types seen in responses but missing from the table,
// in the order they were first seen.
func (s *Stedsnavn) UnknownTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.unknown)
}
