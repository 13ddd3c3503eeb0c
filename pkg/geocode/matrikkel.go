package geocode

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// DefaultMatrikkelURL is the root of Kartverket's address API.
const DefaultMatrikkelURL = "https://ws.geonorge.no/adresser/v1"

// Matrikkel searches the cadastral address register.
type Matrikkel struct {
	client
}

// NewMatrikkel creates a cadastral register provider.
func NewMatrikkel(opts ...ClientOption) *Matrikkel {
	return &Matrikkel{client: newClient("Matrikkel", DefaultMatrikkelURL, opts)}
}

type matrikkelResponse struct {
	Adresser []matrikkelAddress `json:"adresser"`
}

type matrikkelAddress struct {
	Adressetekst  string `json:"adressetekst"`
	Adressenavn   string `json:"adressenavn"`
	Nummer        int    `json:"nummer"`
	Bokstav       string `json:"bokstav"`
	Postnummer    string `json:"postnummer"`
	Poststed      string `json:"poststed"`
	Kommunenummer string `json:"kommunenummer"`
	Objtype       string `json:"objtype"`
	Punkt         struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"representasjonspunkt"`
}

var matrikkelStrip = strings.NewReplacer("(", "", ")", "", ":", "")

// Lookup implements Provider. It searches by q.Street with optional house
// number and letter, limited by q.Municipality when set or else by q.Postcode
// and q.City.
func (m *Matrikkel) Lookup(ctx context.Context, q Query) ([]Candidate, error) {
	params := url.Values{}
	if s := strings.TrimSpace(matrikkelStrip.Replace(q.Street)); s != "" {
		params.Set("sok", s)
	}
	if q.HouseNumber != "" {
		params.Set("nummer", q.HouseNumber)
	}
	if q.Letter != "" {
		params.Set("bokstav", q.Letter)
	}
	if q.Municipality != "" {
		params.Set("kommunenummer", q.Municipality)
	} else {
		if q.Postcode != "" {
			params.Set("postnummer", q.Postcode)
		}
		if q.City != "" {
			params.Set("poststed", q.City)
		}
	}
	if len(params) == 0 {
		return nil, nil
	}
	params.Set("treffPerSide", "10")

	var resp matrikkelResponse
	if err := m.getJSON(ctx, "/sok", params, &resp); err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(resp.Adresser))
	for _, a := range resp.Adresser {
		c := Candidate{
			Latitude:   a.Punkt.Lat,
			Longitude:  a.Punkt.Lon,
			Name:       a.Adressenavn,
			Letter:     a.Bokstav,
			Kind:       a.Objtype,
			Source:     m.name,
			Confidence: 1,
		}
		if a.Nummer > 0 {
			c.HouseNumber = strconv.Itoa(a.Nummer)
		}
		if c.Name == "" {
			c.Name = a.Adressetekst
		}
		out = append(out, c)
	}
	return out, nil
}
