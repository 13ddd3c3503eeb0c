package osmfile

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/osmno/geocode2osm/pkg/geocode"
)

// OutputPath returns where the geocoded copy of an OSM file is written.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_geocoded.osm"
}

// Job geocodes the pending elements of one OSM file and writes the result
// next to it.
type Job struct {
	Input  string
	Output string

	file    *File
	pending []*Element
}

// NewJob reads input and collects its pending elements.
func NewJob(input string) (*Job, error) {
	f, err := Read(input)
	if err != nil {
		return nil, err
	}
	j := &Job{
		Input:   input,
		Output:  OutputPath(input),
		file:    f,
		pending: f.Pending(),
	}
	zap.L().Debug("osmfile: loaded",
		zap.String("file", input),
		zap.Int("elements", len(f.Elements)),
		zap.Int("pending", len(j.pending)),
	)
	return j, nil
}

// Requests returns one request per pending element, identified by the
// element id.
func (j *Job) Requests(_ context.Context) ([]geocode.Request, error) {
	reqs := make([]geocode.Request, len(j.pending))
	for i, e := range j.pending {
		id, _ := e.Attr("id")
		addr, _ := e.Tag(KeyAddress)
		reqs[i] = geocode.Request{ID: id, Address: addr}
	}
	return reqs, nil
}

// Apply writes the result for request i back to its element.
func (j *Job) Apply(i int, res geocode.Result) {
	e := j.pending[i]
	if !res.Resolved() {
		e.MarkNotFound()
		return
	}
	e.MarkFound(res.Location.Lat, res.Location.Lon, res.Method, res.Tier.String())
}

// Flush writes the updated document to Output.
func (j *Job) Flush() ([]string, error) {
	if err := j.file.Write(j.Output); err != nil {
		return nil, err
	}
	return []string{j.Output}, nil
}
