package tabular

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/osmno/geocode2osm/pkg/geocode"
)

// OutputPath returns where the geocoded copy of a table is written.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_geocoded" + ext
}

// OSMOutputPath returns where the OSM export of a table is written.
func OSMOutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + "_geocoded.osm"
}

// Job geocodes the pending rows of one table.
type Job struct {
	Input  string
	Output string
	// OSMOutput is empty when no OSM export is wanted.
	OSMOutput string

	table   *Table
	format  Format
	pending []int
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithOSMExport turns the OSM node export on or off. It is on by default.
func WithOSMExport(on bool) JobOption {
	return func(j *Job) {
		if on {
			j.OSMOutput = OSMOutputPath(j.Input)
		} else {
			j.OSMOutput = ""
		}
	}
}

// NewJob reads input and collects its pending rows.
func NewJob(ctx context.Context, input string, opts ...JobOption) (*Job, error) {
	format, err := FormatOf(input)
	if err != nil {
		return nil, err
	}
	t, err := Read(ctx, input)
	if err != nil {
		return nil, err
	}
	j := &Job{
		Input:     input,
		Output:    OutputPath(input),
		OSMOutput: OSMOutputPath(input),
		table:     t,
		format:    format,
	}
	for _, o := range opts {
		o(j)
	}
	for i := range t.Rows {
		if t.Pending(i) {
			j.pending = append(j.pending, i)
		}
	}
	return j, nil
}

// Table returns the table being geocoded.
func (j *Job) Table() *Table {
	return j.table
}

// Requests returns one request per pending row.
func (j *Job) Requests(_ context.Context) ([]geocode.Request, error) {
	reqs := make([]geocode.Request, len(j.pending))
	for i, row := range j.pending {
		reqs[i] = j.table.Request(row)
	}
	return reqs, nil
}

// Apply writes the result for request i into its row.
func (j *Job) Apply(i int, res geocode.Result) {
	j.table.Apply(j.pending[i], res)
}

// Flush writes the table and, when enabled, the OSM export.
func (j *Job) Flush() ([]string, error) {
	if err := j.table.Write(j.Output, j.format); err != nil {
		return nil, err
	}
	outs := []string{j.Output}
	if j.OSMOutput != "" {
		if err := j.table.OSM().Write(j.OSMOutput); err != nil {
			return outs, err
		}
		outs = append(outs, j.OSMOutput)
	}
	return outs, nil
}
