// Package batch drives the geocoding of one input file: it asks a Source for
// requests, resolves them, hands every result to a Sink and reports a
// summary.
package batch

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/osmno/geocode2osm/internal/runlog"
	"github.com/osmno/geocode2osm/pkg/geocode"
)

// Source supplies the addresses to geocode.
type Source interface {
	Requests(ctx context.Context) ([]geocode.Request, error)
}

// Sink receives results. Apply is never called concurrently. Flush writes the
// output and returns the files it wrote.
type Sink interface {
	Apply(i int, res geocode.Result)
	Flush() ([]string, error)
}

// Job is an input file that is both Source and Sink.
type Job interface {
	Source
	Sink
}

// Resolver is the part of *geocode.Resolver the runner needs.
type Resolver interface {
	ResolveAll(ctx context.Context, reqs []geocode.Request, each func(int, geocode.Result)) ([]geocode.Result, error)
	Stats() geocode.Stats
}

// Runner geocodes jobs.
type Runner struct {
	resolver Resolver
	log      *runlog.Log
	out      io.Writer
	progress bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithRunLog writes per-address details to l.
func WithRunLog(l *runlog.Log) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithOutput sets where per-address lines and the summary are printed.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithProgressBar shows a progress bar on stderr instead of one line per
// address.
func WithProgressBar(on bool) Option {
	return func(r *Runner) { r.progress = on }
}

// NewRunner creates a runner. By default it prints to stdout and shows a
// progress bar when stderr is a terminal.
func NewRunner(res Resolver, opts ...Option) *Runner {
	r := &Runner{
		resolver: res,
		log:      runlog.Nop(),
		out:      os.Stdout,
		progress: isatty.IsTerminal(os.Stderr.Fd()),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Summary describes a finished run.
type Summary struct {
	RunID   string               `json:"run_id,omitempty"`
	Tried   int                  `json:"tried"`
	Found   int                  `json:"found"`
	Tiers   map[geocode.Tier]int `json:"tiers"`
	Stats   geocode.Stats        `json:"stats"`
	Outputs []string             `json:"outputs"`
	Elapsed time.Duration        `json:"elapsed"`
}

// Run resolves every request of job and flushes it. A cancelled context
// stops resolution, but what was resolved so far is still written.
func (r *Runner) Run(ctx context.Context, job Job) (*Summary, error) {
	start := time.Now()
	reqs, err := job.Requests(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "batch: read requests")
	}

	sum := &Summary{RunID: r.log.ID, Tiers: map[geocode.Tier]int{}}
	zap.L().Info("batch: geocoding", zap.Int("addresses", len(reqs)), zap.String("run_id", r.log.ID))

	var bar *progressbar.ProgressBar
	if r.progress && len(reqs) > 0 {
		bar = progressbar.NewOptions(len(reqs),
			progressbar.OptionSetDescription("Geocoding"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	_, runErr := r.resolver.ResolveAll(ctx, reqs, func(i int, res geocode.Result) {
		if res.Tier == geocode.TierUnresolved && ctx.Err() != nil {
			return
		}
		sum.Tried++
		sum.Tiers[res.Tier]++
		if res.Resolved() {
			sum.Found++
		}
		job.Apply(i, res)
		r.logResult(i, res)

		if bar != nil {
			_ = bar.Add(1)
		} else {
			fmt.Fprintf(r.out, "%d %s --> %s\n", i+1, res.Address, describe(res))
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}

	sum.Stats = r.resolver.Stats()
	outs, err := job.Flush()
	sum.Outputs = outs
	sum.Elapsed = time.Since(start)
	r.logSummary(sum)
	if err != nil {
		return sum, eris.Wrap(err, "batch: write output")
	}
	if runErr != nil {
		return sum, eris.Wrap(runErr, "batch: interrupted")
	}
	return sum, nil
}

func describe(res geocode.Result) string {
	if !res.Resolved() {
		return "*** NO MATCH"
	}
	return fmt.Sprintf("%s (%s)", res.Method, res.Tier)
}

func (r *Runner) logResult(i int, res geocode.Result) {
	r.log.Info(fmt.Sprintf("ADDRESS %d: %s", i+1, res.Address))
	for _, n := range res.Notes {
		r.log.Info("  " + n)
	}
	if res.Resolved() {
		r.log.Info(fmt.Sprintf("MATCH WITH %s (precision: %s)", res.Method, res.Tier),
			zap.Float64("lat", res.Location.Lat), zap.Float64("lon", res.Location.Lon))
	} else {
		r.log.Info("NO MATCH")
	}
}

func (r *Runner) logSummary(s *Summary) {
	fields := make([]zap.Field, 0, len(s.Stats.Calls)+len(geocode.Tiers())+2)
	for name, n := range s.Stats.Calls {
		fields = append(fields, zap.Int64(name+"_queries", n))
	}
	for _, t := range geocode.Tiers() {
		fields = append(fields, zap.Int(t.String(), s.Tiers[t]))
	}
	if len(s.Stats.UnknownTypes) > 0 {
		fields = append(fields, zap.Strings("unknown_name_types", s.Stats.UnknownTypes))
	}
	fields = append(fields, zap.Duration("elapsed", s.Elapsed))
	r.log.Info("geocoding finished", fields...)
}

// Print writes the human summary of a run.
func (s *Summary) Print(w io.Writer, logPath string) {
	fmt.Fprintf(w, "\nGeocoded %d of %d addresses", s.Found, s.Tried)
	if len(s.Outputs) > 0 {
		fmt.Fprintf(w, ", written to %v", s.Outputs)
	}
	fmt.Fprintln(w)
	if missing := s.Tried - s.Found; missing > 0 {
		fmt.Fprintf(w, "%d addresses not found. Adjust the address and run again.\n", missing)
	}
	fmt.Fprintf(w, "Hits: %d houses (exact addresses), %d streets, %d places (villages, towns), %d postal districts\n",
		s.Tiers[geocode.TierHouse], s.Tiers[geocode.TierStreet], s.Tiers[geocode.TierPlace], s.Tiers[geocode.TierDistrict])
	if q := s.Stats.Quota; q != nil {
		fmt.Fprintf(w, "Nominatim queries: %d (max %d per hour)\n", q.Total, q.Limit)
	}
	if logPath != "" {
		fmt.Fprintf(w, "Detailed log in %s\n", logPath)
	}
	if len(s.Stats.UnknownTypes) > 0 {
		fmt.Fprintf(w, "Place name types not recognised: %v\n", s.Stats.UnknownTypes)
	}
}
