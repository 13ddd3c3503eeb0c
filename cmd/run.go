package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/osmno/geocode2osm/internal/batch"
	"github.com/osmno/geocode2osm/internal/osmfile"
	"github.com/osmno/geocode2osm/internal/runlog"
	"github.com/osmno/geocode2osm/internal/tabular"
	"github.com/osmno/geocode2osm/pkg/geocode"
)

var (
	runLog         bool
	runNoOSM       bool
	runConcurrency int
)

var runCmd = &cobra.Command{
	Use:   "run <file.osm|file.csv|file.xlsx>",
	Short: "Geocode every pending address in a file",
	Long: `Geocodes OSM elements, or CSV/XLSX rows, whose GEOCODE value is not
"no" or "done". The result is written to <name>_geocoded.<ext>; tabular
input is also exported to <name>_geocoded.osm unless --no-osm is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input := args[0]
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loading file %q ...\n", input)

		job, err := openJob(ctx, input, cfg.Batch.OSMExport && !runNoOSM)
		if err != nil {
			return err
		}

		if runConcurrency > 0 {
			cfg.Batch.Concurrency = runConcurrency
		}
		res, err := geocode.Build(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "run: build resolver")
		}

		l := runlog.Nop()
		logPath := ""
		if runLog || cfg.Batch.RunLog {
			logPath = runlog.PathFor(input)
			l, err = runlog.Open(logPath)
			if err != nil {
				return err
			}
			defer l.Close() //nolint:errcheck
			l.Start(input)
		}

		fmt.Fprint(out, "Geocoding ADDRESS for elements marked with GEOCODE\n\n")
		runner := batch.NewRunner(res, batch.WithRunLog(l), batch.WithOutput(out))
		sum, err := runner.Run(ctx, job)
		if sum != nil {
			sum.Print(out, logPath)
		}
		return err
	},
}

// openJob picks the file collaborator from the extension.
func openJob(ctx context.Context, input string, osmExport bool) (batch.Job, error) {
	if strings.EqualFold(filepath.Ext(input), ".osm") {
		return osmfile.NewJob(input)
	}
	if _, err := tabular.FormatOf(input); err != nil {
		return nil, eris.Errorf("run: %s is not an .osm, .csv or .xlsx file", input)
	}
	return tabular.NewJob(ctx, input, tabular.WithOSMExport(osmExport))
}

func init() {
	runCmd.Flags().BoolVar(&runLog, "log", false, "write a detailed log to <name>_geocodelog.txt")
	runCmd.Flags().BoolVar(&runNoOSM, "no-osm", false, "do not export tabular input as OSM nodes")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "addresses resolved at once (default from config)")
	rootCmd.AddCommand(runCmd)
}
