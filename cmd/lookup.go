package main

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/osmno/geocode2osm/pkg/geocode"
)

var lookupStats bool

var lookupCmd = &cobra.Command{
	Use:     "lookup <address>",
	Short:   "Geocode one address and print the result as JSON",
	Example: `  geocode2osm lookup "Skøyen skole, Lørenveien 7, 0585 Oslo"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		r, err := geocode.Build(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "lookup: build resolver")
		}
		res := r.Geocode(ctx, strings.Join(args, " "))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if lookupStats {
			return enc.Encode(struct {
				geocode.Result
				Stats geocode.Stats `json:"stats"`
			}{res, r.Stats()})
		}
		return enc.Encode(res)
	},
}

func init() {
	lookupCmd.Flags().BoolVar(&lookupStats, "stats", false, "include backend call counts")
	rootCmd.AddCommand(lookupCmd)
}
