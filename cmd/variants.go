package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osmno/geocode2osm/internal/street"
)

var variantsCmd = &cobra.Command{
	Use:   "variants <street>",
	Short: "List the spelling variants tried for a street name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nz, err := street.Load(cfg.Street.SynonymsFile, street.WithMaxVariants(cfg.Street.MaxVariants))
		if err != nil {
			return err
		}
		for v := range nz.Variants(strings.Join(args, " ")) {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(variantsCmd)
}
