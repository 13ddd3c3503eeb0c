package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osmno/geocode2osm/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geocode2osm",
	Short: "Geocode Norwegian addresses in OSM, CSV and XLSX files",
	Long: `Resolves free-text Norwegian addresses to coordinates using the cadastral
address register, the place name register and Nominatim. Elements tagged
with ADDRESS and GEOCODE are moved to the best match found, and tagged with
how precise that match is: house, street, place or postal district.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
