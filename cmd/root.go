package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/config"
)

var (
	cfg *config.Config

	configPath string
	offline    bool
)

var rootCmd = &cobra.Command{
	Use:   "farmndvi",
	Short: "Farm vegetation health from satellite NDVI",
	Long:  "Resolves farm field boundaries, fetches per-field NDVI series from Sentinel-2 statistics with a synthetic fallback, and serves cached farm snapshots.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if offline {
			goOffline(cfg)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "skip remote boundary and imagery providers; use stored fields and synthetic NDVI")
}

// goOffline clears the remote provider settings so every field resolves from
// the store or samples and every series is synthetic.
func goOffline(c *config.Config) {
	c.Imagery.ClientID = ""
	c.Imagery.ClientSecret = ""
	c.Boundary.GeometryURL = ""
	c.Boundary.GeometryKey = ""
	c.Boundary.LocalURL = ""
	zap.L().Info("offline mode: remote boundary and imagery providers disabled")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
