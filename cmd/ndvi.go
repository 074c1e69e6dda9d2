package main

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farmndvi/internal/ndvi"
)

var (
	ndviName    string
	ndviDate    string
	ndviRefresh bool
)

var ndviCmd = &cobra.Command{
	Use:   "ndvi <farm-id>",
	Short: "Aggregate a farm snapshot and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var target time.Time
		if ndviDate != "" {
			t, err := time.Parse(time.DateOnly, ndviDate)
			if err != nil {
				return eris.Wrapf(err, "ndvi: parse --date %q", ndviDate)
			}
			target = t
		}

		env, err := initEnv(ctx, "ndvi")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Cache.Get(ctx, args[0], ndviName, ndviRefresh)
		if err != nil {
			return eris.Wrap(err, "ndvi: aggregate")
		}
		if !target.IsZero() {
			snap = ndvi.Project(snap, target)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

func init() {
	ndviCmd.Flags().StringVar(&ndviName, "name", "", "farm display name (defaults to the farm id)")
	ndviCmd.Flags().StringVar(&ndviDate, "date", "", "project current values onto this date (YYYY-MM-DD)")
	ndviCmd.Flags().BoolVar(&ndviRefresh, "refresh", false, "bypass the snapshot cache")
	rootCmd.AddCommand(ndviCmd)
}
