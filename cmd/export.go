package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/export"
)

var exportName string

var exportCmd = &cobra.Command{
	Use:   "export <farm-id> <out.xlsx>",
	Short: "Aggregate a farm and write the snapshot to an Excel workbook",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "export")
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Cache.Get(ctx, args[0], exportName, true)
		if err != nil {
			return eris.Wrap(err, "export: aggregate")
		}
		if err := export.Save(snap, args[1]); err != nil {
			return err
		}

		zap.L().Info("snapshot exported",
			zap.String("farm_id", snap.FarmID),
			zap.Int("fields", len(snap.Fields)),
			zap.Bool("real_data", snap.UsingRealData),
			zap.String("path", args[1]),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportName, "name", "", "farm display name (defaults to the farm id)")
	rootCmd.AddCommand(exportCmd)
}
