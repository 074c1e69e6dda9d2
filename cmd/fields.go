package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farmndvi/internal/geo"
	"github.com/sells-group/farmndvi/internal/store"
)

var fieldsReplace bool

const importTimeout = 2 * time.Minute

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Manage stored farm field boundaries",
}

var fieldsImportCmd = &cobra.Command{
	Use:   "import <farm-id> <file-or-url>",
	Short: "Import field boundaries from GeoJSON, YAML or a (zipped) shapefile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openFieldStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importFields(ctx, st, args[0], args[1], fieldsReplace)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d fields for farm %s\n", n, args[0])
		return nil
	},
}

var fieldsListCmd = &cobra.Command{
	Use:   "list <farm-id>",
	Short: "List a farm's stored field boundaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openFieldStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return listFields(ctx, st, args[0], cmd.OutOrStdout())
	},
}

func init() {
	fieldsImportCmd.Flags().BoolVar(&fieldsReplace, "replace", false, "replace the farm's existing fields instead of merging")
	fieldsCmd.AddCommand(fieldsImportCmd, fieldsListCmd)
	rootCmd.AddCommand(fieldsCmd)
}

func openFieldStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("fields"); err != nil {
		return nil, err
	}
	return initStore(ctx)
}

// importFields reads path (downloading it first when it is a URL) and writes
// its fields for farmID, filling in missing areas. It returns the number of
// fields stored.
func importFields(ctx context.Context, st store.Store, farmID, path string, replace bool) (int, error) {
	if geo.IsRemote(path) {
		dir, err := os.MkdirTemp("", "farmndvi-import-*")
		if err != nil {
			return 0, eris.Wrap(err, "fields: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		local, err := geo.Fetch(ctx, &http.Client{Timeout: importTimeout}, path, dir)
		if err != nil {
			return 0, err
		}
		path = local
	}

	fields, err := geo.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, eris.Errorf("fields: %s contains no polygon fields", path)
	}
	for i := range fields {
		fields[i] = geo.EnsureArea(fields[i])
	}

	write := st.UpsertFields
	if replace {
		write = st.ReplaceFields
	}
	stored, err := write(ctx, farmID, fields)
	if err != nil {
		return 0, eris.Wrapf(err, "fields: store %s", farmID)
	}

	zap.L().Info("fields imported",
		zap.String("farm_id", farmID),
		zap.String("path", path),
		zap.Int("count", len(stored)),
		zap.Bool("replace", replace),
	)
	return len(stored), nil
}

func listFields(ctx context.Context, st store.Store, farmID string, out io.Writer) error {
	fields, err := st.ListFields(ctx, farmID)
	if err != nil {
		return eris.Wrapf(err, "fields: list %s", farmID)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCROP\tHECTARES\tVERTICES")
	for _, f := range fields {
		area := "-"
		if f.AreaHectares != nil {
			area = fmt.Sprintf("%.2f", *f.AreaHectares)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", f.ID, f.Name, f.Crop, area, len(f.Polygon))
	}
	return tw.Flush()
}
