package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres/repositories"
)

// openCatalog connects to the configured catalog database and returns the
// repository plus a cleanup func.  Swapped out in tests.
var openCatalog = func(ctx context.Context, root *RootOptions, configPath string) (catalog.Repository, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := newCLILogger(root)
	if err != nil {
		return nil, nil, err
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewLayerRepository(conn.Pool(), log), conn.Close, nil
}

// NewLayersCmd builds the layers subcommand group: read-only catalog access
// from the command line.
func NewLayersCmd(root *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "layers",
		Short: "Inspect the layer catalog",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to configuration file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all catalog entries, highest relevance first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cleanup, err := openCatalog(cmd.Context(), root, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			layers, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd, root, layerList(layers))
		},
	}

	show := &cobra.Command{
		Use:   "show <layer-id>",
		Short: "Show one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, cleanup, err := openCatalog(cmd.Context(), root, configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			layer, err := repo.GetByLayerID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, root, layer)
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// layerList supports the text output format with a compact table.
type layerList []*catalog.Layer

func (l layerList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-12s %s\n", "LAYER", "RELEVANCE", "METRIC", "DATASET")
	for _, layer := range l {
		fmt.Fprintf(&b, "%-20s %-10.0f %-12s %s\n",
			layer.LayerID, layer.Relevance, layer.MetricField, layer.DatasetKey)
	}
	return strings.TrimRight(b.String(), "\n")
}
