package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/internal/domain/fusion"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
)

// FuseOptions holds the fuse command flags.
type FuseOptions struct {
	LayerSpecs     []string
	Query          string
	Threshold      float64
	RequiredFields []string
	Metrics        []string
	Parallelism    int
	OutFile        string
}

// NewFuseCmd builds the fuse subcommand: an offline fusion run over local
// GeoJSON files.
func NewFuseCmd(root *RootOptions) *cobra.Command {
	opts := &FuseOptions{}

	cmd := &cobra.Command{
		Use:   "fuse",
		Short: "Fuse local GeoJSON layers into one merged record set",
		Long: `Fuse runs the fusion engine over local files.  Each --layer flag declares
one layer; the first is the primary layer that defines the output shape.

A layer spec is a comma-separated key=value list:

  id=crime,path=crime.geojson,metric=RATE,relevance=80

Recognized keys: id, path (required), metric, renderer, keys (| separated),
relevance.`,
		Example: `  geofusion fuse \
    --layer id=tracts,path=tracts.geojson,relevance=95 \
    --layer id=crime,path=crime.geojson,metric=RATE,relevance=80 \
    --layer id=income,path=income.geojson,metric=MEDIAN,relevance=70 \
    --query "crime and income by tract"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFuse(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.LayerSpecs, "layer", nil, "layer spec (repeatable, first is primary)")
	f.StringVarP(&opts.Query, "query", "q", "", "free-text query for the relevance gate")
	f.Float64Var(&opts.Threshold, "threshold", 0, "relevance gate threshold override (0-100)")
	f.StringSliceVar(&opts.RequiredFields, "required", nil, "fields every output record must carry")
	f.StringSliceVar(&opts.Metrics, "metric", nil, "namespaced metric fields to normalize")
	f.IntVar(&opts.Parallelism, "parallelism", 0, "match workers per layer (0 = GOMAXPROCS)")
	f.StringVar(&opts.OutFile, "out", "", "write the merged GeoJSON to a file instead of stdout")
	_ = cmd.MarkFlagRequired("layer")

	return cmd
}

func runFuse(cmd *cobra.Command, root *RootOptions, opts *FuseOptions) error {
	if len(opts.LayerSpecs) < 2 {
		return errors.New(errors.ErrCodeValidation, "fuse needs at least two --layer flags")
	}

	log, err := newCLILogger(root)
	if err != nil {
		return err
	}

	layers := make([]feature.GeoLayer, 0, len(opts.LayerSpecs))
	for _, spec := range opts.LayerSpecs {
		layer, err := loadLayerSpec(spec)
		if err != nil {
			return err
		}
		layers = append(layers, layer)
	}

	pipeline := fusion.NewPipeline(log, fusion.WithParallelism(opts.Parallelism))
	result, err := pipeline.Run(cmd.Context(), fusion.Request{
		Layers:             layers,
		QueryTerms:         opts.Query,
		RelevanceThreshold: opts.Threshold,
		RequiredFields:     opts.RequiredFields,
		Metrics:            opts.Metrics,
	})
	if err != nil {
		return err
	}

	if !result.MultiLayer {
		fmt.Fprintln(cmd.ErrOrStderr(), "relevance gate: query does not need multi-layer fusion")
	}

	if opts.OutFile != "" {
		return writeResultFile(opts.OutFile, result)
	}
	return printResult(cmd, root, result)
}

// loadLayerSpec parses one --layer flag and reads its GeoJSON file.
func loadLayerSpec(spec string) (feature.GeoLayer, error) {
	cfg := feature.LayerConfig{}
	path := ""

	for _, kv := range strings.Split(spec, ",") {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return feature.GeoLayer{}, errors.Newf(errors.ErrCodeValidation, "layer spec entry %q is not key=value", kv)
		}
		switch key {
		case "id":
			cfg.LayerID = value
		case "path":
			path = value
		case "metric":
			cfg.MetricField = value
		case "renderer":
			cfg.RendererField = value
		case "keys":
			cfg.JoinKeys = strings.Split(value, "|")
		case "relevance":
			rel, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return feature.GeoLayer{}, errors.Newf(errors.ErrCodeValidation, "layer spec relevance %q is not a number", value)
			}
			cfg.Relevance = rel
		default:
			return feature.GeoLayer{}, errors.Newf(errors.ErrCodeValidation, "unknown layer spec key %q", key)
		}
	}

	if path == "" {
		return feature.GeoLayer{}, errors.New(errors.ErrCodeValidation, "layer spec needs a path entry")
	}
	if cfg.LayerID == "" {
		cfg.LayerID = layerIDFromPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return feature.GeoLayer{}, errors.Wrap(err, errors.ErrCodeDatasetNotFound, "failed to read "+path)
	}
	fc, err := storage.DecodeFeatureCollection(path, data)
	if err != nil {
		return feature.GeoLayer{}, err
	}
	return feature.FromGeoJSON(cfg, fc), nil
}

// layerIDFromPath derives a layer id from the file name: "data/crime.geojson"
// becomes "crime".
func layerIDFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

func writeResultFile(path string, result *fusion.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode result")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to write "+path)
	}
	return nil
}
