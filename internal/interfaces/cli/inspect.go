package cli

import (
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
)

// InspectReport summarizes one GeoJSON file for the inspect command.
type InspectReport struct {
	Path          string   `json:"path"`
	Features      int      `json:"features"`
	ValidFeatures int      `json:"valid_features"`
	WithGeometry  int      `json:"with_geometry"`
	Fields        []string `json:"fields"`
}

// NewInspectCmd builds the inspect subcommand: validates a GeoJSON file and
// reports how the fusion engine would see it.
func NewInspectCmd(root *RootOptions) *cobra.Command {
	var joinKeys []string

	cmd := &cobra.Command{
		Use:   "inspect <file.geojson>",
		Short: "Validate a GeoJSON file and report its fusion eligibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := inspectFile(args[0], joinKeys)
			if err != nil {
				return err
			}
			return printResult(cmd, root, report)
		},
	}

	cmd.Flags().StringSliceVar(&joinKeys, "keys", nil, "identifier fields to check (default ID, OBJECTID, FID, NAME)")
	return cmd
}

func inspectFile(path string, joinKeys []string) (*InspectReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetNotFound, "failed to read "+path)
	}
	fc, err := storage.DecodeFeatureCollection(path, data)
	if err != nil {
		return nil, err
	}

	layer := feature.FromGeoJSON(feature.LayerConfig{LayerID: layerIDFromPath(path), JoinKeys: joinKeys}, fc)

	report := &InspectReport{
		Path:     path,
		Features: len(layer.Features),
	}
	fieldSet := map[string]struct{}{}
	for i := range layer.Features {
		f := &layer.Features[i]
		if f.HasGeometry() {
			report.WithGeometry++
		}
		if f.Valid(layer.Config.EffectiveJoinKeys()) {
			report.ValidFeatures++
		}
		for name := range f.Attributes {
			fieldSet[name] = struct{}{}
		}
	}
	report.Fields = sortedKeys(fieldSet)
	return report, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
