package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gherkit/gherkit/types"
)

// LoadFeatures reads a parsed feature set from a JSON file. The file is the
// hand-off point from the upstream Gherkin parser: features arrive with
// backgrounds attached and external example data already resolved to rows.
func LoadFeatures(path string) ([]types.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading features file: %w", err)
	}

	var features []types.Feature
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("parsing features file: %w", err)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("features file %s contains no features", path)
	}
	for i := range features {
		if features[i].Name == "" {
			return nil, fmt.Errorf("feature at index %d has no name", i)
		}
	}
	return features, nil
}
