package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gherkit/gherkit/types"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeName makes a scenario name safe for use in a filename.
func sanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "-")
	return strings.Trim(name, "-")
}

// ArtifactPrefix builds the collision-free filename prefix for a scenario's
// artifacts. The results directory is shared across all worker processes;
// qualifying names with the scenario, worker id and timestamp makes locking
// unnecessary.
func ArtifactPrefix(scenarioName string, workerID int, now time.Time) string {
	return fmt.Sprintf("%s_w%d_%d", sanitizeName(scenarioName), workerID, now.UnixMilli())
}

// ArtifactPath builds a full artifact path under the results directory.
func ArtifactPath(resultsDir, prefix, suffix string) string {
	return filepath.Join(resultsDir, prefix+"_"+suffix)
}

// CollectArtifacts scans the results directory for files carrying the given
// prefix and buckets them by extension. Paths are returned relative to the
// results directory, matching what the supervisor stores.
func CollectArtifacts(resultsDir, prefix string) (types.Artifacts, error) {
	var artifacts types.Artifacts
	if resultsDir == "" {
		return artifacts, nil
	}

	entries, err := os.ReadDir(resultsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return artifacts, nil
		}
		return artifacts, fmt.Errorf("reading results dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		name := entry.Name()
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".jpg", ".jpeg":
			artifacts.Screenshots = append(artifacts.Screenshots, name)
		case ".webm", ".mp4":
			artifacts.Videos = append(artifacts.Videos, name)
		case ".zip", ".trace":
			artifacts.Traces = append(artifacts.Traces, name)
		case ".log", ".txt":
			artifacts.Logs = append(artifacts.Logs, name)
		}
	}
	return artifacts, nil
}
