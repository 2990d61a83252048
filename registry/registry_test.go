package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/types"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFeatures() []types.Feature {
	return []types.Feature{
		{
			Name: "Login",
			Scenarios: []types.Scenario{
				{Name: "Valid credentials", Tags: []string{"@smoke"}},
				{Name: "Locked account", Tags: []string{"@regression"}},
			},
		},
		{
			Name: "Checkout",
			Tags: []string{"@regression"},
			Scenarios: []types.Scenario{
				{Name: "Discount codes"},
			},
		},
	}
}

func TestNewRegistryWithoutProfile(t *testing.T) {
	r, err := NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler())})
	require.NoError(t, err)

	features := testFeatures()
	assert.Equal(t, features, r.FilterFeatures(features))
}

func TestFilterFeaturesIncludeTags(t *testing.T) {
	path := writeProfile(t, "name: smoke\ninclude_tags: [\"@smoke\"]\n")
	r, err := NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler()), ProfileFile: path})
	require.NoError(t, err)

	selected := r.FilterFeatures(testFeatures())
	require.Len(t, selected, 1)
	assert.Equal(t, "Login", selected[0].Name)
	require.Len(t, selected[0].Scenarios, 1)
	assert.Equal(t, "Valid credentials", selected[0].Scenarios[0].Name)
}

func TestFilterFeaturesExcludeTagsAndFeatureTags(t *testing.T) {
	path := writeProfile(t, "exclude_tags: [\"@regression\"]\n")
	r, err := NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler()), ProfileFile: path})
	require.NoError(t, err)

	// Feature-level tags apply to every scenario of the feature, so the
	// whole Checkout feature drops out.
	selected := r.FilterFeatures(testFeatures())
	require.Len(t, selected, 1)
	assert.Equal(t, "Login", selected[0].Name)
	require.Len(t, selected[0].Scenarios, 1)
	assert.Equal(t, "Valid credentials", selected[0].Scenarios[0].Name)
}

func TestTimeoutResolution(t *testing.T) {
	path := writeProfile(t, `
scenario_timeout: 90s
timeout_overrides:
  - tag: "@slow"
    timeout: 5m
`)
	r, err := NewRegistry(Config{
		Log:            log.NewLogger(log.DiscardHandler()),
		ProfileFile:    path,
		DefaultTimeout: 2 * time.Minute,
	})
	require.NoError(t, err)

	feature := types.Feature{Name: "f"}
	slow := types.Scenario{Name: "s", Tags: []string{"@slow"}}
	plain := types.Scenario{Name: "p"}

	assert.Equal(t, 5*time.Minute, r.TimeoutFor(&feature, &slow))
	assert.Equal(t, 90*time.Second, r.TimeoutFor(&feature, &plain))

	// Without a profile the registry default applies.
	bare, err := NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler()), DefaultTimeout: 2 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, bare.TimeoutFor(&feature, &plain))
}

func TestLoadProfileErrors(t *testing.T) {
	_, err := NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler()), ProfileFile: "does-not-exist.yaml"})
	assert.Error(t, err)

	bad := writeProfile(t, "include_tags: {not: a list}\n")
	_, err = NewRegistry(Config{Log: log.NewLogger(log.DiscardHandler()), ProfileFile: bad})
	assert.Error(t, err)
}

func TestLoadFeatures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	content := `[{"name":"Login","scenarios":[{"name":"Valid credentials","steps":[{"keyword":"Given","text":"a user"}]}]}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	features, err := LoadFeatures(path)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Login", features[0].Name)
	require.Len(t, features[0].Scenarios, 1)

	_, err = LoadFeatures(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("[]"), 0o644))
	_, err = LoadFeatures(empty)
	assert.Error(t, err)
}
