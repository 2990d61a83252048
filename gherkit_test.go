package gherkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gherkit/gherkit/types"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		FeaturesPath:    filepath.Join(t.TempDir(), "features.json"),
		ScenarioTimeout: 2 * time.Minute,
		GlobalTimeout:   10 * time.Minute,
		RunOnce:         true,
		LogDir:          t.TempDir(),
		ResultsDir:      t.TempDir(),
		Log:             log.NewLogger(log.DiscardHandler()),
	}
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "v0.1.0", func(error) {})
	require.ErrorContains(t, err, "config is required")
}

func TestNewCreatesService(t *testing.T) {
	g, err := New(context.Background(), testConfig(t), "v0.1.0", func(error) {})
	require.NoError(t, err)
	require.NotNil(t, g)

	// Nothing is running until Start
	assert.True(t, g.Stopped())
	assert.Nil(t, g.Result())
}

func TestNewRejectsBadProfile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, "v0.1.0", func(error) {})
	require.ErrorContains(t, err, "failed to load run profile")
}

func TestRunMissingFeaturesIsRuntimeError(t *testing.T) {
	cfg := testConfig(t)
	g, err := New(context.Background(), cfg, "v0.1.0", func(error) {})
	require.NoError(t, err)

	// The feature file does not exist, so the run fails before any worker
	// is spawned.
	err = g.run()
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.ErrorContains(t, err, "failed to load features")
}

func TestScenarioTimeoutHonorsProfileOverrides(t *testing.T) {
	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(
		"name: slow\n"+
			"timeout_overrides:\n"+
			"  - tag: \"@slow\"\n"+
			"    timeout: 5m\n"), 0o644))

	cfg := testConfig(t)
	cfg.ProfilePath = profile
	g, err := New(context.Background(), cfg, "v0.1.0", func(error) {})
	require.NoError(t, err)

	items := []types.WorkItem{
		{
			Feature:  types.Feature{Name: "Checkout"},
			Scenario: types.Scenario{Name: "Bulk order", Tags: []string{"@slow"}},
		},
		{
			Feature:  types.Feature{Name: "Checkout"},
			Scenario: types.Scenario{Name: "Single item"},
		},
	}

	// The slow-tagged override raises the pool-wide stuck threshold.
	assert.Equal(t, 5*time.Minute, g.scenarioTimeout(items))

	// Without matching overrides the configured timeout stands.
	assert.Equal(t, 2*time.Minute, g.scenarioTimeout(items[1:]))
}

func TestStopIsIdempotent(t *testing.T) {
	g, err := New(context.Background(), testConfig(t), "v0.1.0", func(error) {})
	require.NoError(t, err)

	require.NoError(t, g.Stop(context.Background()))
	require.NoError(t, g.Stop(context.Background()))
	assert.True(t, g.Stopped())
}
