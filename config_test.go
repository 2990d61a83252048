package gherkit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/gherkit/gherkit/flags"
)

// buildConfig runs NewConfig through a real cli context.
func buildConfig(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	var cfg *Config
	var cfgErr error
	app := &cli.App{
		Flags: flags.Flags,
		Action: func(ctx *cli.Context) error {
			cfg, cfgErr = NewConfig(ctx, log.NewLogger(log.DiscardHandler()), ctx.String(flags.Features.Name))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"gherkit"}, args...)))
	return cfg, cfgErr
}

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := buildConfig(t, "--features", "features.json")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.FeaturesPath))
	assert.True(t, filepath.IsAbs(cfg.LogDir))
	assert.True(t, filepath.IsAbs(cfg.ResultsDir))
	assert.Empty(t, cfg.ProfilePath)

	// Zero interval means run-once
	assert.True(t, cfg.RunOnce)
	assert.Zero(t, cfg.RunInterval)

	assert.Equal(t, 2*time.Minute, cfg.ScenarioTimeout)
	assert.Equal(t, 10*time.Minute, cfg.GlobalTimeout)
	assert.Equal(t, 5, cfg.ErrorThreshold)
	assert.Zero(t, cfg.MaxWorkers)
	assert.Zero(t, cfg.RestartAfter)
	assert.False(t, cfg.ShowProgress)
}

func TestNewConfigContinuousMode(t *testing.T) {
	cfg, err := buildConfig(t, "--features", "features.json", "--run-interval", "30m")
	require.NoError(t, err)

	assert.False(t, cfg.RunOnce)
	assert.Equal(t, 30*time.Minute, cfg.RunInterval)
}

func TestNewConfigOverrides(t *testing.T) {
	cfg, err := buildConfig(t,
		"--features", "features.json",
		"--profile", "smoke.yaml",
		"--project", "webshop",
		"--environment", "staging",
		"--max-workers", "4",
		"--scenario-timeout", "45s",
		"--restart-after", "25",
		"--show-progress",
	)
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.ProfilePath))
	assert.Equal(t, "webshop", cfg.Project)
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 45*time.Second, cfg.ScenarioTimeout)
	assert.Equal(t, 25, cfg.RestartAfter)
	assert.True(t, cfg.ShowProgress)
}

func TestNewConfigRequiresFeatures(t *testing.T) {
	_, err := buildConfig(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features")
}

func TestNewConfigRejectsNegativeWorkers(t *testing.T) {
	_, err := buildConfig(t, "--features", "features.json", "--max-workers", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max-workers")
}
