package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FUNDLENS_DATA_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultMinObservations, cfg.Estimation.MinObservations)
	assert.Equal(t, DefaultBootstrapResamples, cfg.Estimation.BootstrapResamples)
	assert.Equal(t, int64(DefaultBootstrapSeed), cfg.Estimation.Seed)
	assert.Empty(t, cfg.RefreshSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("FUNDLENS_DATA_DIR", t.TempDir())
	t.Setenv("FUNDLENS_PORT", "9000")
	t.Setenv("FUNDLENS_MIN_OBSERVATIONS", "24")
	t.Setenv("FUNDLENS_BOOTSTRAP_RESAMPLES", "100")
	t.Setenv("FUNDLENS_MIN_OLDEST_WEIGHT", "0.25")
	t.Setenv("FUNDLENS_REFRESH_SCHEDULE", "@daily")
	t.Setenv("FUNDLENS_FUND_SYMBOL", "FUND")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 24, cfg.Estimation.MinObservations)
	assert.Equal(t, 100, cfg.Estimation.BootstrapResamples)
	assert.Equal(t, 0.25, cfg.Estimation.MinOldestWeight)
	assert.Equal(t, "@daily", cfg.RefreshSchedule)
	assert.Equal(t, "FUND", cfg.FundSymbol)
}

func TestLoad_Validation(t *testing.T) {
	t.Setenv("FUNDLENS_DATA_DIR", t.TempDir())

	t.Run("oldest weight out of range", func(t *testing.T) {
		t.Setenv("FUNDLENS_MIN_OLDEST_WEIGHT", "1.5")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("block length too short", func(t *testing.T) {
		t.Setenv("FUNDLENS_BOOTSTRAP_BLOCK_LENGTH", "1")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("schedule without fund", func(t *testing.T) {
		t.Setenv("FUNDLENS_REFRESH_SCHEDULE", "@daily")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad int", func(t *testing.T) {
		t.Setenv("FUNDLENS_PORT", "not-a-port")
		_, err := Load()
		require.Error(t, err)
	})
}
