package charts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/backtest"
)

func ptr(v float64) *float64 { return &v }

func TestRenderAll_WritesEveryChart(t *testing.T) {
	dir := t.TempDir()
	symbols := []string{"BTC", "ETH"}
	dates := []time.Time{
		time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	paths, err := New(dir, zerolog.Nop()).RenderAll(Inputs{
		Symbols: symbols,
		Analyses: map[string]domain.AssetAnalysis{
			"BTC": {Pearson: ptr(0.9), Spearman: ptr(0.8)},
			"ETH": {Pearson: ptr(0.4)},
		},
		ModelWeights: map[string][]float64{
			"ols":   {0.7, 0.3},
			"ridge": {0.6, 0.4},
		},
		Ensemble: map[string]domain.EnsembleWeight{
			"BTC": {Weight: 0.65, LowerCI: 0.5, UpperCI: 0.8},
			"ETH": {Weight: 0.35, LowerCI: 0.2, UpperCI: 0.5},
		},
		Backtest: &domain.BacktestSeries{
			Dates:     dates,
			Actual:    []float64{1, -2, 3},
			Predicted: []float64{1.1, -1.8, 2.9},
		},
		Rolling: &backtest.WeightPath{
			Symbols: symbols,
			Dates:   dates,
			Weights: [][]float64{{0.6, 0.4}, {0.65, 0.35}, {0.7, 0.3}},
		},
	})
	require.NoError(t, err)

	for _, name := range []string{"correlations", "model_weights", "ensemble_weights", "backtest", "rolling_weights"} {
		path, ok := paths[name]
		require.Truef(t, ok, "missing chart %s", name)
		assert.Equal(t, filepath.Join(dir, name+".png"), path)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestRenderAll_SkipsAbsentInputs(t *testing.T) {
	paths, err := New(t.TempDir(), zerolog.Nop()).RenderAll(Inputs{Symbols: []string{"BTC"}})
	require.NoError(t, err)
	assert.Empty(t, paths)
}
