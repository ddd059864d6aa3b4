package models

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0juano/fundlens/internal/domain"
)

func bankDataset(n int, seed int64) *domain.AlignedDataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &domain.AlignedDataset{Symbols: []string{"BTC", "ETH", "NOISE"}}
	base := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		a := rng.NormFloat64() * 10
		b := rng.NormFloat64() * 10
		c := rng.NormFloat64() * 10
		ds.Dates = append(ds.Dates, base.AddDate(0, i, 0))
		ds.X = append(ds.X, []float64{a, b, c})
		ds.Y = append(ds.Y, 0.7*a+0.3*b)
	}
	return ds
}

func TestBank_FitAllProducesUsableResults(t *testing.T) {
	ds := bankDataset(50, 21)
	bank := NewBank(zerolog.Nop())

	results, err := bank.FitAll(context.Background(), ds, uniform(50), 42)
	require.NoError(t, err)
	require.Len(t, results, 7)

	seen := make(map[string]domain.ModelResult)
	for _, r := range results {
		seen[r.Name] = r
	}
	for _, name := range bank.ModelNames() {
		require.Contains(t, seen, name)
	}

	// A noiseless linear target: the linear models should validate well.
	assert.Greater(t, seen["OLS"].ValidatedR2, 0.9)
	assert.Greater(t, seen["Ridge"].ValidatedR2, 0.9)

	// AIC/BIC only for the linear family.
	assert.NotNil(t, seen["OLS"].AIC)
	assert.NotNil(t, seen["Lasso"].BIC)
	assert.Nil(t, seen["RandomForest"].AIC)
	assert.Nil(t, seen["GradientBoosting"].BIC)
}

func TestBank_Deterministic(t *testing.T) {
	ds := bankDataset(50, 22)
	bank := NewBank(zerolog.Nop())

	first, err := bank.FitAll(context.Background(), ds, uniform(50), 42)
	require.NoError(t, err)
	second, err := bank.FitAll(context.Background(), ds, uniform(50), 42)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Name, second[i].Name)
		assert.Equal(t, first[i].Weights, second[i].Weights)
		assert.Equal(t, first[i].ValidatedR2, second[i].ValidatedR2)
	}
}

func TestBank_MinimumObservationCount(t *testing.T) {
	ds := bankDataset(12, 23)
	bank := NewBank(zerolog.Nop())

	results, err := bank.FitAll(context.Background(), ds, uniform(12), 42)
	require.NoError(t, err)
	// At twelve months some families may drop out, but the run completes
	// with at least one usable model.
	assert.NotEmpty(t, results)
}

func TestBank_CancelledContext(t *testing.T) {
	ds := bankDataset(50, 24)
	bank := NewBank(zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bank.FitAll(ctx, ds, uniform(50), 42)
	require.ErrorIs(t, err, context.Canceled)
}
