// Package uncertainty estimates confidence intervals around the ensemble
// weights with a moving-block bootstrap.
package uncertainty

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/0juano/fundlens/internal/config"
	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/ensemble"
	"github.com/0juano/fundlens/internal/modules/models"
)

const (
	lowerPercentile = 0.025
	upperPercentile = 0.975
)

// Estimator resamples contiguous time blocks, reruns the model bank and the
// blender on each resample, and reads confidence intervals off the resampled
// weight distribution.
type Estimator struct {
	resamples int
	blockLen  int
	seed      int64
	bank      *models.Bank
	blender   *ensemble.Blender
	log       zerolog.Logger
}

// New creates an estimator that reuses the given bank and blender. Callers
// typically hand in instances with a quiet logger; per-resample exclusions
// are expected and not worth logging five hundred times.
func New(cfg config.EstimationConfig, bank *models.Bank, blender *ensemble.Blender, log zerolog.Logger) *Estimator {
	return &Estimator{
		resamples: cfg.BootstrapResamples,
		blockLen:  cfg.BlockLength,
		seed:      cfg.Seed,
		bank:      bank,
		blender:   blender,
		log:       log.With().Str("component", "uncertainty").Logger(),
	}
}

// ConfidenceIntervals returns per-asset [2.5th, 97.5th] percentile bounds of
// the resampled weight distribution, clamped so Lower <= point <= Upper even
// in degenerate near-zero-weight cases.
//
// Every resample draws its blocks from an independent RNG stream derived
// from the configured seed and the resample index, so results are identical
// whether iterations run in parallel or sequentially. Cancellation is
// honored between iterations.
func (e *Estimator) ConfidenceIntervals(ctx context.Context, ds *domain.AlignedDataset, timeWeights []float64, point []float64) (lower, upper []float64, err error) {
	if e.resamples < 1 {
		return nil, nil, fmt.Errorf("bootstrap resamples must be >= 1, got %d", e.resamples)
	}

	samples := make([][]float64, e.resamples)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i := 0; i < e.resamples; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(e.seed + int64(i)*0x51a1))
			resampled := e.resample(ds, rng)

			results, err := e.bank.FitAll(ctx, resampled, timeWeights, rng.Int63())
			if err != nil {
				// A degenerate resample is skipped, not fatal -- unless the
				// whole run was cancelled.
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			blended, err := e.blender.Blend(results, ds.Cols())
			if err != nil {
				return nil
			}
			samples[i] = blended.Weights
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	usable := make([][]float64, 0, len(samples))
	for _, s := range samples {
		if s != nil {
			usable = append(usable, s)
		}
	}

	lower = make([]float64, ds.Cols())
	upper = make([]float64, ds.Cols())
	if len(usable) == 0 {
		e.log.Warn().Msg("Every bootstrap resample failed, collapsing to zero-width intervals")
		copy(lower, point)
		copy(upper, point)
		return lower, upper, nil
	}

	for j := 0; j < ds.Cols(); j++ {
		values := make([]float64, len(usable))
		for k, s := range usable {
			values[k] = s[j]
		}
		sort.Float64s(values)
		lower[j] = percentile(values, lowerPercentile)
		upper[j] = percentile(values, upperPercentile)
		if lower[j] > point[j] {
			lower[j] = point[j]
		}
		if upper[j] < point[j] {
			upper[j] = point[j]
		}
	}

	e.log.Info().
		Int("resamples", e.resamples).
		Int("usable", len(usable)).
		Int("block_length", e.blockLen).
		Msg("Bootstrap confidence intervals computed")
	return lower, upper, nil
}

// resample draws contiguous blocks with replacement until the original
// length is reached, preserving short-range serial correlation.
func (e *Estimator) resample(ds *domain.AlignedDataset, rng *rand.Rand) *domain.AlignedDataset {
	n := ds.Rows()
	blockLen := e.blockLen
	if blockLen < 1 {
		blockLen = 1
	}
	if blockLen > n {
		blockLen = n
	}

	out := &domain.AlignedDataset{
		Symbols: ds.Symbols,
		Dates:   ds.Dates,
		X:       make([][]float64, 0, n),
		Y:       make([]float64, 0, n),
	}
	for len(out.Y) < n {
		start := rng.Intn(n - blockLen + 1)
		for k := 0; k < blockLen && len(out.Y) < n; k++ {
			out.X = append(out.X, ds.X[start+k])
			out.Y = append(out.Y, ds.Y[start+k])
		}
	}
	return out
}

// percentile reads the empirical quantile off sorted values using the
// nearest-rank convention.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
