// Package ensemble blends per-model weight estimates into one final
// per-asset weight vector.
package ensemble

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/domain"
)

// Result is the blended outcome of one ensembling pass.
type Result struct {
	// Weights is the final per-asset weight vector in dataset column order.
	// Non-negative and summing to one.
	Weights []float64
	// ModelImportance maps model name to its contribution, summing to one
	// over the models that contributed.
	ModelImportance map[string]float64
	// ModelWeights is each model's normalized per-asset view, kept for the
	// report.
	ModelWeights map[string][]float64
}

// Blender combines model results weighted by validated performance.
type Blender struct {
	usefulnessFloor float64
	log             zerolog.Logger
}

// New creates a blender. Models whose validated R-squared is below floor
// contribute nothing.
func New(usefulnessFloor float64, log zerolog.Logger) *Blender {
	return &Blender{
		usefulnessFloor: usefulnessFloor,
		log:             log.With().Str("component", "ensemble").Logger(),
	}
}

// Blend computes the final weights.
//
// Policy (documented, applied consistently):
//  1. Each model's weight vector is first normalized on its own: negatives
//     clipped to zero, positives rescaled to sum to one.
//  2. Contribution(model) = max(0, validated R^2), floored at zero below the
//     usefulness threshold; contributions are normalized to sum to one.
//  3. Blended weight = sum over models of importance x normalized weight.
//  4. The blend is clipped and renormalized once more, so downstream
//     confidence intervals always see non-negative weights summing to one.
//
// When no model clears the floor, every model contributes equally; a small
// sample frequently validates poorly across the board and the blend is still
// the best available estimate.
func (b *Blender) Blend(results []domain.ModelResult, assetCount int) (*Result, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no model results to blend")
	}

	contributions := make([]float64, len(results))
	var total float64
	for i, r := range results {
		c := r.ValidatedR2
		if math.IsNaN(c) || c < b.usefulnessFloor {
			c = 0
		}
		contributions[i] = math.Max(0, c)
		total += contributions[i]
	}
	if total == 0 {
		b.log.Warn().
			Float64("floor", b.usefulnessFloor).
			Msg("No model cleared the usefulness floor, falling back to equal contributions")
		for i := range contributions {
			contributions[i] = 1
		}
		total = float64(len(contributions))
	}

	importance := make(map[string]float64, len(results))
	modelWeights := make(map[string][]float64, len(results))
	blended := make([]float64, assetCount)
	for i, r := range results {
		importance[r.Name] = contributions[i] / total
		normalized := clipAndRenormalize(r.Weights)
		modelWeights[r.Name] = normalized
		for j := range blended {
			blended[j] += importance[r.Name] * normalized[j]
		}
	}

	final := clipAndRenormalize(blended)
	return &Result{
		Weights:         final,
		ModelImportance: importance,
		ModelWeights:    modelWeights,
	}, nil
}

// clipAndRenormalize zeroes negative entries and rescales the rest to sum to
// one. An all-zero vector becomes uniform rather than undefined.
func clipAndRenormalize(weights []float64) []float64 {
	out := make([]float64, len(weights))
	var sum float64
	for j, w := range weights {
		if w > 0 {
			out[j] = w
			sum += w
		}
	}
	if sum == 0 {
		for j := range out {
			out[j] = 1 / float64(len(out))
		}
		return out
	}
	for j := range out {
		out[j] /= sum
	}
	return out
}
