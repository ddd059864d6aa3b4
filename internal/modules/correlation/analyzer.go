// Package correlation screens candidate assets against the fund series.
package correlation

import (
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/0juano/fundlens/internal/domain"
)

// Analyzer computes per-asset association statistics with the fund return.
type Analyzer struct {
	log zerolog.Logger
}

// New creates a correlation analyzer.
func New(log zerolog.Logger) *Analyzer {
	return &Analyzer{log: log.With().Str("component", "correlation").Logger()}
}

// Analyze returns, per asset: Pearson r, Spearman rho, and the R-squared and
// slope of a univariate weighted OLS of the fund on that asset alone (with
// intercept). A zero-variance asset yields nil statistics rather than NaN.
func (a *Analyzer) Analyze(ds *domain.AlignedDataset, timeWeights []float64) map[string]domain.AssetAnalysis {
	out := make(map[string]domain.AssetAnalysis, ds.Cols())
	fundVar := stat.Variance(ds.Y, nil)

	for j, symbol := range ds.Symbols {
		col := ds.Column(j)
		if stat.Variance(col, nil) == 0 || fundVar == 0 {
			a.log.Warn().Str("symbol", symbol).Msg("Zero variance, reporting null statistics")
			out[symbol] = domain.AssetAnalysis{}
			continue
		}

		pearson := stat.Correlation(col, ds.Y, nil)
		spearman := stat.Correlation(ranks(col), ranks(ds.Y), nil)

		intercept, slope := stat.LinearRegression(col, ds.Y, timeWeights, false)
		r2 := stat.RSquared(col, ds.Y, timeWeights, intercept, slope)

		out[symbol] = domain.AssetAnalysis{
			Pearson:   finiteOrNil(pearson),
			Spearman:  finiteOrNil(spearman),
			RSquared:  finiteOrNil(r2),
			WeightOLS: finiteOrNil(slope),
		}
	}
	return out
}

// ranks maps values to their fractional ranks, averaging ties, for the
// Spearman correlation.
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	for i := 0; i < len(idx); {
		k := i
		for k+1 < len(idx) && values[idx[k+1]] == values[idx[i]] {
			k++
		}
		// Average rank across the tie group, 1-based.
		avg := float64(i+k)/2 + 1
		for m := i; m <= k; m++ {
			out[idx[m]] = avg
		}
		i = k + 1
	}
	return out
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
