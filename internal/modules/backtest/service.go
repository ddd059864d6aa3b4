// Package backtest replays estimated weights over the aligned history and
// measures how closely the implied portfolio tracks the fund.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/models"
)

// DefaultRollingWindow is the trailing span, in months, used when charting
// how the constrained weights drift over time.
const DefaultRollingWindow = 12

type Backtester struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Backtester {
	return &Backtester{log: log.With().Str("component", "backtest").Logger()}
}

// Result pairs the replayed series with its tracking error, the standard
// deviation of the monthly difference between predicted and actual returns.
type Result struct {
	Series        domain.BacktestSeries
	TrackingError float64
}

// Run applies the final weights across every aligned month. weights must be
// ordered like ds.Symbols.
func (b *Backtester) Run(ds *domain.AlignedDataset, weights []float64) (*Result, error) {
	if len(weights) != ds.Cols() {
		return nil, fmt.Errorf("backtest: %d weights for %d assets", len(weights), ds.Cols())
	}
	if ds.Rows() == 0 {
		return nil, fmt.Errorf("backtest: empty dataset")
	}

	n := ds.Rows()
	series := domain.BacktestSeries{
		Dates:     make([]time.Time, n),
		Actual:    make([]float64, n),
		Predicted: make([]float64, n),
	}
	diffs := make([]float64, n)
	for t := 0; t < n; t++ {
		var pred float64
		for j, w := range weights {
			pred += w * ds.X[t][j]
		}
		series.Dates[t] = ds.Dates[t]
		series.Actual[t] = ds.Y[t]
		series.Predicted[t] = pred
		diffs[t] = pred - ds.Y[t]
	}

	te := stat.PopStdDev(diffs, nil)
	b.log.Debug().Float64("tracking_error", te).Int("months", n).Msg("backtest complete")

	return &Result{Series: series, TrackingError: te}, nil
}

// WeightPath holds constrained weight estimates refit on a trailing window,
// one row per window end date.
type WeightPath struct {
	Symbols []string
	Dates   []time.Time
	Weights [][]float64
}

// RollingWeights refits the sum-to-one constrained model on each trailing
// window of the given length. Windows that fail to fit are skipped.
func (b *Backtester) RollingWeights(ctx context.Context, ds *domain.AlignedDataset, window int) (*WeightPath, error) {
	if window < 2 {
		return nil, fmt.Errorf("backtest: rolling window %d too short", window)
	}
	if ds.Rows() < window {
		return nil, fmt.Errorf("backtest: %d months is fewer than the %d-month window", ds.Rows(), window)
	}

	model := models.NewConstrained()
	uniform := make([]float64, window)
	for i := range uniform {
		uniform[i] = 1
	}

	path := &WeightPath{Symbols: append([]string(nil), ds.Symbols...)}
	for end := window; end <= ds.Rows(); end++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitted, err := model.Fit(ds.X[end-window:end], ds.Y[end-window:end], uniform, nil)
		if err != nil {
			b.log.Warn().Err(err).Time("window_end", ds.Dates[end-1]).Msg("rolling window fit skipped")
			continue
		}
		path.Dates = append(path.Dates, ds.Dates[end-1])
		path.Weights = append(path.Weights, fitted.Weights)
	}
	if len(path.Dates) == 0 {
		return nil, fmt.Errorf("backtest: no rolling window produced a fit")
	}
	return path, nil
}
