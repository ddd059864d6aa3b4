package models

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/0juano/fundlens/internal/domain"
)

// Bank fits every registered model family against one aligned dataset. Fits
// are independent, so they fan out across goroutines and the caller blocks
// until all of them (succeeded or failed) report in.
type Bank struct {
	models []Model
	log    zerolog.Logger
}

// NewBank registers the full model lineup.
func NewBank(log zerolog.Logger) *Bank {
	return &Bank{
		models: []Model{
			OLS{},
			NewConstrained(),
			Ridge{},
			Lasso{},
			ElasticNet{},
			RandomForest{},
			GradientBoosting{},
		},
		log: log.With().Str("component", "model_bank").Logger(),
	}
}

// ModelNames lists the registered families in fit order.
func (b *Bank) ModelNames() []string {
	names := make([]string, len(b.models))
	for i, m := range b.models {
		names[i] = m.Name()
	}
	return names
}

// FitAll trains every family on the dataset. A model that fails to fit is
// logged and excluded, never aborting the run; when nothing survives the
// bank escalates with NoUsableModelsError.
//
// Reproducibility: every model derives its RNG stream from the seed and its
// own name, so results are identical regardless of goroutine scheduling.
func (b *Bank) FitAll(ctx context.Context, ds *domain.AlignedDataset, timeWeights []float64, seed int64) ([]domain.ModelResult, error) {
	results := make([]*domain.ModelResult, len(b.models))

	g, ctx := errgroup.WithContext(ctx)
	for i, m := range b.models {
		i, m := i, m
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := b.fitOne(m, ds, timeWeights, seed)
			if err != nil {
				b.log.Warn().
					Err(&domain.ModelFitError{Model: m.Name(), Err: err}).
					Str("model", m.Name()).
					Msg("Model excluded from run")
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	usable := make([]domain.ModelResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			usable = append(usable, *r)
		}
	}
	if len(usable) == 0 {
		return nil, &domain.NoUsableModelsError{Attempted: len(b.models)}
	}

	b.log.Info().
		Int("usable", len(usable)).
		Int("attempted", len(b.models)).
		Msg("Model bank fits complete")
	return usable, nil
}

func (b *Bank) fitOne(m Model, ds *domain.AlignedDataset, w []float64, seed int64) (*domain.ModelResult, error) {
	fitted, err := m.Fit(ds.X, ds.Y, w, modelRNG(seed, m.Name(), 0))
	if err != nil {
		return nil, err
	}

	predicted := make([]float64, ds.Rows())
	for i, row := range ds.X {
		predicted[i] = fitted.Predict(row)
	}
	inSample := rSquared(predicted, ds.Y, w)

	validated, err := validatedR2(m, ds.X, ds.Y, w, modelRNG(seed, m.Name(), 1))
	if err != nil {
		// In-sample fit succeeded but the sample cannot support this
		// family's validation; keep the model visible but worthless to the
		// ensemble.
		b.log.Warn().Str("model", m.Name()).Err(err).Msg("Validation unavailable")
		validated = math.NaN()
	}

	result := &domain.ModelResult{
		Name:        m.Name(),
		Weights:     fitted.Weights,
		Intercept:   fitted.Intercept,
		InSampleR2:  inSample,
		ValidatedR2: validated,
		Converged:   fitted.Converged,
	}
	if fitted.Linear {
		aic, bic := informationCriteria(predicted, ds.Y, w, fitted.Params)
		result.AIC = aic
		result.BIC = bic
	}
	return result, nil
}

// informationCriteria computes AIC/BIC from the weighted residual sum of
// squares, with weights rescaled to sum to n so the criteria stay on the
// usual scale. Diagnostic only.
func informationCriteria(predicted, actual, w []float64, params int) (aic, bic *float64) {
	n := len(actual)
	var sumW float64
	for _, wi := range w {
		sumW += wi
	}
	if n == 0 || sumW == 0 {
		return nil, nil
	}
	scale := float64(n) / sumW
	var rss float64
	for i := range actual {
		d := actual[i] - predicted[i]
		rss += scale * w[i] * d * d
	}
	if rss <= 0 {
		return nil, nil
	}
	nf := float64(n)
	k := float64(params)
	a := nf*math.Log(rss/nf) + 2*k
	bb := nf*math.Log(rss/nf) + k*math.Log(nf)
	return &a, &bb
}

// modelRNG derives an independent deterministic stream per model and stage.
func modelRNG(seed int64, name string, stage int64) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64()) ^ (stage * 0x9e3779b9)))
}
