// Package report assembles the results of a pipeline run into the stable
// JSON report and persists snapshots of it.
package report

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/backtest"
	"github.com/0juano/fundlens/internal/modules/ensemble"
)

const monthLayout = "2006-01"

type Assembler struct {
	log zerolog.Logger
}

func NewAssembler(log zerolog.Logger) *Assembler {
	return &Assembler{log: log.With().Str("component", "report").Logger()}
}

// Inputs collects everything a finished run produced.
type Inputs struct {
	Dataset            *domain.AlignedDataset
	Analyses           map[string]domain.AssetAnalysis
	Models             []domain.ModelResult
	Ensemble           *ensemble.Result
	LowerCI, UpperCI   []float64
	Backtest           *backtest.Result
	VisualizationPaths map[string]string
	Excluded           []domain.ExcludedDate
	Outliers           []domain.OutlierFlag
}

// Assemble builds a fresh AnalysisReport. Nullable statistics carry nil where
// the underlying number is not finite; a non-finite value in a required field
// is a SerializationError, never emitted as NaN.
func (a *Assembler) Assemble(in Inputs) (*domain.AnalysisReport, error) {
	rep := &domain.AnalysisReport{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		DataRange: domain.DataRange{
			Start:  in.Dataset.Dates[0].Format(monthLayout),
			End:    in.Dataset.Dates[in.Dataset.Rows()-1].Format(monthLayout),
			Months: in.Dataset.Rows(),
		},
		EnsembleWeights:    make(map[string]domain.EnsembleWeight, in.Dataset.Cols()),
		IndividualAnalysis: sanitizeAnalyses(in.Analyses),
		ModelPerformance:   make(map[string]*float64, len(in.Models)),
		ModelImportance:    make(map[string]float64, len(in.Models)),
		ModelWeights:       make(map[string]map[string]float64, len(in.Models)),
		VisualizationPaths: in.VisualizationPaths,
		ExcludedDates:      in.Excluded,
		Outliers:           in.Outliers,
	}

	for j, sym := range in.Dataset.Symbols {
		w := in.Ensemble.Weights[j]
		lo, hi := in.LowerCI[j], in.UpperCI[j]
		if !isFinite(w) {
			return nil, &domain.SerializationError{Field: "ensemble_weights." + sym, Value: w}
		}
		if !isFinite(lo) || !isFinite(hi) {
			return nil, &domain.SerializationError{Field: "ensemble_weights." + sym, Value: math.NaN()}
		}
		rep.EnsembleWeights[sym] = domain.EnsembleWeight{Weight: w, LowerCI: lo, UpperCI: hi}
	}

	for _, m := range in.Models {
		rep.ModelPerformance[m.Name] = finiteOrNil(m.ValidatedR2)
	}
	for name, imp := range in.Ensemble.ModelImportance {
		if !isFinite(imp) {
			return nil, &domain.SerializationError{Field: "model_importance." + name, Value: imp}
		}
		rep.ModelImportance[name] = imp
	}
	for name, weights := range in.Ensemble.ModelWeights {
		byAsset := make(map[string]float64, len(weights))
		for j, sym := range in.Dataset.Symbols {
			if !isFinite(weights[j]) {
				return nil, &domain.SerializationError{Field: "model_weights." + name + "." + sym, Value: weights[j]}
			}
			byAsset[sym] = weights[j]
		}
		rep.ModelWeights[name] = byAsset
	}

	if in.Backtest != nil {
		rep.TrackingError = finiteOrNil(in.Backtest.TrackingError)
	}

	a.log.Info().
		Str("id", rep.ID).
		Int("assets", in.Dataset.Cols()).
		Int("months", in.Dataset.Rows()).
		Msg("report assembled")
	return rep, nil
}

func sanitizeAnalyses(in map[string]domain.AssetAnalysis) map[string]domain.AssetAnalysis {
	out := make(map[string]domain.AssetAnalysis, len(in))
	for sym, a := range in {
		out[sym] = domain.AssetAnalysis{
			Pearson:   finitePtrOrNil(a.Pearson),
			Spearman:  finitePtrOrNil(a.Spearman),
			RSquared:  finitePtrOrNil(a.RSquared),
			WeightOLS: finitePtrOrNil(a.WeightOLS),
		}
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrNil(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

func finitePtrOrNil(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	return v
}
