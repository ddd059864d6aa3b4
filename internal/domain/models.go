// Package domain holds the core data model of the weight estimation engine.
// Types here carry no infrastructure dependencies.
package domain

import (
	"time"
)

// ReturnPoint is a single monthly observation: the period-end date and the
// month-over-month percent change in value.
type ReturnPoint struct {
	Date   time.Time `json:"date"`
	Change float64   `json:"change"`
}

// AssetSeries is the ordered monthly return history of one candidate asset.
// Dates are strictly increasing with no duplicates.
type AssetSeries struct {
	Symbol  string        `json:"symbol"`
	Returns []ReturnPoint `json:"returns"`
}

// FundSeries is the fund's monthly return history, the regression target.
// Same shape and ordering invariant as AssetSeries.
type FundSeries struct {
	Name    string        `json:"name"`
	Returns []ReturnPoint `json:"returns"`
}

// AlignedDataset is the aligned feature matrix and target vector sharing one
// date index. Every row has a value for every selected asset and the fund.
// A dataset is an immutable snapshot: runs never mutate it after preparation.
type AlignedDataset struct {
	Symbols []string
	Dates   []time.Time
	X       [][]float64 // months x assets, column order matches Symbols
	Y       []float64   // fund return per month
}

// Rows returns the number of aligned monthly observations.
func (d *AlignedDataset) Rows() int { return len(d.Y) }

// Cols returns the number of selected assets.
func (d *AlignedDataset) Cols() int { return len(d.Symbols) }

// Column extracts one asset's return series from the matrix.
func (d *AlignedDataset) Column(j int) []float64 {
	col := make([]float64, len(d.X))
	for i := range d.X {
		col[i] = d.X[i][j]
	}
	return col
}

// Clone deep-copies the dataset so resamples never alias the original rows.
func (d *AlignedDataset) Clone() *AlignedDataset {
	out := &AlignedDataset{
		Symbols: append([]string(nil), d.Symbols...),
		Dates:   append([]time.Time(nil), d.Dates...),
		X:       make([][]float64, len(d.X)),
		Y:       append([]float64(nil), d.Y...),
	}
	for i := range d.X {
		out.X[i] = append([]float64(nil), d.X[i]...)
	}
	return out
}

// ExcludedDate records a date dropped during alignment and why.
type ExcludedDate struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// OutlierFlag marks an observation beyond the robust threshold. Flagged
// observations stay in the dataset; the flag is informational.
type OutlierFlag struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Value  float64   `json:"value"`
}

// ModelResult is the outcome of a single model fit. Weights follow the
// dataset's symbol order; for tree ensembles they are normalized feature
// importances rather than regression coefficients.
type ModelResult struct {
	Name        string
	Weights     []float64
	Intercept   float64
	InSampleR2  float64
	ValidatedR2 float64
	AIC         *float64 // linear family only, diagnostic
	BIC         *float64 // linear family only, diagnostic
	Converged   bool
}

// EnsembleWeight is the final blended estimate for one asset with its
// bootstrap confidence interval. After post-processing LowerCI <= Weight <=
// UpperCI and weights sum to one across assets.
type EnsembleWeight struct {
	Weight  float64 `json:"Weight"`
	LowerCI float64 `json:"Lower_CI"`
	UpperCI float64 `json:"Upper_CI"`
}

// AssetAnalysis is the per-asset screening result. Values are nil when the
// underlying statistic is undefined (for example a zero-variance asset).
type AssetAnalysis struct {
	Pearson   *float64 `json:"Pearson_Correlation"`
	Spearman  *float64 `json:"Spearman_Correlation"`
	RSquared  *float64 `json:"R_Squared"`
	WeightOLS *float64 `json:"Weight_OLS"`
}

// DataRange describes the aligned span of the analysis.
type DataRange struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Months int    `json:"months"`
}

// BacktestSeries pairs the actual and predicted fund returns per month for
// external charting.
type BacktestSeries struct {
	Dates     []time.Time `json:"dates"`
	Actual    []float64   `json:"actual"`
	Predicted []float64   `json:"predicted"`
}

// AnalysisReport aggregates every result of one pipeline run. It is created
// fresh per invocation, owned exclusively by the requesting caller, and never
// mutated after assembly. Nullable fields hold nil where the underlying
// number is undefined; raw NaN/Inf never cross the serialization boundary.
type AnalysisReport struct {
	ID                 string                        `json:"id"`
	GeneratedAt        time.Time                     `json:"generated_at"`
	DataRange          DataRange                     `json:"data_range"`
	EnsembleWeights    map[string]EnsembleWeight     `json:"ensemble_weights"`
	IndividualAnalysis map[string]AssetAnalysis      `json:"individual_analysis"`
	TrackingError      *float64                      `json:"tracking_error"`
	ModelPerformance   map[string]*float64           `json:"model_performance"`
	ModelImportance    map[string]float64            `json:"model_importance"`
	ModelWeights       map[string]map[string]float64 `json:"model_weights"`
	VisualizationPaths map[string]string             `json:"visualization_paths"`
	ExcludedDates      []ExcludedDate                `json:"excluded_dates,omitempty"`
	Outliers           []OutlierFlag                 `json:"outliers,omitempty"`
}
