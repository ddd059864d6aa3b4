package report

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/backtest"
	"github.com/0juano/fundlens/internal/modules/ensemble"
)

func ptr(v float64) *float64 { return &v }

func sampleInputs() Inputs {
	ds := &domain.AlignedDataset{
		Symbols: []string{"BTC", "ETH"},
		Dates: []time.Time{
			time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 2, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 3, 31, 0, 0, 0, 0, time.UTC),
		},
		X: [][]float64{{1, 2}, {3, 4}, {5, 6}},
		Y: []float64{1.5, 3.5, 5.5},
	}
	return Inputs{
		Dataset: ds,
		Analyses: map[string]domain.AssetAnalysis{
			"BTC": {Pearson: ptr(0.9), Spearman: ptr(0.85), RSquared: ptr(0.8), WeightOLS: ptr(0.7)},
			"ETH": {},
		},
		Models: []domain.ModelResult{
			{Name: "ols", ValidatedR2: 0.88},
			{Name: "random_forest", ValidatedR2: math.NaN()},
		},
		Ensemble: &ensemble.Result{
			Weights:         []float64{0.7, 0.3},
			ModelImportance: map[string]float64{"ols": 1},
			ModelWeights:    map[string][]float64{"ols": {0.7, 0.3}},
		},
		LowerCI:  []float64{0.6, 0.2},
		UpperCI:  []float64{0.8, 0.4},
		Backtest: &backtest.Result{TrackingError: 1.25},
	}
}

func TestAssemble_FullReport(t *testing.T) {
	rep, err := NewAssembler(zerolog.Nop()).Assemble(sampleInputs())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, "2022-01", rep.DataRange.Start)
	assert.Equal(t, "2022-03", rep.DataRange.End)
	assert.Equal(t, 3, rep.DataRange.Months)

	btc := rep.EnsembleWeights["BTC"]
	assert.Equal(t, 0.7, btc.Weight)
	assert.Equal(t, 0.6, btc.LowerCI)
	assert.Equal(t, 0.8, btc.UpperCI)

	require.NotNil(t, rep.ModelPerformance["ols"])
	assert.Equal(t, 0.88, *rep.ModelPerformance["ols"])
	assert.Nil(t, rep.ModelPerformance["random_forest"])

	require.NotNil(t, rep.TrackingError)
	assert.Equal(t, 1.25, *rep.TrackingError)
	assert.Equal(t, 0.3, rep.ModelWeights["ols"]["ETH"])
}

func TestAssemble_NonFiniteWeightRejected(t *testing.T) {
	in := sampleInputs()
	in.Ensemble.Weights[0] = math.NaN()

	_, err := NewAssembler(zerolog.Nop()).Assemble(in)
	var serr *domain.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Field, "BTC")
}

func TestAssemble_JSONEncodesNulls(t *testing.T) {
	in := sampleInputs()
	in.Backtest.TrackingError = math.Inf(1)
	rep, err := NewAssembler(zerolog.Nop()).Assemble(in)
	require.NoError(t, err)

	blob, err := json.Marshal(rep)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(blob, &decoded))
	assert.Nil(t, decoded["tracking_error"])

	eth := decoded["individual_analysis"].(map[string]any)["ETH"].(map[string]any)
	assert.Nil(t, eth["Pearson_Correlation"])
}
