package dataprep

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0juano/fundlens/internal/config"
	"github.com/0juano/fundlens/internal/domain"
)

func monthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func makeSeries(symbol string, start time.Time, changes []float64) domain.AssetSeries {
	s := domain.AssetSeries{Symbol: symbol}
	for i, c := range changes {
		d := start.AddDate(0, i, 0)
		s.Returns = append(s.Returns, domain.ReturnPoint{Date: monthEnd(d.Year(), d.Month()), Change: c})
	}
	return s
}

func makeFund(start time.Time, changes []float64) domain.FundSeries {
	s := makeSeries("FUND", start, changes)
	return domain.FundSeries{Name: s.Symbol, Returns: s.Returns}
}

func newPreparer() *Preparer {
	cfg := config.DefaultEstimation()
	cfg.MinObservations = 6
	return New(cfg, zerolog.Nop())
}

func TestPrepare_AlignsIntersection(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14, 16})
	b := makeSeries("ETH", start, []float64{1, 1, 1, 1, 1, 1, 1, 1})

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Dataset.Rows())
	assert.Equal(t, []string{"BTC", "ETH"}, res.Dataset.Symbols)
	assert.Equal(t, 2.0, res.Dataset.X[0][0])
	assert.Equal(t, 1.0, res.Dataset.Y[0])
	assert.Empty(t, res.Excluded)
}

func TestPrepare_TrailingGapIsAlignmentError(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	// BTC stops one month before the fund's latest date.
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14})
	b := makeSeries("ETH", start, []float64{1, 1, 1, 1, 1, 1, 1, 1})

	_, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.Error(t, err)

	var alignErr *domain.DataAlignmentError
	require.ErrorAs(t, err, &alignErr)
	require.Len(t, alignErr.MissingDates, 1)
	assert.Equal(t, monthEnd(2021, time.August), alignErr.MissingDates[0])
	assert.Equal(t, monthEnd(2021, time.July), alignErr.LatestComplete)
	assert.Equal(t, monthEnd(2021, time.August), alignErr.FundMax)
}

func TestPrepare_LeadingGapIsExcludedNotFatal(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	// ETH only starts in month 3.
	lateStart := start.AddDate(0, 2, 0)
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14, 16})
	b := makeSeries("ETH", lateStart, []float64{1, 1, 1, 1, 1, 1})

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.NoError(t, err)

	assert.Equal(t, 6, res.Dataset.Rows())
	require.Len(t, res.Excluded, 2)
	assert.Contains(t, res.Excluded[0].Reason, "ETH")
}

func TestPrepare_ForwardFillsIsolatedInteriorGap(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14, 16})
	// Remove month 4 (index 3) from BTC: prior and next months exist.
	a.Returns = append(a.Returns[:3], a.Returns[4:]...)
	b := makeSeries("ETH", start, []float64{1, 1, 1, 1, 1, 1, 1, 1})

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Dataset.Rows())
	// Filled from the prior month's value, not the following month's.
	assert.Equal(t, 6.0, res.Dataset.X[3][0])
}

func TestPrepare_ForwardFillsGapIn31DayMonth(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14, 16})
	// Remove May (index 4): a month-end gap on the 31st preceded by a
	// 30-day month, where naive date arithmetic lands on the wrong key.
	require.Equal(t, monthEnd(2021, time.May), a.Returns[4].Date)
	a.Returns = append(a.Returns[:4], a.Returns[5:]...)
	b := makeSeries("ETH", start, []float64{1, 1, 1, 1, 1, 1, 1, 1})

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Dataset.Rows())
	assert.Empty(t, res.Excluded)
	// April's value, carried forward.
	assert.Equal(t, 8.0, res.Dataset.X[4][0])
}

func TestPrepare_TwoMonthGapIsNotFilled(t *testing.T) {
	start := time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	a := makeSeries("BTC", start, []float64{2, 4, 6, 8, 10, 12, 14, 16, 18, 20})
	// Remove January and February: the January gap is not isolated, so it
	// must be excluded even though December and March both have data.
	require.Equal(t, monthEnd(2021, time.January), a.Returns[1].Date)
	require.Equal(t, monthEnd(2021, time.February), a.Returns[2].Date)
	a.Returns = append(a.Returns[:1], a.Returns[3:]...)
	b := makeSeries("ETH", start, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1})

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a, b}, start)
	require.NoError(t, err)

	assert.Equal(t, 8, res.Dataset.Rows())
	require.Len(t, res.Excluded, 2)
	assert.Equal(t, monthEnd(2021, time.January), res.Excluded[0].Date)
	assert.Equal(t, monthEnd(2021, time.February), res.Excluded[1].Date)
}

func TestPrepare_InsufficientData(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3})
	a := makeSeries("BTC", start, []float64{2, 4, 6})

	_, err := newPreparer().Prepare(fund, []domain.AssetSeries{a}, start)

	var insuffErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insuffErr)
	assert.Equal(t, 3, insuffErr.Months)
	assert.Equal(t, 6, insuffErr.Minimum)
}

func TestPrepare_FlagsOutliers(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	changes := []float64{1, 1.1, 0.9, 1, 1.05, 0.95, 1, 900}
	fund := makeFund(start, []float64{1, 1, 1, 1, 1, 1.1, 0.9, 1})
	a := makeSeries("BTC", start, changes)

	res, err := newPreparer().Prepare(fund, []domain.AssetSeries{a}, start)
	require.NoError(t, err)

	require.NotEmpty(t, res.Outliers)
	assert.Equal(t, "BTC", res.Outliers[0].Symbol)
	assert.Equal(t, 900.0, res.Outliers[0].Value)
	// Flagged, not dropped.
	assert.Equal(t, 8, res.Dataset.Rows())
}

func TestTimeWeights_OldestKeepsMinimumRelativeWeight(t *testing.T) {
	p := newPreparer()
	weights := p.TimeWeights(50)

	require.Len(t, weights, 50)
	assert.InDelta(t, 1.0, weights[49], 1e-12)
	assert.InDelta(t, 0.10, weights[0], 1e-12)
	for i := 1; i < len(weights); i++ {
		assert.Greater(t, weights[i], weights[i-1])
	}
}

func TestPrepare_RejectsUnorderedDates(t *testing.T) {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	fund := makeFund(start, []float64{1, 2, 3, 4, 5, 6})
	a := makeSeries("BTC", start, []float64{1, 2, 3, 4, 5, 6})
	a.Returns[2], a.Returns[3] = a.Returns[3], a.Returns[2]

	_, err := newPreparer().Prepare(fund, []domain.AssetSeries{a}, start)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly increasing")
}
