// Package dataprep aligns, cleans, and time-weights raw monthly return
// series ahead of model fitting.
package dataprep

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/config"
	"github.com/0juano/fundlens/internal/domain"
)

const monthKeyLayout = "2006-01"

// Result is the prepared dataset together with everything that was excluded
// or flagged on the way.
type Result struct {
	Dataset  *domain.AlignedDataset
	Excluded []domain.ExcludedDate
	Outliers []domain.OutlierFlag
}

// Preparer aligns fund and asset series onto a shared monthly index.
type Preparer struct {
	minObservations int
	madFactor       float64
	minOldestWeight float64
	log             zerolog.Logger
}

// New creates a preparer from the estimation configuration.
func New(cfg config.EstimationConfig, log zerolog.Logger) *Preparer {
	return &Preparer{
		minObservations: cfg.MinObservations,
		madFactor:       cfg.OutlierMADFactor,
		minOldestWeight: cfg.MinOldestWeight,
		log:             log.With().Str("component", "dataprep").Logger(),
	}
}

// Prepare intersects the dates present in the fund and every selected asset
// series, from start through the latest available month.
//
// Policy:
//   - An isolated interior gap in an asset series is forward-filled from the
//     prior month only (no lookahead). A gap is isolated when the asset has
//     data for both the prior and the following month.
//   - Fund dates after the latest fully-covered month that lack asset data
//     are a DataAlignmentError naming those dates.
//   - Earlier dates missing data are excluded with a per-date reason.
//   - Observations beyond median +/- k*MAD are flagged, never dropped.
func (p *Preparer) Prepare(fund domain.FundSeries, assets []domain.AssetSeries, start time.Time) (*Result, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no asset series selected")
	}
	if err := checkOrdering(fund.Name, fund.Returns); err != nil {
		return nil, err
	}

	assetVals := make([]map[string]float64, len(assets))
	symbols := make([]string, len(assets))
	for j, a := range assets {
		if err := checkOrdering(a.Symbol, a.Returns); err != nil {
			return nil, err
		}
		symbols[j] = a.Symbol
		assetVals[j] = make(map[string]float64, len(a.Returns))
		for _, pt := range a.Returns {
			assetVals[j][pt.Date.Format(monthKeyLayout)] = pt.Change
		}
	}

	type candidate struct {
		date    time.Time
		row     []float64
		y       float64
		missing []string
	}

	var candidates []candidate
	for _, pt := range fund.Returns {
		if pt.Date.Before(start) {
			continue
		}
		key := pt.Date.Format(monthKeyLayout)
		row := make([]float64, len(assets))
		var missing []string
		for j := range assets {
			v, ok := assetVals[j][key]
			if !ok {
				v, ok = p.forwardFill(assetVals[j], pt.Date)
				if ok {
					p.log.Debug().
						Str("symbol", symbols[j]).
						Str("month", key).
						Msg("Forward-filled isolated gap from prior month")
				}
			}
			if !ok {
				missing = append(missing, symbols[j])
				continue
			}
			row[j] = v
		}
		candidates = append(candidates, candidate{date: pt.Date, row: row, y: pt.Change, missing: missing})
	}

	var (
		ds       = &domain.AlignedDataset{Symbols: symbols}
		excluded []domain.ExcludedDate
	)
	latestComplete := time.Time{}
	for _, c := range candidates {
		if len(c.missing) == 0 && c.date.After(latestComplete) {
			latestComplete = c.date
		}
	}

	var trailingMissing []time.Time
	for _, c := range candidates {
		if len(c.missing) == 0 {
			ds.Dates = append(ds.Dates, c.date)
			ds.X = append(ds.X, c.row)
			ds.Y = append(ds.Y, c.y)
			continue
		}
		if c.date.After(latestComplete) {
			trailingMissing = append(trailingMissing, c.date)
			continue
		}
		excluded = append(excluded, domain.ExcludedDate{
			Date:   c.date,
			Reason: fmt.Sprintf("missing data for %v", c.missing),
		})
	}

	if len(trailingMissing) > 0 {
		fundMax := fund.Returns[len(fund.Returns)-1].Date
		return nil, &domain.DataAlignmentError{
			MissingDates:   trailingMissing,
			LatestComplete: latestComplete,
			FundMax:        fundMax,
		}
	}

	if ds.Rows() < p.minObservations {
		return nil, &domain.InsufficientDataError{Months: ds.Rows(), Minimum: p.minObservations}
	}

	outliers := p.flagOutliers(ds, fund.Name)

	p.log.Info().
		Int("months", ds.Rows()).
		Int("assets", ds.Cols()).
		Int("excluded", len(excluded)).
		Int("outliers", len(outliers)).
		Str("start", ds.Dates[0].Format("2006-01-02")).
		Str("end", ds.Dates[len(ds.Dates)-1].Format("2006-01-02")).
		Msg("Prepared aligned dataset")

	return &Result{Dataset: ds, Excluded: excluded, Outliers: outliers}, nil
}

// forwardFill returns the asset's prior-month value when the gap at date is
// isolated: prior and following months both have data.
func (p *Preparer) forwardFill(vals map[string]float64, date time.Time) (float64, bool) {
	prev, okPrev := vals[monthKey(date, -1)]
	_, okNext := vals[monthKey(date, 1)]
	if okPrev && okNext {
		return prev, true
	}
	return 0, false
}

// monthKey returns the key of the month offset whole months from date's
// month. The arithmetic runs on the first of the month: adding a month to a
// month-end date would overflow into the wrong neighbor (Jan 31 + 1 month
// normalizes to Mar 3).
func monthKey(date time.Time, offset int) string {
	first := time.Date(date.Year(), date.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
	return first.Format(monthKeyLayout)
}

// TimeWeights returns per-observation exponential decay weights for n
// chronologically ordered observations. The newest observation has weight 1;
// the oldest keeps the configured minimum relative weight:
//
//	w_i = exp(-lambda * age_i), lambda = ln(1/MinOldestWeight) / (n-1)
func (p *Preparer) TimeWeights(n int) []float64 {
	weights := make([]float64, n)
	if n <= 1 {
		for i := range weights {
			weights[i] = 1
		}
		return weights
	}
	lambda := math.Log(1/p.minOldestWeight) / float64(n-1)
	for i := 0; i < n; i++ {
		age := float64(n - 1 - i)
		weights[i] = math.Exp(-lambda * age)
	}
	return weights
}

// flagOutliers marks observations beyond median +/- k*MAD, per column. Small
// samples make silent dropping dangerous, so flagged rows stay in the data.
func (p *Preparer) flagOutliers(ds *domain.AlignedDataset, fundName string) []domain.OutlierFlag {
	var flags []domain.OutlierFlag
	flagColumn := func(symbol string, col []float64) {
		med, mad := medianAndMAD(col)
		if mad == 0 {
			return
		}
		for i, v := range col {
			if math.Abs(v-med) > p.madFactor*mad {
				flags = append(flags, domain.OutlierFlag{Symbol: symbol, Date: ds.Dates[i], Value: v})
			}
		}
	}
	for j, sym := range ds.Symbols {
		flagColumn(sym, ds.Column(j))
	}
	flagColumn(fundName, ds.Y)
	return flags
}

func medianAndMAD(values []float64) (median, mad float64) {
	median = medianOf(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - median)
	}
	mad = medianOf(dev)
	return median, mad
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func checkOrdering(name string, points []domain.ReturnPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("series %s is empty", name)
	}
	for i := 1; i < len(points); i++ {
		if !points[i].Date.After(points[i-1].Date) {
			return fmt.Errorf("series %s: dates must be strictly increasing at index %d", name, i)
		}
	}
	return nil
}
