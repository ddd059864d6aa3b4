// Package charts renders the run's result charts to PNG files under the
// static directory so the report can link them.
package charts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	charts "github.com/vicanso/go-charts/v2"

	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/backtest"
)

type Renderer struct {
	dir string
	log zerolog.Logger
}

// New creates a renderer writing into dir. The directory is created on first
// render.
func New(dir string, log zerolog.Logger) *Renderer {
	return &Renderer{dir: dir, log: log.With().Str("component", "charts").Logger()}
}

// Inputs is everything the chart set needs from a finished run.
type Inputs struct {
	Symbols  []string
	Analyses map[string]domain.AssetAnalysis
	// ModelWeights maps model name to its per-asset weights in symbol order.
	ModelWeights map[string][]float64
	Ensemble     map[string]domain.EnsembleWeight
	Backtest     *domain.BacktestSeries
	Rolling      *backtest.WeightPath
}

// RenderAll draws every chart the inputs support and returns chart name to
// file path. A chart whose inputs are absent is skipped, not an error.
func (r *Renderer) RenderAll(in Inputs) (map[string]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chart dir: %w", err)
	}

	paths := make(map[string]string)
	render := func(name string, img []byte, err error) error {
		if err != nil {
			return fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(r.dir, name+".png")
		if err := os.WriteFile(path, img, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		paths[name] = path
		return nil
	}

	if len(in.Analyses) > 0 {
		img, err := r.correlationBars(in.Symbols, in.Analyses)
		if err := render("correlations", img, err); err != nil {
			return nil, err
		}
	}
	if len(in.ModelWeights) > 0 {
		img, err := r.modelWeightBars(in.Symbols, in.ModelWeights)
		if err := render("model_weights", img, err); err != nil {
			return nil, err
		}
	}
	if len(in.Ensemble) > 0 {
		img, err := r.ensembleBars(in.Symbols, in.Ensemble)
		if err := render("ensemble_weights", img, err); err != nil {
			return nil, err
		}
	}
	if in.Backtest != nil && len(in.Backtest.Dates) > 0 {
		img, err := r.backtestLine(in.Backtest)
		if err := render("backtest", img, err); err != nil {
			return nil, err
		}
	}
	if in.Rolling != nil && len(in.Rolling.Dates) > 0 {
		img, err := r.rollingLine(in.Rolling)
		if err := render("rolling_weights", img, err); err != nil {
			return nil, err
		}
	}

	r.log.Debug().Int("charts", len(paths)).Str("dir", r.dir).Msg("charts rendered")
	return paths, nil
}

func (r *Renderer) correlationBars(symbols []string, analyses map[string]domain.AssetAnalysis) ([]byte, error) {
	pearson := make([]float64, len(symbols))
	spearman := make([]float64, len(symbols))
	for i, sym := range symbols {
		a := analyses[sym]
		pearson[i] = deref(a.Pearson)
		spearman[i] = deref(a.Spearman)
	}
	return renderBytes(charts.BarRender([][]float64{pearson, spearman},
		charts.TitleTextOptionFunc("Correlation with fund"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: symbols}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Pearson", "Spearman"}}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	))
}

func (r *Renderer) modelWeightBars(symbols []string, modelWeights map[string][]float64) ([]byte, error) {
	names := sortedKeys(modelWeights)
	values := make([][]float64, 0, len(names))
	for _, name := range names {
		values = append(values, modelWeights[name])
	}
	return renderBytes(charts.BarRender(values,
		charts.TitleTextOptionFunc("Weights by model"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: symbols}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	))
}

func (r *Renderer) ensembleBars(symbols []string, weights map[string]domain.EnsembleWeight) ([]byte, error) {
	lower := make([]float64, len(symbols))
	point := make([]float64, len(symbols))
	upper := make([]float64, len(symbols))
	for i, sym := range symbols {
		w := weights[sym]
		lower[i] = w.LowerCI
		point[i] = w.Weight
		upper[i] = w.UpperCI
	}
	return renderBytes(charts.BarRender([][]float64{lower, point, upper},
		charts.TitleTextOptionFunc("Ensemble weights with 95% interval"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: symbols}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Lower", "Weight", "Upper"}}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	))
}

func (r *Renderer) backtestLine(series *domain.BacktestSeries) ([]byte, error) {
	labels := make([]string, len(series.Dates))
	for i, d := range series.Dates {
		labels[i] = d.Format("2006-01")
	}
	return renderBytes(charts.LineRender([][]float64{series.Actual, series.Predicted},
		charts.TitleTextOptionFunc("Actual vs predicted fund returns"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag()}),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Actual", "Predicted"}}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	))
}

func (r *Renderer) rollingLine(path *backtest.WeightPath) ([]byte, error) {
	labels := make([]string, len(path.Dates))
	for i, d := range path.Dates {
		labels[i] = d.Format("2006-01")
	}
	series := make([][]float64, len(path.Symbols))
	for j := range path.Symbols {
		series[j] = make([]float64, len(path.Weights))
		for i := range path.Weights {
			series[j][i] = path.Weights[i][j]
		}
	}
	return renderBytes(charts.LineRender(series,
		charts.TitleTextOptionFunc("Rolling 12-month weights"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag()}),
		charts.LegendOptionFunc(charts.LegendOption{Data: path.Symbols}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	))
}

func renderBytes(p *charts.Painter, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
