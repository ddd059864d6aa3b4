// Package estimation orchestrates one full analysis run: load series,
// prepare, screen and fit in parallel, blend, bootstrap, backtest, render
// and assemble the report.
package estimation

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/0juano/fundlens/internal/config"
	"github.com/0juano/fundlens/internal/domain"
	"github.com/0juano/fundlens/internal/modules/backtest"
	"github.com/0juano/fundlens/internal/modules/charts"
	"github.com/0juano/fundlens/internal/modules/correlation"
	"github.com/0juano/fundlens/internal/modules/dataprep"
	"github.com/0juano/fundlens/internal/modules/ensemble"
	"github.com/0juano/fundlens/internal/modules/history"
	"github.com/0juano/fundlens/internal/modules/models"
	"github.com/0juano/fundlens/internal/modules/report"
	"github.com/0juano/fundlens/internal/modules/uncertainty"
)

// State names the pipeline stage a run is in. Runs move strictly forward;
// any error sends the run to StateFailed.
type State string

const (
	StateLoad      State = "load"
	StatePrepare   State = "prepare"
	StateAnalyze   State = "analyze"
	StateEnsemble  State = "ensemble"
	StateBootstrap State = "bootstrap"
	StateBacktest  State = "backtest"
	StateAssemble  State = "assemble"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

// Request describes one analysis run. Assets empty means every stored symbol
// except the fund. A zero Start means the full history.
type Request struct {
	Fund   string    `json:"fund"`
	Assets []string  `json:"assets,omitempty"`
	Start  time.Time `json:"start,omitempty"`
}

// Service wires the run pipeline. Each Run builds its own state; the service
// itself holds no per-run mutable data and is safe for concurrent use.
type Service struct {
	cfg         config.EstimationConfig
	history     *history.Store
	preparer    *dataprep.Preparer
	analyzer    *correlation.Analyzer
	bank        *models.Bank
	blender     *ensemble.Blender
	uncertainty *uncertainty.Estimator
	backtester  *backtest.Backtester
	charts      *charts.Renderer // nil disables chart rendering
	assembler   *report.Assembler
	reports     *report.Store // nil disables persistence
	log         zerolog.Logger
}

// Options carries the optional collaborators.
type Options struct {
	Charts  *charts.Renderer
	Reports *report.Store
}

func NewService(cfg config.EstimationConfig, store *history.Store, log zerolog.Logger, opts Options) *Service {
	bank := models.NewBank(log)
	blender := ensemble.New(cfg.UsefulnessFloor, log)
	// The bootstrap reruns the bank and blender once per resample; those
	// copies log nowhere so degenerate resamples do not warn hundreds of
	// times per run.
	quiet := zerolog.Nop()
	return &Service{
		cfg:         cfg,
		history:     store,
		preparer:    dataprep.New(cfg, log),
		analyzer:    correlation.New(log),
		bank:        bank,
		blender:     blender,
		uncertainty: uncertainty.New(cfg, models.NewBank(quiet), ensemble.New(cfg.UsefulnessFloor, quiet), log),
		backtester:  backtest.New(log),
		charts:      opts.Charts,
		assembler:   report.NewAssembler(log),
		reports:     opts.Reports,
		log:         log.With().Str("component", "estimation").Logger(),
	}
}

type run struct {
	state State
	log   zerolog.Logger
}

func (r *run) advance(next State) {
	r.log.Info().Str("from", string(r.state)).Str("to", string(next)).Msg("state")
	r.state = next
}

func (r *run) fail(err error) error {
	at := r.state
	r.log.Error().Err(err).Str("state", string(at)).Msg("run failed")
	r.state = StateFailed
	return fmt.Errorf("%s: %w", at, err)
}

// Run executes the whole pipeline and returns the assembled report.
func (s *Service) Run(ctx context.Context, req Request) (*domain.AnalysisReport, error) {
	r := &run{state: StateLoad, log: s.log.With().Str("fund", req.Fund).Logger()}

	fund, assets, err := s.load(ctx, req)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StatePrepare)
	prep, err := s.preparer.Prepare(fund, assets, req.Start)
	if err != nil {
		return nil, r.fail(err)
	}
	ds := prep.Dataset
	timeWeights := s.preparer.TimeWeights(ds.Rows())

	r.advance(StateAnalyze)
	var (
		analyses map[string]domain.AssetAnalysis
		results  []domain.ModelResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analyses = s.analyzer.Analyze(ds, timeWeights)
		return nil
	})
	g.Go(func() error {
		var ferr error
		results, ferr = s.bank.FitAll(gctx, ds, timeWeights, s.cfg.Seed)
		return ferr
	})
	if err := g.Wait(); err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateEnsemble)
	blend, err := s.blender.Blend(results, ds.Cols())
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateBootstrap)
	lower, upper, err := s.uncertainty.ConfidenceIntervals(ctx, ds, timeWeights, blend.Weights)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateBacktest)
	bt, err := s.backtester.Run(ds, blend.Weights)
	if err != nil {
		return nil, r.fail(err)
	}
	var rolling *backtest.WeightPath
	if ds.Rows() >= backtest.DefaultRollingWindow {
		rolling, err = s.backtester.RollingWeights(ctx, ds, backtest.DefaultRollingWindow)
		if err != nil {
			// Rolling weights only feed a chart; a failed fit is not fatal.
			r.log.Warn().Err(err).Msg("rolling weights skipped")
			rolling = nil
		}
	}

	r.advance(StateAssemble)
	rep, err := s.assemble(ctx, r, prep, analyses, results, blend, lower, upper, bt, rolling)
	if err != nil {
		return nil, r.fail(err)
	}

	r.advance(StateDone)
	return rep, nil
}

func (s *Service) load(ctx context.Context, req Request) (domain.FundSeries, []domain.AssetSeries, error) {
	var fund domain.FundSeries
	if req.Fund == "" {
		return fund, nil, fmt.Errorf("no fund symbol given")
	}
	points, err := s.history.Series(ctx, req.Fund)
	if err != nil {
		return fund, nil, err
	}
	fund = domain.FundSeries{Name: req.Fund, Returns: points}

	symbols := req.Assets
	if len(symbols) == 0 {
		all, err := s.history.Symbols(ctx)
		if err != nil {
			return fund, nil, err
		}
		for _, sym := range all {
			if sym != req.Fund {
				symbols = append(symbols, sym)
			}
		}
	}
	if len(symbols) == 0 {
		return fund, nil, fmt.Errorf("no candidate assets for %s", req.Fund)
	}

	assets := make([]domain.AssetSeries, 0, len(symbols))
	for _, sym := range symbols {
		pts, err := s.history.Series(ctx, sym)
		if err != nil {
			return fund, nil, err
		}
		assets = append(assets, domain.AssetSeries{Symbol: sym, Returns: pts})
	}
	return fund, assets, nil
}

func (s *Service) assemble(
	ctx context.Context,
	r *run,
	prep *dataprep.Result,
	analyses map[string]domain.AssetAnalysis,
	results []domain.ModelResult,
	blend *ensemble.Result,
	lower, upper []float64,
	bt *backtest.Result,
	rolling *backtest.WeightPath,
) (*domain.AnalysisReport, error) {
	ds := prep.Dataset

	var vizPaths map[string]string
	if s.charts != nil {
		ensembleWeights := make(map[string]domain.EnsembleWeight, ds.Cols())
		for j, sym := range ds.Symbols {
			ensembleWeights[sym] = domain.EnsembleWeight{
				Weight: blend.Weights[j], LowerCI: lower[j], UpperCI: upper[j],
			}
		}
		paths, err := s.charts.RenderAll(charts.Inputs{
			Symbols:      ds.Symbols,
			Analyses:     analyses,
			ModelWeights: blend.ModelWeights,
			Ensemble:     ensembleWeights,
			Backtest:     &bt.Series,
			Rolling:      rolling,
		})
		if err != nil {
			// Charts are a presentation concern; the report stands without them.
			r.log.Warn().Err(err).Msg("chart rendering skipped")
		} else {
			vizPaths = paths
		}
	}

	rep, err := s.assembler.Assemble(report.Inputs{
		Dataset:            ds,
		Analyses:           analyses,
		Models:             results,
		Ensemble:           blend,
		LowerCI:            lower,
		UpperCI:            upper,
		Backtest:           bt,
		VisualizationPaths: vizPaths,
		Excluded:           prep.Excluded,
		Outliers:           prep.Outliers,
	})
	if err != nil {
		return nil, err
	}

	if s.reports != nil {
		if err := s.reports.Save(ctx, rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}
