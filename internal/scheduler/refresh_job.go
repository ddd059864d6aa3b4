package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/modules/estimation"
)

// RefreshJob re-runs the full analysis for the configured fund and stores a
// fresh report snapshot.
type RefreshJob struct {
	svc     *estimation.Service
	fund    string
	timeout time.Duration
	log     zerolog.Logger
}

func NewRefreshJob(svc *estimation.Service, fund string, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		svc:     svc,
		fund:    fund,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "analysis_refresh").Logger(),
	}
}

func (j *RefreshJob) Name() string { return "analysis_refresh" }

func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	rep, err := j.svc.Run(ctx, estimation.Request{Fund: j.fund})
	if err != nil {
		return err
	}
	j.log.Info().Str("report_id", rep.ID).Int("months", rep.DataRange.Months).Msg("analysis refreshed")
	return nil
}
