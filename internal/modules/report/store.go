package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/0juano/fundlens/internal/domain"
)

// ErrNoReports means no analysis has ever completed. Callers distinguish this
// from a run that failed.
var ErrNoReports = errors.New("no reports stored")

// Store keeps finished reports as msgpack snapshots in sqlite, newest first.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, log: log.With().Str("component", "report_store").Logger()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id           TEXT PRIMARY KEY,
			generated_at TEXT NOT NULL,
			snapshot     BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at);
	`)
	if err != nil {
		return fmt.Errorf("migrate reports: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rep *domain.AnalysisReport) error {
	blob, err := msgpack.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rep.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, generated_at, snapshot) VALUES (?, ?, ?)`,
		rep.ID, rep.GeneratedAt.Format("2006-01-02T15:04:05.999999999Z07:00"), blob)
	if err != nil {
		return fmt.Errorf("store report %s: %w", rep.ID, err)
	}
	s.log.Debug().Str("id", rep.ID).Int("bytes", len(blob)).Msg("report stored")
	return nil
}

// Latest returns the most recently generated report, or ErrNoReports when the
// store is empty.
func (s *Store) Latest(ctx context.Context) (*domain.AnalysisReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM reports ORDER BY generated_at DESC LIMIT 1`)
	return s.scan(row)
}

// Get returns one report by run ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.AnalysisReport, error) {
	row := s.db.QueryRowContext(ctx, `SELECT snapshot FROM reports WHERE id = ?`, id)
	return s.scan(row)
}

func (s *Store) scan(row *sql.Row) (*domain.AnalysisReport, error) {
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoReports
		}
		return nil, fmt.Errorf("load report: %w", err)
	}
	var rep domain.AnalysisReport
	if err := msgpack.Unmarshal(blob, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

// Prune deletes all but the newest keep reports.
func (s *Store) Prune(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM reports WHERE id NOT IN (
			SELECT id FROM reports ORDER BY generated_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("prune reports: %w", err)
	}
	return nil
}
