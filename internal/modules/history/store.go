// Package history stores monthly return series for the fund and its
// candidate assets in sqlite and imports them from CSV.
package history

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/0juano/fundlens/internal/domain"
)

// ErrSeriesNotFound means the requested symbol has no stored observations.
var ErrSeriesNotFound = errors.New("series not found")

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, log zerolog.Logger) (*Store, error) {
	s := &Store{db: db, log: log.With().Str("component", "history").Logger()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS monthly_returns (
			symbol     TEXT NOT NULL,
			month      TEXT NOT NULL,
			pct_change REAL NOT NULL,
			PRIMARY KEY (symbol, month)
		);
		CREATE INDEX IF NOT EXISTS idx_returns_symbol ON monthly_returns(symbol);
	`)
	if err != nil {
		return fmt.Errorf("migrate monthly_returns: %w", err)
	}
	return nil
}

// Upsert stores one observation, replacing any existing value for the same
// symbol and month.
func (s *Store) Upsert(ctx context.Context, symbol string, month time.Time, change float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_returns (symbol, month, pct_change) VALUES (?, ?, ?)
		ON CONFLICT(symbol, month) DO UPDATE SET pct_change = excluded.pct_change`,
		symbol, month.Format("2006-01"), change)
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", symbol, month.Format("2006-01"), err)
	}
	return nil
}

// Series returns the ordered monthly returns for one symbol. Dates are
// month-end, matching the alignment convention downstream.
func (s *Store) Series(ctx context.Context, symbol string) ([]domain.ReturnPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT month, pct_change FROM monthly_returns
		WHERE symbol = ? ORDER BY month ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("query series %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []domain.ReturnPoint
	for rows.Next() {
		var month string
		var change float64
		if err := rows.Scan(&month, &change); err != nil {
			return nil, fmt.Errorf("scan series %s: %w", symbol, err)
		}
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return nil, fmt.Errorf("stored month %q for %s: %w", month, symbol, err)
		}
		points = append(points, domain.ReturnPoint{Date: monthEnd(parsed), Change: change})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSeriesNotFound, symbol)
	}
	return points, nil
}

// Symbols lists every stored symbol in lexical order.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT symbol FROM monthly_returns ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ImportCSV loads rows of `symbol,month,pct_change` (header required, month
// as YYYY-MM or YYYY-MM-DD). The import is transactional: a bad row aborts
// the whole file. Returns the number of rows imported.
func (s *Store) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) != 3 {
		return 0, fmt.Errorf("csv header has %d columns, want 3 (symbol,month,pct_change)", len(header))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monthly_returns (symbol, month, pct_change) VALUES (?, ?, ?)
		ON CONFLICT(symbol, month) DO UPDATE SET pct_change = excluded.pct_change`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	count := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read csv row %d: %w", count+2, err)
		}
		month, err := parseMonth(record[1])
		if err != nil {
			return 0, fmt.Errorf("csv row %d: %w", count+2, err)
		}
		change, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return 0, fmt.Errorf("csv row %d: bad pct_change %q: %w", count+2, record[2], err)
		}
		if _, err := stmt.ExecContext(ctx, record[0], month.Format("2006-01"), change); err != nil {
			return 0, fmt.Errorf("csv row %d: %w", count+2, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	s.log.Info().Int("rows", count).Msg("csv import complete")
	return count, nil
}

func parseMonth(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad month %q", value)
}

// monthEnd returns the last day of the given month.
func monthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}
