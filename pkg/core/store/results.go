package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sp1500_float/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrResultNotFound is returned by Load when no report exists for a ticker.
var ErrResultNotFound = errors.New("no stored result")

// ResultRepo stores per-ticker reports.
// Hybrid vault: Postgres when a pool is given, JSON files when a dir is given,
// both when both are.
type ResultRepo struct {
	pool    *pgxpool.Pool
	fileDir string
}

const createResultsTable = `
CREATE TABLE IF NOT EXISTS float_share_results (
	ticker           TEXT PRIMARY KEY,
	cik              TEXT,
	accession_number TEXT,
	filing_url       TEXT,
	report           JSONB NOT NULL,
	analyzed_at      TIMESTAMPTZ NOT NULL
)`

// NewResultRepo creates the table and directory as needed. With neither a
// pool nor a dir, results go to the working directory.
func NewResultRepo(ctx context.Context, pool *pgxpool.Pool, dir string) (*ResultRepo, error) {
	if pool == nil && dir == "" {
		dir = "."
	}
	if pool != nil {
		if _, err := pool.Exec(ctx, createResultsTable); err != nil {
			return nil, fmt.Errorf("create float_share_results table: %w", err)
		}
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}
	return &ResultRepo{pool: pool, fileDir: dir}, nil
}

// ResultFileName is the per-ticker output file name.
func ResultFileName(ticker string) string {
	return fmt.Sprintf("float_analysis_%s.json", strings.ToUpper(ticker))
}

// Save persists the report to every configured backend. It uses an upsert
// strategy based on ticker.
func (r *ResultRepo) Save(ctx context.Context, report *models.AnalysisReport) error {
	if report == nil || report.Ticker == "" {
		return errors.New("report has no ticker")
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if r.pool != nil {
		query := `
			INSERT INTO float_share_results (ticker, cik, accession_number, filing_url, report, analyzed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (ticker)
			DO UPDATE SET
				cik = EXCLUDED.cik,
				accession_number = EXCLUDED.accession_number,
				filing_url = EXCLUDED.filing_url,
				report = EXCLUDED.report,
				analyzed_at = EXCLUDED.analyzed_at;
		`
		analyzedAt := report.AnalyzedAt
		if analyzedAt.IsZero() {
			analyzedAt = time.Now().UTC()
		}
		if _, err := r.pool.Exec(ctx, query,
			report.Ticker, report.CIK, report.AccessionNumber, report.FilingURL, data, analyzedAt); err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
	}

	if r.fileDir != "" {
		if err := writeFileAtomic(filepath.Join(r.fileDir, ResultFileName(report.Ticker)), data); err != nil {
			return fmt.Errorf("failed to write result file: %w", err)
		}
	}
	return nil
}

// Load retrieves the stored report for ticker, preferring the database.
func (r *ResultRepo) Load(ctx context.Context, ticker string) (*models.AnalysisReport, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	var data []byte

	if r.pool != nil {
		err := r.pool.QueryRow(ctx, `SELECT report FROM float_share_results WHERE ticker = $1`, ticker).Scan(&data)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, fmt.Errorf("%w for %s", ErrResultNotFound, ticker)
		case err != nil:
			return nil, fmt.Errorf("failed to load result: %w", err)
		}
	} else {
		var err error
		data, err = os.ReadFile(filepath.Join(r.fileDir, ResultFileName(ticker)))
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for %s", ErrResultNotFound, ticker)
		}
		if err != nil {
			return nil, err
		}
	}

	var report models.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result for %s: %w", ticker, err)
	}
	return &report, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
