// Package storage provides SQLite-backed persistence for threshold priors and
// the iteration audit log.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"

	"github.com/adgrid-network/weightd/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db            *sql.DB
	maxIterations int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/weightd/data.db.
func New(maxIterations int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "weightd", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s := &Storage{db: db, maxIterations: maxIterations}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS thresholds (
			scope       TEXT PRIMARY KEY,
			sales       REAL NOT NULL,
			revenue_usd REAL NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS iterations (
			id               TEXT PRIMARY KEY,
			started_at       INTEGER NOT NULL,
			finished_at      INTEGER NOT NULL,
			outcome          TEXT NOT NULL,
			campaigns        INTEGER NOT NULL DEFAULT 0,
			campaigns_failed INTEGER NOT NULL DEFAULT 0,
			submitted        INTEGER NOT NULL DEFAULT 0,
			message          TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS campaign_results (
			iteration_id  TEXT NOT NULL REFERENCES iterations(id) ON DELETE CASCADE,
			scope         TEXT NOT NULL,
			mechanism_id  INTEGER NOT NULL,
			miners_scored INTEGER NOT NULL DEFAULT 0,
			total_score   REAL NOT NULL DEFAULT 0,
			burn_pct      REAL NOT NULL DEFAULT 0,
			included      INTEGER NOT NULL DEFAULT 0,
			weights       TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (iteration_id, scope)
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			iteration_id TEXT NOT NULL,
			submitted_at INTEGER NOT NULL,
			success      INTEGER NOT NULL,
			message      TEXT,
			weights      TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_iterations_started_at ON iterations(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_at ON submissions(submitted_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveThresholds upserts the committed ceiling pair of every scope.
func (s *Storage) SaveThresholds(thresholds map[string]models.Thresholds) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for scope, th := range thresholds {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO thresholds (scope, sales, revenue_usd, updated_at)
			VALUES (?,?,?,?)`,
			scope, th.Sales, th.RevenueUSD, now,
		); err != nil {
			return fmt.Errorf("failed to save thresholds for %s: %w", scope, err)
		}
	}
	return tx.Commit()
}

// LoadThresholds returns the committed ceiling pair of every known scope.
func (s *Storage) LoadThresholds() (map[string]models.Thresholds, error) {
	rows, err := s.db.Query(`SELECT scope, sales, revenue_usd FROM thresholds`)
	if err != nil {
		return nil, fmt.Errorf("failed to query thresholds: %w", err)
	}
	defer rows.Close()

	thresholds := make(map[string]models.Thresholds)
	for rows.Next() {
		var scope string
		var th models.Thresholds
		if err := rows.Scan(&scope, &th.Sales, &th.RevenueUSD); err != nil {
			return nil, fmt.Errorf("failed to scan thresholds: %w", err)
		}
		thresholds[scope] = th
	}
	return thresholds, rows.Err()
}

// RecordIteration writes one epoch summary with its per-campaign results in a
// single transaction and enforces the iteration history cap. Cascading
// deletes remove the rotated iterations' campaign results.
func (s *Storage) RecordIteration(rec *models.IterationRecord, results []models.CampaignResult) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid iteration record: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO iterations
			(id, started_at, finished_at, outcome, campaigns, campaigns_failed, submitted, message)
		VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.Outcome,
		rec.Campaigns, rec.CampaignsFailed, boolToInt(rec.Submitted), rec.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert iteration: %w", err)
	}

	for _, res := range results {
		weightsJSON, err := sonic.Marshal(res.Weights)
		if err != nil {
			return fmt.Errorf("failed to marshal weights for %s: %w", res.Scope, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO campaign_results
				(iteration_id, scope, mechanism_id, miners_scored, total_score, burn_pct, included, weights)
			VALUES (?,?,?,?,?,?,?,?)`,
			rec.ID, res.Scope, res.MechanismID, res.MinersScored, res.TotalScore,
			res.BurnPct, boolToInt(res.Included), string(weightsJSON),
		); err != nil {
			return fmt.Errorf("failed to insert campaign result for %s: %w", res.Scope, err)
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM iterations WHERE id NOT IN (
			SELECT id FROM iterations ORDER BY started_at DESC LIMIT ?
		)`, s.maxIterations); err != nil {
		return fmt.Errorf("failed to enforce iteration cap: %w", err)
	}

	return tx.Commit()
}

// RecentIterations returns up to k iteration summaries, newest first.
func (s *Storage) RecentIterations(k int) ([]models.IterationRecord, error) {
	rows, err := s.db.Query(`
		SELECT `+iterationCols+` FROM iterations
		ORDER BY started_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var recs []models.IterationRecord
	for rows.Next() {
		rec, err := scanIteration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// GetIteration returns one iteration summary by ID.
func (s *Storage) GetIteration(id string) (*models.IterationRecord, error) {
	row := s.db.QueryRow(`SELECT `+iterationCols+` FROM iterations WHERE id = ?`, id)
	rec, err := scanIteration(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("iteration not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get iteration: %w", err)
	}
	return rec, nil
}

// CampaignResults returns the per-scope results of one iteration.
func (s *Storage) CampaignResults(iterationID string) ([]models.CampaignResult, error) {
	rows, err := s.db.Query(`
		SELECT iteration_id, scope, mechanism_id, miners_scored, total_score, burn_pct, included, weights
		FROM campaign_results WHERE iteration_id = ? ORDER BY scope`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign results: %w", err)
	}
	defer rows.Close()

	var results []models.CampaignResult
	for rows.Next() {
		var res models.CampaignResult
		var included int
		var weightsJSON string

		err := rows.Scan(
			&res.IterationID, &res.Scope, &res.MechanismID, &res.MinersScored,
			&res.TotalScore, &res.BurnPct, &included, &weightsJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign result: %w", err)
		}

		if err := sonic.Unmarshal([]byte(weightsJSON), &res.Weights); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
		}

		res.Included = included != 0
		results = append(results, res)
	}
	return results, rows.Err()
}

// RecordSubmission appends one ledger submission attempt to the audit trail.
func (s *Storage) RecordSubmission(rec *models.SubmissionRecord) error {
	weightsJSON, err := sonic.Marshal(rec.Weights)
	if err != nil {
		return fmt.Errorf("failed to marshal submission weights: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO submissions (iteration_id, submitted_at, success, message, weights)
		VALUES (?,?,?,?,?)`,
		rec.IterationID, rec.SubmittedAt.UnixNano(), boolToInt(rec.Success),
		rec.Message, string(weightsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}
	return nil
}

// LastSubmission returns the most recent submission attempt, or nil when
// nothing has been submitted yet.
func (s *Storage) LastSubmission() (*models.SubmissionRecord, error) {
	row := s.db.QueryRow(`
		SELECT iteration_id, submitted_at, success, message, weights
		FROM submissions ORDER BY submitted_at DESC LIMIT 1`)

	var rec models.SubmissionRecord
	var submittedAtNano int64
	var success int
	var weightsJSON string
	err := row.Scan(&rec.IterationID, &submittedAtNano, &success, &rec.Message, &weightsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}
	if err := sonic.Unmarshal([]byte(weightsJSON), &rec.Weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submission weights: %w", err)
	}
	rec.SubmittedAt = time.Unix(0, submittedAtNano)
	rec.Success = success != 0
	return &rec, nil
}

// RotateIterations keeps at most maxIterations newest iterations by start
// time. Cascading deletes remove associated campaign results.
func (s *Storage) RotateIterations() error {
	_, err := s.db.Exec(`
		DELETE FROM iterations WHERE id NOT IN (
			SELECT id FROM iterations ORDER BY started_at DESC LIMIT ?
		)`, s.maxIterations)
	if err != nil {
		return fmt.Errorf("failed to rotate iterations: %w", err)
	}
	return nil
}

const iterationCols = `id, started_at, finished_at, outcome, campaigns, campaigns_failed, submitted, message`

func scanIteration(scan func(...any) error) (*models.IterationRecord, error) {
	var rec models.IterationRecord
	var startedAtNano, finishedAtNano int64
	var submitted int
	err := scan(
		&rec.ID, &startedAtNano, &finishedAtNano, &rec.Outcome,
		&rec.Campaigns, &rec.CampaignsFailed, &submitted, &rec.Message,
	)
	if err != nil {
		return nil, err
	}
	rec.StartedAt = time.Unix(0, startedAtNano)
	rec.FinishedAt = time.Unix(0, finishedAtNano)
	rec.Submitted = submitted != 0
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
