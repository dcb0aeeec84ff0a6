package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"mls_syncd/models"
)

// SQLiteStore holds operational data: the sync run log and the pending
// command queue an out-of-process CLI uses to trigger manual syncs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		outcome TEXT NOT NULL DEFAULT 'running',
		agents_upserted INTEGER NOT NULL DEFAULT 0,
		listings_created INTEGER NOT NULL DEFAULT 0,
		listings_updated INTEGER NOT NULL DEFAULT 0,
		listings_skipped INTEGER NOT NULL DEFAULT 0,
		listings_enriched INTEGER NOT NULL DEFAULT 0,
		errors_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		command TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_finished ON sync_runs(finished_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// Sync runs
// =============================================================================

func (s *SQLiteStore) CreateRun(run *models.SyncRun) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sync_runs (started_at, outcome) VALUES (?, ?)`,
		run.StartedAt, run.Outcome,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.SyncRun) error {
	_, err := s.db.Exec(
		`UPDATE sync_runs SET finished_at = ?, outcome = ?, agents_upserted = ?,
			listings_created = ?, listings_updated = ?, listings_skipped = ?,
			listings_enriched = ?, errors_count = ?, error = ?
		WHERE id = ?`,
		run.FinishedAt, run.Outcome, run.AgentsUpserted,
		run.ListingsCreated, run.ListingsUpdated, run.ListingsSkipped,
		run.ListingsEnriched, run.ErrorsCount, run.Error,
		run.ID,
	)
	return err
}

// GetLastFinishedRun returns the most recently finished run, or nil
// when no run has completed yet.
func (s *SQLiteStore) GetLastFinishedRun() (*models.SyncRun, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, finished_at, outcome, agents_upserted,
			listings_created, listings_updated, listings_skipped,
			listings_enriched, errors_count, error
		FROM sync_runs
		WHERE finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1`,
	)

	var run models.SyncRun
	err := row.Scan(
		&run.ID, &run.StartedAt, &run.FinishedAt, &run.Outcome, &run.AgentsUpserted,
		&run.ListingsCreated, &run.ListingsUpdated, &run.ListingsSkipped,
		&run.ListingsEnriched, &run.ErrorsCount, &run.Error,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// =============================================================================
// Command queue
// =============================================================================

func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType) error {
	_, err := s.db.Exec(`INSERT INTO commands (command, created_at) VALUES (?, ?)`, cmd, time.Now())
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(
		`SELECT id, command, created_at FROM commands WHERE processed_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		if err := rows.Scan(&cmd.ID, &cmd.Command, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}
