/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface of the consumption engine
  (ConfigStore, WorklogStore, MetricStore, RegularizationStore,
  TicketStore, SyncRunStore) using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  work_packages:     Contracted units of service
  validity_periods:  Time-ranged contract terms per work package
  correction_models: Named, versioned correction configs (one default)
  model_assignments: Time-ranged model-to-work-package bindings
  worklog_entries:   Normalized reported time, replaced per month
  monthly_metrics:   One consumed-hours row per (wp, year, month)
  regularizations:   Returns / manual consumptions / excess
  tickets:           Issue metadata for the T&M classifier
  sync_runs:         Pipeline run records + the stop flag

UNIQUENESS KEYS (enforced by the schema, not by discipline):
  monthly_metrics          PRIMARY KEY (work_package_id, year, month)
  correction_models        PRIMARY KEY code
  model_assignments        UNIQUE (work_package_id, start_date)
  regularizations (manual) UNIQUE (wp, date, ticket, quantity)
  regularizations (excess) UNIQUE period_id

WRITE DISCIPLINES:
  - ReplaceMonth: DELETE + INSERT inside one transaction
  - UpsertMetric: INSERT .. ON CONFLICT DO UPDATE
  - SetDefaultModel: clear all defaults, set one, single transaction

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/billing-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Work packages
	CREATE TABLE IF NOT EXISTS work_packages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		client_id TEXT,
		account_key TEXT,
		scope_unit TEXT NOT NULL DEFAULT 'hours',
		valid_ticket_types_json TEXT,
		include_evolutive_tm BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	-- Validity periods (time-ranged contract terms)
	CREATE TABLE IF NOT EXISTS validity_periods (
		id TEXT PRIMARY KEY,
		work_package_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_quantity TEXT NOT NULL,
		rate TEXT NOT NULL,
		regularization_rate TEXT,
		surplus_strategy TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_periods_wp
		ON validity_periods(work_package_id, start_date);

	-- Correction models (versioned JSON configs)
	CREATE TABLE IF NOT EXISTS correction_models (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		is_default BOOLEAN DEFAULT FALSE,
		version INTEGER DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Model assignments (time-ranged bindings)
	CREATE TABLE IF NOT EXISTS model_assignments (
		id TEXT PRIMARY KEY,
		work_package_id TEXT NOT NULL,
		model_code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(work_package_id, start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_assignments_wp
		ON model_assignments(work_package_id, start_date);

	-- Worklog entries (replaced wholesale per (wp, month) on re-sync)
	CREATE TABLE IF NOT EXISTS worklog_entries (
		id TEXT PRIMARY KEY,
		work_package_id TEXT NOT NULL,
		issue_key TEXT,
		author TEXT,
		hours TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		issue_type TEXT,
		billing_mode TEXT,
		manual_tag TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_worklogs_wp_bucket
		ON worklog_entries(work_package_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_worklogs_wp_date
		ON worklog_entries(work_package_id, entry_date);
	CREATE INDEX IF NOT EXISTS idx_worklogs_issue
		ON worklog_entries(issue_key);

	-- Monthly metrics: exactly one row per (wp, year, month)
	CREATE TABLE IF NOT EXISTS monthly_metrics (
		work_package_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		consumed_hours TEXT NOT NULL,
		entry_count INTEGER DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (work_package_id, year, month)
	);

	-- Regularization ledger
	CREATE TABLE IF NOT EXISTS regularizations (
		id TEXT PRIMARY KEY,
		work_package_id TEXT NOT NULL,
		reg_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		reg_date TEXT NOT NULL,
		ticket_key TEXT,
		note TEXT,
		reviewed_for_duplicates BOOLEAN DEFAULT FALSE,
		revenue_recognized BOOLEAN DEFAULT FALSE,
		billed BOOLEAN DEFAULT FALSE,
		period_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_regularizations_wp_date
		ON regularizations(work_package_id, reg_date);

	-- Natural-key defense against duplicate manual consumptions. The
	-- ticket key is coalesced so ticketless entries collide too; SQLite
	-- treats NULLs as distinct in unique indexes.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_regularizations_manual_unique
		ON regularizations(work_package_id, reg_date, COALESCE(ticket_key, ''), quantity)
		WHERE reg_type = 'manual_consumption';

	-- One excess entry per validity period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_regularizations_excess_unique
		ON regularizations(period_id)
		WHERE reg_type = 'excess';

	-- Tickets (for the T&M classifier)
	CREATE TABLE IF NOT EXISTS tickets (
		issue_key TEXT NOT NULL,
		work_package_id TEXT NOT NULL,
		issue_type TEXT,
		billing_mode TEXT,
		created_date TEXT,
		status TEXT,
		estimate_hours TEXT,
		PRIMARY KEY (issue_key, work_package_id)
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_wp
		ON tickets(work_package_id);

	-- Sync runs
	CREATE TABLE IF NOT EXISTS sync_runs (
		id TEXT PRIMARY KEY,
		work_package_id TEXT NOT NULL,
		window_start TEXT NOT NULL,
		window_end TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT,
		entries_synced INTEGER DEFAULT 0,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_sync_runs_wp
		ON sync_runs(work_package_id, started_at DESC);

	-- Single-row control table for the batch stop flag
	CREATE TABLE IF NOT EXISTS sync_control (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		stopped BOOLEAN DEFAULT FALSE
	);
	INSERT OR IGNORE INTO sync_control (id, stopped) VALUES (1, FALSE);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CONFIG STORE (ledger.ConfigStore interface)
// =============================================================================

// SaveWorkPackage inserts or updates a work package.
func (s *Store) SaveWorkPackage(ctx context.Context, wp ledger.WorkPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	typesJSON, _ := json.Marshal(wp.ValidTicketTypes)
	createdAt := wp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO work_packages
		(id, name, client_id, account_key, scope_unit, valid_ticket_types_json, include_evolutive_tm, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			client_id = excluded.client_id,
			account_key = excluded.account_key,
			scope_unit = excluded.scope_unit,
			valid_ticket_types_json = excluded.valid_ticket_types_json,
			include_evolutive_tm = excluded.include_evolutive_tm
	`

	_, err := s.db.ExecContext(ctx, query,
		wp.ID, wp.Name, wp.ClientID, wp.AccountKey, wp.ScopeUnit,
		string(typesJSON), wp.IncludeEvolutiveTM,
		createdAt.Format(time.RFC3339),
	)
	return err
}

// GetWorkPackage retrieves a work package by ID. Returns nil when missing.
func (s *Store) GetWorkPackage(ctx context.Context, id ledger.WorkPackageID) (*ledger.WorkPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, client_id, account_key, scope_unit, valid_ticket_types_json, include_evolutive_tm, created_at
		FROM work_packages WHERE id = ?`, id)

	wp, err := scanWorkPackage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wp, nil
}

// ListWorkPackages returns all work packages.
func (s *Store) ListWorkPackages(ctx context.Context) ([]ledger.WorkPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, client_id, account_key, scope_unit, valid_ticket_types_json, include_evolutive_tm, created_at
		FROM work_packages ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.WorkPackage
	for rows.Next() {
		wp, err := scanWorkPackage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *wp)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkPackage(row rowScanner) (*ledger.WorkPackage, error) {
	var (
		wp        ledger.WorkPackage
		clientID  sql.NullString
		account   sql.NullString
		typesJSON sql.NullString
		createdAt string
	)
	err := row.Scan(&wp.ID, &wp.Name, &clientID, &account, &wp.ScopeUnit,
		&typesJSON, &wp.IncludeEvolutiveTM, &createdAt)
	if err != nil {
		return nil, err
	}
	wp.ClientID = clientID.String
	wp.AccountKey = account.String
	if typesJSON.Valid && typesJSON.String != "" {
		json.Unmarshal([]byte(typesJSON.String), &wp.ValidTicketTypes)
	}
	wp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &wp, nil
}

// SavePeriod inserts or updates a validity period.
func (s *Store) SavePeriod(ctx context.Context, p ledger.ValidityPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var regRate *string
	if p.RegularizationRate != nil {
		v := p.RegularizationRate.String()
		regRate = &v
	}

	query := `
		INSERT INTO validity_periods
		(id, work_package_id, start_date, end_date, total_quantity, rate, regularization_rate, surplus_strategy, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			total_quantity = excluded.total_quantity,
			rate = excluded.rate,
			regularization_rate = excluded.regularization_rate,
			surplus_strategy = excluded.surplus_strategy
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.WorkPackageID, p.Start.String(), p.End.String(),
		p.TotalQuantity.String(), p.Rate.String(), regRate,
		nullString(p.SurplusStrategy), createdAt.Format(time.RFC3339),
	)
	return err
}

// ListPeriods returns a work package's validity periods, oldest first.
func (s *Store) ListPeriods(ctx context.Context, wpID ledger.WorkPackageID) ([]ledger.ValidityPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_package_id, start_date, end_date, total_quantity, rate, regularization_rate, surplus_strategy, created_at
		FROM validity_periods WHERE work_package_id = ? ORDER BY start_date`, wpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.ValidityPeriod
	for rows.Next() {
		var (
			p         ledger.ValidityPeriod
			start     string
			end       string
			quantity  string
			rate      string
			regRate   sql.NullString
			strategy  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.WorkPackageID, &start, &end, &quantity, &rate, &regRate, &strategy, &createdAt); err != nil {
			return nil, err
		}
		p.Start, _ = ledger.ParseDate(start)
		p.End, _ = ledger.ParseDate(end)
		p.TotalQuantity = mustDecimal(quantity)
		p.Rate = mustDecimal(rate)
		if regRate.Valid {
			d := mustDecimal(regRate.String)
			p.RegularizationRate = &d
		}
		p.SurplusStrategy = strategy.String
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, p)
	}
	return result, rows.Err()
}

// SaveModel inserts or updates a correction model by code, bumping the
// version on update. The default flag is never written here; default
// changes go through SetDefaultModel so at most one model holds it.
func (s *Store) SaveModel(ctx context.Context, m ledger.CorrectionModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := marshalConfig(m.Config)
	if err != nil {
		return err
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO correction_models (code, name, config_json, is_default, version, created_at)
		VALUES (?, ?, ?, FALSE, 1, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			version = correction_models.version + 1
	`

	_, err = s.db.ExecContext(ctx, query,
		m.Code, m.Name, configJSON, createdAt.Format(time.RFC3339))
	return err
}

// GetModel retrieves a correction model by code. Returns nil when missing.
func (s *Store) GetModel(ctx context.Context, code string) (*ledger.CorrectionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT code, name, config_json, is_default, version, created_at
		FROM correction_models WHERE code = ?`, code)

	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListModels returns all correction models.
func (s *Store) ListModels(ctx context.Context) ([]ledger.CorrectionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, name, config_json, is_default, version, created_at
		FROM correction_models ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.CorrectionModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func scanModel(row rowScanner) (*ledger.CorrectionModel, error) {
	var (
		m          ledger.CorrectionModel
		configJSON string
		createdAt  string
	)
	if err := row.Scan(&m.Code, &m.Name, &configJSON, &m.IsDefault, &m.Version, &createdAt); err != nil {
		return nil, err
	}
	cfg, err := unmarshalConfig(configJSON)
	if err != nil {
		return nil, fmt.Errorf("stored config for model %q is invalid: %w", m.Code, err)
	}
	m.Config = cfg
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

// SetDefaultModel makes exactly one model the system default. Clear all,
// then set one, inside a single transaction: concurrent readers never
// observe two defaults.
func (s *Store) SetDefaultModel(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM correction_models WHERE code = ?", code).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ledger.ErrModelNotFound
	}

	if _, err := tx.ExecContext(ctx, "UPDATE correction_models SET is_default = FALSE WHERE is_default = TRUE"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE correction_models SET is_default = TRUE WHERE code = ?", code); err != nil {
		return err
	}

	return tx.Commit()
}

// GetDefaultModel returns the model flagged default, or nil.
func (s *Store) GetDefaultModel(ctx context.Context) (*ledger.CorrectionModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT code, name, config_json, is_default, version, created_at
		FROM correction_models WHERE is_default = TRUE LIMIT 1`)

	m, err := scanModel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SaveAssignment inserts or updates a model assignment.
func (s *Store) SaveAssignment(ctx context.Context, a ledger.ModelAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var end *string
	if a.End != nil {
		v := a.End.String()
		end = &v
	}

	query := `
		INSERT INTO model_assignments (id, work_package_id, model_code, start_date, end_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_package_id, start_date) DO UPDATE SET
			model_code = excluded.model_code,
			end_date = excluded.end_date
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.WorkPackageID, a.ModelCode, a.Start.String(), end,
		createdAt.Format(time.RFC3339))
	return err
}

// ListAssignments returns a work package's model assignments.
func (s *Store) ListAssignments(ctx context.Context, wpID ledger.WorkPackageID) ([]ledger.ModelAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_package_id, model_code, start_date, end_date, created_at
		FROM model_assignments WHERE work_package_id = ? ORDER BY start_date`, wpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.ModelAssignment
	for rows.Next() {
		var (
			a         ledger.ModelAssignment
			start     string
			end       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.WorkPackageID, &a.ModelCode, &start, &end, &createdAt); err != nil {
			return nil, err
		}
		a.Start, _ = ledger.ParseDate(start)
		if end.Valid {
			d, _ := ledger.ParseDate(end.String)
			a.End = &d
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// WORKLOG STORE (ledger.WorklogStore interface)
// =============================================================================

// ReplaceMonth atomically replaces a month bucket's entries. This is the
// only write path for worklogs: re-syncs replace, never append.
func (s *Store) ReplaceMonth(ctx context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey, entries []ledger.WorklogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"DELETE FROM worklog_entries WHERE work_package_id = ? AND year = ? AND month = ?",
		wpID, month.Year, int(month.Month))
	if err != nil {
		return err
	}

	query := `
		INSERT INTO worklog_entries
		(id, work_package_id, issue_key, author, hours, entry_date, year, month, issue_type, billing_mode, manual_tag)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, query,
			e.ID, e.WorkPackageID, e.IssueKey, e.Author, e.Hours.String(),
			e.Date.String(), e.Year, int(e.Month),
			nullString(e.IssueType), nullString(e.BillingMode), nullString(e.ManualTag))
		if err != nil {
			return fmt.Errorf("failed to insert worklog %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// EntriesForMonth returns a month bucket's entries.
func (s *Store) EntriesForMonth(ctx context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey) ([]ledger.WorklogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, work_package_id, issue_key, author, hours, entry_date, year, month, issue_type, billing_mode, manual_tag
		FROM worklog_entries
		WHERE work_package_id = ? AND year = ? AND month = ?
		ORDER BY entry_date, id
	`
	return s.queryWorklogs(ctx, query, wpID, month.Year, int(month.Month))
}

// EntriesInRange returns entries with effective date in [from, to].
func (s *Store) EntriesInRange(ctx context.Context, wpID ledger.WorkPackageID, from, to ledger.Date) ([]ledger.WorklogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, work_package_id, issue_key, author, hours, entry_date, year, month, issue_type, billing_mode, manual_tag
		FROM worklog_entries
		WHERE work_package_id = ? AND entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date, id
	`
	return s.queryWorklogs(ctx, query, wpID, from.String(), to.String())
}

func (s *Store) queryWorklogs(ctx context.Context, query string, args ...any) ([]ledger.WorklogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query worklogs: %w", err)
	}
	defer rows.Close()

	var result []ledger.WorklogEntry
	for rows.Next() {
		var (
			e           ledger.WorklogEntry
			issueKey    sql.NullString
			author      sql.NullString
			hours       string
			entryDate   string
			month       int
			issueType   sql.NullString
			billingMode sql.NullString
			manualTag   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.WorkPackageID, &issueKey, &author, &hours,
			&entryDate, &e.Year, &month, &issueType, &billingMode, &manualTag); err != nil {
			return nil, fmt.Errorf("failed to scan worklog: %w", err)
		}
		e.IssueKey = issueKey.String
		e.Author = author.String
		e.Hours = mustDecimal(hours)
		e.Date, _ = ledger.ParseDate(entryDate)
		e.Month = time.Month(month)
		e.IssueType = issueType.String
		e.BillingMode = billingMode.String
		e.ManualTag = manualTag.String
		result = append(result, e)
	}
	return result, rows.Err()
}

// =============================================================================
// METRIC STORE (ledger.MetricStore interface)
// =============================================================================

// UpsertMetric replaces the single metric row for (wp, year, month).
func (s *Store) UpsertMetric(ctx context.Context, m ledger.MonthlyMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO monthly_metrics (work_package_id, year, month, consumed_hours, entry_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(work_package_id, year, month) DO UPDATE SET
			consumed_hours = excluded.consumed_hours,
			entry_count = excluded.entry_count,
			updated_at = excluded.updated_at
	`

	updatedAt := m.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		m.WorkPackageID, m.Year, int(m.Month), m.ConsumedHours.String(),
		m.EntryCount, updatedAt.Format(time.RFC3339))
	return err
}

// GetMetric returns the metric for one bucket, or nil.
func (s *Store) GetMetric(ctx context.Context, wpID ledger.WorkPackageID, month ledger.MonthKey) (*ledger.MonthlyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT work_package_id, year, month, consumed_hours, entry_count, updated_at
		FROM monthly_metrics WHERE work_package_id = ? AND year = ? AND month = ?`,
		wpID, month.Year, int(month.Month))

	m, err := scanMetric(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MetricsInRange returns metrics whose first-of-month falls in [from, to].
func (s *Store) MetricsInRange(ctx context.Context, wpID ledger.WorkPackageID, from, to ledger.Date) ([]ledger.MonthlyMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT work_package_id, year, month, consumed_hours, entry_count, updated_at
		FROM monthly_metrics WHERE work_package_id = ?
		ORDER BY year, month`, wpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.MonthlyMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		first := m.Bucket().First()
		if from.BeforeOrEqual(first) && first.BeforeOrEqual(to) {
			result = append(result, *m)
		}
	}
	return result, rows.Err()
}

func scanMetric(row rowScanner) (*ledger.MonthlyMetric, error) {
	var (
		m         ledger.MonthlyMetric
		month     int
		hours     string
		updatedAt string
	)
	if err := row.Scan(&m.WorkPackageID, &m.Year, &month, &hours, &m.EntryCount, &updatedAt); err != nil {
		return nil, err
	}
	m.Month = time.Month(month)
	m.ConsumedHours = mustDecimal(hours)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &m, nil
}

// =============================================================================
// REGULARIZATION STORE (ledger.RegularizationStore interface)
// =============================================================================

// InsertRegularization adds a ledger entry. Duplicate manual
// consumptions (same natural key) are rejected by the partial unique
// index and surfaced as ErrDuplicateRegularization.
func (s *Store) InsertRegularization(ctx context.Context, r ledger.Regularization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO regularizations
		(id, work_package_id, reg_type, quantity, reg_date, ticket_key, note,
		 reviewed_for_duplicates, revenue_recognized, billed, period_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.WorkPackageID, r.Type, r.Quantity.String(), r.Date.String(),
		nullString(r.TicketKey), nullString(r.Note),
		r.ReviewedForDuplicates, r.RevenueRecognized, r.Billed,
		nullString(r.PeriodID), createdAt.Format(time.RFC3339))

	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateRegularizationError{
				WorkPackageID: r.WorkPackageID,
				Date:          r.Date,
				TicketKey:     r.TicketKey,
			}
		}
		return fmt.Errorf("failed to insert regularization: %w", err)
	}
	return nil
}

// UpdateRegularization rewrites an entry by ID.
func (s *Store) UpdateRegularization(ctx context.Context, r ledger.Regularization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE regularizations SET
			quantity = ?, reg_date = ?, ticket_key = ?, note = ?,
			reviewed_for_duplicates = ?, revenue_recognized = ?, billed = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		r.Quantity.String(), r.Date.String(), nullString(r.TicketKey), nullString(r.Note),
		r.ReviewedForDuplicates, r.RevenueRecognized, r.Billed, r.ID)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ledger.ErrRegularizationNotFound
	}
	return nil
}

// DeleteRegularization removes an entry (administrative action only).
func (s *Store) DeleteRegularization(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM regularizations WHERE id = ?", id)
	return err
}

// GetRegularization returns one entry by ID, or nil.
func (s *Store) GetRegularization(ctx context.Context, id string) (*ledger.Regularization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, work_package_id, reg_type, quantity, reg_date, ticket_key, note,
		       reviewed_for_duplicates, revenue_recognized, billed, period_id, created_at
		FROM regularizations WHERE id = ?`, id)

	r, err := scanRegularization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRegularizations returns entries in [from, to], optionally filtered
// by type.
func (s *Store) ListRegularizations(ctx context.Context, wpID ledger.WorkPackageID, from, to ledger.Date, types ...ledger.RegularizationType) ([]ledger.Regularization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, work_package_id, reg_type, quantity, reg_date, ticket_key, note,
		       reviewed_for_duplicates, revenue_recognized, billed, period_id, created_at
		FROM regularizations
		WHERE work_package_id = ? AND reg_date >= ? AND reg_date <= ?
	`
	args := []any{wpID, from.String(), to.String()}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += " AND reg_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY reg_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Regularization
	for rows.Next() {
		r, err := scanRegularization(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

// ExcessForPeriod returns the period's single excess entry, or nil.
func (s *Store) ExcessForPeriod(ctx context.Context, periodID string) (*ledger.Regularization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, work_package_id, reg_type, quantity, reg_date, ticket_key, note,
		       reviewed_for_duplicates, revenue_recognized, billed, period_id, created_at
		FROM regularizations WHERE reg_type = 'excess' AND period_id = ?`, periodID)

	r, err := scanRegularization(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func scanRegularization(row rowScanner) (*ledger.Regularization, error) {
	var (
		r         ledger.Regularization
		quantity  string
		regDate   string
		ticketKey sql.NullString
		note      sql.NullString
		periodID  sql.NullString
		createdAt string
	)
	err := row.Scan(&r.ID, &r.WorkPackageID, &r.Type, &quantity, &regDate,
		&ticketKey, &note, &r.ReviewedForDuplicates, &r.RevenueRecognized,
		&r.Billed, &periodID, &createdAt)
	if err != nil {
		return nil, err
	}
	r.Quantity = mustDecimal(quantity)
	r.Date, _ = ledger.ParseDate(regDate)
	r.TicketKey = ticketKey.String
	r.Note = note.String
	r.PeriodID = periodID.String
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// =============================================================================
// TICKET STORE (ledger.TicketStore interface)
// =============================================================================

// UpsertTickets refreshes ticket metadata in one transaction.
func (s *Store) UpsertTickets(ctx context.Context, tickets []ledger.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO tickets (issue_key, work_package_id, issue_type, billing_mode, created_date, status, estimate_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(issue_key, work_package_id) DO UPDATE SET
			issue_type = excluded.issue_type,
			billing_mode = excluded.billing_mode,
			status = excluded.status,
			estimate_hours = excluded.estimate_hours
	`
	for _, t := range tickets {
		_, err := tx.ExecContext(ctx, query,
			t.Key, t.WorkPackageID, nullString(t.IssueType), nullString(t.BillingMode),
			t.CreatedDate.String(), nullString(t.Status), t.EstimateHours.String())
		if err != nil {
			return fmt.Errorf("failed to upsert ticket %s: %w", t.Key, err)
		}
	}

	return tx.Commit()
}

// TicketsByWorkPackage returns a work package's tickets.
func (s *Store) TicketsByWorkPackage(ctx context.Context, wpID ledger.WorkPackageID) ([]ledger.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_key, work_package_id, issue_type, billing_mode, created_date, status, estimate_hours
		FROM tickets WHERE work_package_id = ? ORDER BY issue_key`, wpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.Ticket
	for rows.Next() {
		var (
			t           ledger.Ticket
			issueType   sql.NullString
			billingMode sql.NullString
			createdDate sql.NullString
			status      sql.NullString
			estimate    sql.NullString
		)
		if err := rows.Scan(&t.Key, &t.WorkPackageID, &issueType, &billingMode, &createdDate, &status, &estimate); err != nil {
			return nil, err
		}
		t.IssueType = issueType.String
		t.BillingMode = billingMode.String
		if createdDate.Valid {
			t.CreatedDate, _ = ledger.ParseDate(createdDate.String)
		}
		t.Status = status.String
		if estimate.Valid {
			t.EstimateHours = mustDecimal(estimate.String)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// =============================================================================
// SYNC RUN STORE (ledger.SyncRunStore interface)
// =============================================================================

// SaveSyncRun inserts or updates a run record.
func (s *Store) SaveSyncRun(ctx context.Context, run ledger.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt *string
	if run.CompletedAt != nil {
		v := run.CompletedAt.Format(time.RFC3339)
		completedAt = &v
	}

	query := `
		INSERT INTO sync_runs (id, work_package_id, window_start, window_end, status, error, entries_synced, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			entries_synced = excluded.entries_synced,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.WorkPackageID, run.WindowStart.String(), run.WindowEnd.String(),
		run.Status, nullString(run.Error), run.EntriesSynced,
		run.StartedAt.Format(time.RFC3339), completedAt)
	return err
}

// ListSyncRuns returns recent runs, newest first. Empty wpID = all.
func (s *Store) ListSyncRuns(ctx context.Context, wpID ledger.WorkPackageID, limit int) ([]ledger.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, work_package_id, window_start, window_end, status, error, entries_synced, started_at, completed_at
		FROM sync_runs
	`
	var args []any
	if wpID != "" {
		query += " WHERE work_package_id = ?"
		args = append(args, wpID)
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ledger.SyncRun
	for rows.Next() {
		var (
			run         ledger.SyncRun
			windowStart string
			windowEnd   string
			errText     sql.NullString
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.WorkPackageID, &windowStart, &windowEnd,
			&run.Status, &errText, &run.EntriesSynced, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		run.WindowStart, _ = ledger.ParseDate(windowStart)
		run.WindowEnd, _ = ledger.ParseDate(windowEnd)
		run.Error = errText.String
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			t, _ := time.Parse(time.RFC3339, completedAt.String)
			run.CompletedAt = &t
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// IsSyncStopped reads the persisted stop flag.
func (s *Store) IsSyncStopped(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stopped bool
	err := s.db.QueryRowContext(ctx, "SELECT stopped FROM sync_control WHERE id = 1").Scan(&stopped)
	return stopped, err
}

// SetSyncStopped flips the persisted stop flag.
func (s *Store) SetSyncStopped(ctx context.Context, stopped bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "UPDATE sync_control SET stopped = ? WHERE id = 1", stopped)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// Config (de)serialization mirrors the factory package's JSON schema.
// Kept local so the store does not import factory; the shapes are
// covered by cross-package tests.

type tierJSON struct {
	Max   float64 `json:"max"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

type configJSON struct {
	Type          string     `json:"type"`
	Tiers         []tierJSON `json:"tiers,omitempty"`
	ReferenceRate *float64   `json:"reference_rate,omitempty"`
	Factor        *float64   `json:"factor,omitempty"`
}

func marshalConfig(cfg ledger.CorrectionConfig) (string, error) {
	doc := configJSON{Type: string(cfg.Kind)}
	switch cfg.Kind {
	case ledger.KindTiered:
		for _, t := range cfg.Tiers {
			max, _ := t.Max.Float64()
			value, _ := t.Value.Float64()
			doc.Tiers = append(doc.Tiers, tierJSON{Max: max, Op: string(t.Op), Value: value})
		}
	case ledger.KindRateDiff:
		if !cfg.ReferenceRate.IsZero() {
			ref, _ := cfg.ReferenceRate.Float64()
			doc.ReferenceRate = &ref
		}
	case ledger.KindFixedFactor:
		if !cfg.Factor.IsZero() {
			factor, _ := cfg.Factor.Float64()
			doc.Factor = &factor
		}
	default:
		return "", fmt.Errorf("unknown correction kind %q", cfg.Kind)
	}
	out, err := json.Marshal(doc)
	return string(out), err
}

func unmarshalConfig(raw string) (ledger.CorrectionConfig, error) {
	var doc configJSON
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return ledger.CorrectionConfig{}, err
	}
	cfg := ledger.CorrectionConfig{Kind: ledger.CorrectionKind(doc.Type)}
	switch cfg.Kind {
	case ledger.KindTiered:
		for _, t := range doc.Tiers {
			cfg.Tiers = append(cfg.Tiers, ledger.Tier{
				Max:   decimal.NewFromFloat(t.Max),
				Op:    ledger.TierOp(t.Op),
				Value: decimal.NewFromFloat(t.Value),
			})
		}
	case ledger.KindRateDiff:
		cfg.ReferenceRate = ledger.DefaultReferenceRate
		if doc.ReferenceRate != nil {
			cfg.ReferenceRate = decimal.NewFromFloat(*doc.ReferenceRate)
		}
	case ledger.KindFixedFactor:
		cfg.Factor = decimal.NewFromInt(1)
		if doc.Factor != nil {
			cfg.Factor = decimal.NewFromFloat(*doc.Factor)
		}
	default:
		return ledger.CorrectionConfig{}, fmt.Errorf("unknown correction type %q", doc.Type)
	}
	return cfg, nil
}
