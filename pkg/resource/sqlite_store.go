package resource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"
)

// SQLiteStore is the default Store backend: a single on-disk (or in-memory)
// SQLite database accessed through database/sql. Mirrors the teacher's
// SQLiteReceiptStore: migrate() runs once from the constructor, queries use
// '?' placeholders, and a single shared *sql.DB serializes writers.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the SQLite database at path and
// runs its migration. path may be ":memory:" for tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// SQLite serializes writers regardless; capping the pool at one connection
	// avoids SQLITE_BUSY churn under the engine's concurrent request load.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an already-open *sql.DB, running its migration.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS resource_operator (
			bldg_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			resource_type INTEGER NOT NULL,
			max_timeout INTEGER NOT NULL,
			default_timeout INTEGER NOT NULL,
			locked_by TEXT NOT NULL DEFAULT '',
			locked_time INTEGER NOT NULL DEFAULT 0,
			expiration_time INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bldg_id, resource_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate resource_operator: %w", err)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var r Record
	err := scan(
		&r.BldgID, &r.ResourceID, &r.ResourceType, &r.MaxTimeoutMs, &r.DefaultTimeoutMs,
		&r.LockedBy, &r.LockedTimeMs, &r.ExpirationTimeMs,
	)
	return r, err
}

const selectColumns = `bldg_id, resource_id, resource_type, max_timeout, default_timeout, locked_by, locked_time, expiration_time`

// Get returns the current record for key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, key Key) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM resource_operator WHERE bldg_id = ? AND resource_id = ?`,
		key.BldgID, key.ResourceID)
	r, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get resource %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	return r, nil
}

// ListAll returns every record in the table.
func (s *SQLiteStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM resource_operator ORDER BY bldg_id, resource_id`)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan resource row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return out, nil
}

// UpdateLease atomically applies asn to key's row iff its current lease
// fields satisfy pre, inside a single SQL transaction.
func (s *SQLiteStore) UpdateLease(ctx context.Context, key Key, pre Preconditions, asn Assignments) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update_lease tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM resource_operator WHERE bldg_id = ? AND resource_id = ?`,
		key.BldgID, key.ResourceID)
	current, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("read resource %s/%s for update: %w", key.BldgID, key.ResourceID, err)
	}
	if !preconditionsMatch(current, pre) {
		return ErrPreconditionFailed
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE resource_operator SET locked_by = ?, locked_time = ?, expiration_time = ? WHERE bldg_id = ? AND resource_id = ?`,
		asn.LockedBy, asn.LockedTimeMs, asn.ExpirationTimeMs, key.BldgID, key.ResourceID)
	if err != nil {
		return fmt.Errorf("apply update_lease %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update_lease %s/%s: %w", key.BldgID, key.ResourceID, err)
	}
	return nil
}

// SweepExpired clears every row past its absolute ceiling and returns the
// prior state of each cleared row.
func (s *SQLiteStore) SweepExpired(ctx context.Context, nowMs int64) ([]Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sweep tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM resource_operator WHERE locked_by != '' AND locked_time + max_timeout < ?`,
		nowMs)
	if err != nil {
		return nil, fmt.Errorf("select expired: %w", err)
	}
	var expired []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan expired row: %w", err)
		}
		expired = append(expired, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate expired rows: %w", err)
	}
	_ = rows.Close()

	for _, r := range expired {
		_, err := tx.ExecContext(ctx,
			`UPDATE resource_operator SET locked_by = '', locked_time = 0, expiration_time = 0 WHERE bldg_id = ? AND resource_id = ?`,
			r.BldgID, r.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("clear expired %s/%s: %w", r.BldgID, r.ResourceID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit sweep: %w", err)
	}
	return expired, nil
}

// Seed idempotently inserts def's initial unleased row.
func (s *SQLiteStore) Seed(ctx context.Context, def Definition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resource_operator (bldg_id, resource_id, resource_type, max_timeout, default_timeout, locked_by, locked_time, expiration_time)
		VALUES (?, ?, ?, ?, ?, '', 0, 0)
		ON CONFLICT(bldg_id, resource_id) DO NOTHING
	`, def.BldgID, def.ResourceID, def.ResourceType, def.MaxTimeoutMs, def.DefaultTimeoutMs)
	if err != nil {
		return fmt.Errorf("seed resource %s/%s: %w", def.BldgID, def.ResourceID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
