/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package sqlite is the durable localstore backend, built on the pure-Go
// modernc.org/sqlite driver. It registers itself as the "sqlite" driver.
package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/suparena/pagecache/config"
	"github.com/suparena/pagecache/errors"
	"github.com/suparena/pagecache/localstore"
	"github.com/suparena/pagecache/models"
)

// DriverName is the localstore driver name of this backend
const DriverName = "sqlite"

func init() {
	localstore.Register(DriverName, func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (localstore.Store, error) {
		return Open(ctx, cfg.Path, WithLogger(logger))
	})
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	name_lower TEXT NOT NULL DEFAULT '',
	image_ref  TEXT,
	tags_json  TEXT,
	attr1      INTEGER,
	attr2      INTEGER,
	attrs_json TEXT,
	fetched_at TEXT
);
CREATE TABLE IF NOT EXISTS remote_keys (
	record_id INTEGER PRIMARY KEY REFERENCES records(id) ON DELETE CASCADE,
	prev_key  INTEGER NULL,
	next_key  INTEGER NULL
);`

// nameIndex runs after migrate, since caches written before name_lower
// existed lack the column.
const nameIndex = `CREATE INDEX IF NOT EXISTS idx_records_name_lower ON records(name_lower);`

const recordColumns = "id, name, image_ref, tags_json, attr1, attr2, attrs_json, fetched_at"

// Store implements localstore.Store using SQLite.
//
// mu orders readers against transactions: a reader holds it shared, a write
// or transaction holds it exclusively until commit or rollback.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (or creates) the store at path. Use ":memory:" for a private
// in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.NewValidationError("store.path", "must not be empty")
	}

	s := &Store{path: path, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.NewStoreError("open", fmt.Errorf("open sqlite %q: %w", path, err))
	}

	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.NewStoreError("open", fmt.Errorf("set WAL mode: %w", err))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewStoreError("open", fmt.Errorf("create schema: %w", err))
	}
	if err := s.migrate(ctx, db); err != nil {
		db.Close()
		return nil, errors.NewStoreError("open", err)
	}
	if _, err := db.ExecContext(ctx, nameIndex); err != nil {
		db.Close()
		return nil, errors.NewStoreError("open", fmt.Errorf("create name index: %w", err))
	}

	s.db = db
	s.logger.Debug("sqlite store opened", zap.String("path", path))
	return s, nil
}

// migrate adds name_lower to caches created without it and fills it in.
func (s *Store) migrate(ctx context.Context, db *sql.DB) error {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info('records') WHERE name = 'name_lower'").Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "ALTER TABLE records ADD COLUMN name_lower TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("add name_lower: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, name FROM records")
	if err != nil {
		return fmt.Errorf("read names: %w", err)
	}
	names := map[int]string{}
	for rows.Next() {
		var id int
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return fmt.Errorf("read names: %w", err)
		}
		names[id] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read names: %w", err)
	}

	for id, name := range names {
		if _, err := tx.ExecContext(ctx, "UPDATE records SET name_lower = ? WHERE id = ?", strings.ToLower(name), id); err != nil {
			return fmt.Errorf("fill name_lower of record %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	s.logger.Info("sqlite cache migrated", zap.String("column", "name_lower"), zap.Int("records", len(names)))
	return nil
}

// Window returns up to limit records starting at position offset.
func (s *Store) Window(ctx context.Context, offset, limit int) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM records ORDER BY id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, errors.NewStoreError("window", err)
	}
	return scanRecords("window", rows)
}

// Get returns the record for id, or nil when absent.
func (s *Store) Get(ctx context.Context, id int) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	r, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("get", err)
	}
	return r, nil
}

// SearchByNameOrID matches name contains text, case-insensitively, or id = text.
// SQLite's LIKE folds ASCII only, so names are matched through the name_lower
// column that UpsertMany fills with the Unicode lower case form.
func (s *Store) SearchByNameOrID(ctx context.Context, text string) ([]models.Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []models.Record{}, nil
	}

	var id sql.NullInt64
	if v, ok := models.ParseID(text); ok {
		id = sql.NullInt64{Int64: int64(v), Valid: true}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+` FROM records
		WHERE name_lower LIKE ? ESCAPE '\' OR id = ?
		ORDER BY id`,
		"%"+escapeLike(strings.ToLower(text))+"%", id)
	if err != nil {
		return nil, errors.NewStoreError("search", err)
	}
	return scanRecords("search", rows)
}

// Count returns the number of cached records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, errors.NewStoreError("count", err)
	}
	return n, nil
}

// KeysFor returns the ledger row for id, or nil when absent.
func (s *Store) KeysFor(ctx context.Context, id int) (*models.RemoteKeys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prev, next sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT prev_key, next_key FROM remote_keys WHERE record_id = ?", id,
	).Scan(&prev, &next)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStoreError("keys for", err)
	}

	return &models.RemoteKeys{
		RecordID: id,
		PrevKey:  fromNull(prev),
		NextKey:  fromNull(next),
	}, nil
}

// Upsert inserts or replaces one record.
func (s *Store) Upsert(ctx context.Context, record models.Record) error {
	return s.UpsertMany(ctx, []models.Record{record})
}

// UpsertMany inserts or replaces records in one transaction.
func (s *Store) UpsertMany(ctx context.Context, records []models.Record) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.UpsertMany(ctx, records)
	})
}

// Clear removes every record and ledger row.
func (s *Store) Clear(ctx context.Context) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.Clear(ctx)
	})
}

// UpsertKeysMany writes ledger rows in one transaction.
func (s *Store) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.UpsertKeysMany(ctx, keys)
	})
}

// ClearKeys removes every ledger row.
func (s *Store) ClearKeys(ctx context.Context) error {
	return s.RunTransaction(ctx, func(ctx context.Context, w localstore.Writer) error {
		return w.ClearKeys(ctx)
	})
}

// RunTransaction runs fn inside one SQLite transaction.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, w localstore.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreError("begin", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, &writer{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewStoreError("commit", err)
	}
	committed = true
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.NewStoreError("close", err)
	}
	return nil
}

// writer is a localstore.Writer bound to an open transaction
type writer struct {
	tx *sql.Tx
}

func (w *writer) Upsert(ctx context.Context, record models.Record) error {
	return w.UpsertMany(ctx, []models.Record{record})
}

func (w *writer) UpsertMany(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := w.tx.PrepareContext(ctx, `
		INSERT INTO records (`+recordColumns+`, name_lower)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			name_lower = excluded.name_lower,
			image_ref = excluded.image_ref,
			tags_json = excluded.tags_json,
			attr1 = excluded.attr1,
			attr2 = excluded.attr2,
			attrs_json = excluded.attrs_json,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return errors.NewStoreError("upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		tags, err := models.EncodeTags(r.Tags)
		if err != nil {
			return errors.NewStoreError("upsert", err)
		}
		attrs, err := models.EncodeAttributes(r.Attributes)
		if err != nil {
			return errors.NewStoreError("upsert", err)
		}

		var fetchedAt sql.NullString
		if t := time.Time(r.FetchedAt); !t.IsZero() {
			fetchedAt = sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Name, r.ImageRef, tags, r.Height, r.Weight, attrs, fetchedAt, strings.ToLower(r.Name),
		); err != nil {
			return errors.NewStoreError("upsert", fmt.Errorf("record %d: %w", r.ID, err))
		}
	}
	return nil
}

func (w *writer) Clear(ctx context.Context) error {
	if _, err := w.tx.ExecContext(ctx, "DELETE FROM remote_keys"); err != nil {
		return errors.NewStoreError("clear", err)
	}
	if _, err := w.tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return errors.NewStoreError("clear", err)
	}
	return nil
}

func (w *writer) UpsertKeysMany(ctx context.Context, keys []models.RemoteKeys) error {
	if len(keys) == 0 {
		return nil
	}

	stmt, err := w.tx.PrepareContext(ctx, `
		INSERT INTO remote_keys (record_id, prev_key, next_key)
		VALUES (?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			prev_key = excluded.prev_key,
			next_key = excluded.next_key`)
	if err != nil {
		return errors.NewStoreError("upsert keys", err)
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.RecordID, toNull(k.PrevKey), toNull(k.NextKey)); err != nil {
			return errors.NewStoreError("upsert keys", fmt.Errorf("record %d: %w", k.RecordID, err))
		}
	}
	return nil
}

func (w *writer) ClearKeys(ctx context.Context) error {
	if _, err := w.tx.ExecContext(ctx, "DELETE FROM remote_keys"); err != nil {
		return errors.NewStoreError("clear keys", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		r         models.Record
		imageRef  sql.NullString
		tags      sql.NullString
		attr1     sql.NullInt64
		attr2     sql.NullInt64
		attrs     sql.NullString
		fetchedAt sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &imageRef, &tags, &attr1, &attr2, &attrs, &fetchedAt); err != nil {
		return nil, err
	}

	var err error
	r.ImageRef = imageRef.String
	r.Height = int(attr1.Int64)
	r.Weight = int(attr2.Int64)
	if r.Tags, err = models.DecodeTags(tags.String); err != nil {
		return nil, err
	}
	if r.Attributes, err = models.DecodeAttributes(attrs.String); err != nil {
		return nil, err
	}
	if fetchedAt.Valid && fetchedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, fetchedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse fetched_at of record %d: %w", r.ID, err)
		}
		r.FetchedAt = strfmt.DateTime(t)
	}
	return &r, nil
}

func scanRecords(op string, rows *sql.Rows) ([]models.Record, error) {
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewStoreError(op, err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError(op, err)
	}
	return records, nil
}

// escapeLike escapes the LIKE wildcards so they match literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toNull(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func fromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return models.IntPtr(int(v.Int64))
}
