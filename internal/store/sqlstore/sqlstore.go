// Package sqlstore is a relational store: one table per entity with an
// auto-generated integer id. References to entities of the same store are
// integer columns, cross-store references are text columns holding the
// foreign ID.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"fetchplan-registry/internal/datamanager"
	"fetchplan-registry/internal/metadata"
)

// Dialect selects SQL variations.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// Store implements datamanager.Store on a SQL database.
type Store struct {
	name    string
	db      *sqlx.DB
	dialect Dialect
	log     *logrus.Entry
}

var _ datamanager.Store = (*Store)(nil)

// Open connects with the given driver ("postgres" or "sqlite").
func Open(name, driver, dsn string, log *logrus.Entry) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", name, err)
	}

	return New(name, db, log)
}

// New wraps an open database.
func New(name string, db *sqlx.DB, log *logrus.Entry) (*Store, error) {
	var dialect Dialect

	switch db.DriverName() {
	case "postgres", "pgx":
		dialect = Postgres
	case "sqlite", "sqlite3":
		dialect = SQLite
	default:
		return nil, fmt.Errorf("store %s: unsupported driver %q", name, db.DriverName())
	}

	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Store{
		name:    name,
		db:      db,
		dialect: dialect,
		log:     log.WithField("store", name),
	}, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// DB returns the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables for the classes owned by this store.
func (s *Store) EnsureSchema(ctx context.Context, classes []*metadata.MetaClass) error {
	for _, cls := range classes {
		if cls.Store != s.name {
			continue
		}

		ddl := s.createTable(cls)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table for %s: %w", cls.Name, err)
		}

		s.log.WithField("table", cls.Table).Debug("table ensured")
	}

	return nil
}

func (s *Store) createTable(cls *metadata.MetaClass) string {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		idType = "BIGSERIAL PRIMARY KEY"
	}

	cols := []string{quote(metadata.IDProperty) + " " + idType}

	for _, p := range cls.Properties() {
		if !p.Persistent || p.Name == metadata.IDProperty {
			continue
		}

		cols = append(cols, quote(p.ColumnName())+" "+s.columnType(p))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(cls.Table), strings.Join(cols, ", "))
}

func (s *Store) columnType(p *metadata.MetaProperty) string {
	if p.IsReference() {
		if p.IsCrossStore() {
			return "TEXT"
		}

		return "BIGINT"
	}

	switch p.Datatype {
	case "int", "long":
		return "BIGINT"
	case "decimal":
		return "NUMERIC"
	case "double":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	case "datetime":
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Load returns the rows with the given IDs.
func (s *Store) Load(ctx context.Context, cls *metadata.MetaClass, ids []any, columns []string) ([]datamanager.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (?)", columnList(columns), quote(cls.Table), quote(metadata.IDProperty)),
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", cls.Name, err)
	}

	return s.query(ctx, s.db.Rebind(query), args...)
}

// LoadAll returns up to limit rows ordered by id.
func (s *Store) LoadAll(ctx context.Context, cls *metadata.MetaClass, columns []string, limit int) ([]datamanager.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", columnList(columns), quote(cls.Table), quote(metadata.IDProperty))
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return s.query(ctx, query)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]datamanager.Record, error) {
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []datamanager.Record

	for rows.Next() {
		rec := map[string]any{}
		if err := rows.MapScan(rec); err != nil {
			return nil, err
		}

		for k, v := range rec {
			if b, ok := v.([]byte); ok {
				rec[k] = string(b)
			}
		}

		out = append(out, rec)
	}

	return out, rows.Err()
}

// Save inserts or updates records in one transaction.
func (s *Store) Save(ctx context.Context, cls *metadata.MetaClass, records []datamanager.Record) (ids []any, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.log.WithError(rbErr).Warn("rollback failed")
			}
		}
	}()

	ids = make([]any, len(records))

	for i, rec := range records {
		if id, ok := rec[metadata.IDProperty]; ok && id != nil {
			if err = s.update(ctx, tx, cls, id, rec); err != nil {
				return nil, err
			}

			ids[i] = id

			continue
		}

		if ids[i], err = s.insert(ctx, tx, cls, rec); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return ids, nil
}

func (s *Store) insert(ctx context.Context, tx *sqlx.Tx, cls *metadata.MetaClass, rec datamanager.Record) (any, error) {
	cols := sortedColumns(rec)

	var query string

	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quote(cls.Table), quote(metadata.IDProperty))
	} else {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			quote(cls.Table), columnList(cols), placeholders(len(cols)), quote(metadata.IDProperty))
	}

	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = rec[c]
	}

	var id int64
	if err := tx.QueryRowxContext(ctx, tx.Rebind(query), args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", cls.Table, err)
	}

	return id, nil
}

func (s *Store) update(ctx context.Context, tx *sqlx.Tx, cls *metadata.MetaClass, id any, rec datamanager.Record) error {
	cols := sortedColumns(rec)
	if len(cols) == 0 {
		return nil
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)

	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		args = append(args, rec[c])
	}

	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(cls.Table), strings.Join(sets, ", "), quote(metadata.IDProperty))

	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", cls.Table, err)
	}

	return nil
}

// sortedColumns returns the record columns except id, sorted.
func sortedColumns(rec datamanager.Record) []string {
	cols := make([]string, 0, len(rec))

	for c := range rec {
		if c != metadata.IDProperty {
			cols = append(cols, c)
		}
	}

	sort.Strings(cols)

	return cols
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}

	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
