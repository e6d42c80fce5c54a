package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/openaviary/birdfeed/pkg/errors"
	"github.com/openaviary/birdfeed/pkg/models"
)

// SQLiteStore is the embedded analytical store backend. Tables live in a
// flat namespace prefixed by the dataset name.
type SQLiteStore struct {
	db      *sql.DB
	dataset string
	logger  *zap.Logger
}

// OpenSQLite opens (or creates) a SQLite database at path and applies the
// pragmas the ingest workload needs. ":memory:" opens an in-memory store.
func OpenSQLite(path, dataset string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConnection, "failed to open sqlite database %s", path)
	}

	// The engine is single-writer; one connection avoids table-lock races
	// between the per-resource transactions.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, errors.ErrorTypeConnection, "failed to apply %q", pragma)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping sqlite database")
	}

	return &SQLiteStore{
		db:      db,
		dataset: dataset,
		logger:  logger.With(zap.String("component", "sqlite_store")),
	}, nil
}

// Load applies the stream's records to the target table. The stream is
// drained first; records yielded before a mid-sequence failure are still
// written, and the failure is returned alongside the written row count.
func (s *SQLiteStore) Load(ctx context.Context, spec LoadSpec, stream *models.RecordStream) (int64, error) {
	records, streamErr := stream.Drain()
	if len(records) == 0 {
		return 0, streamErr
	}

	cols := inferColumns(spec, records)
	table := qualifiedName(s.dataset, spec.Table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.ensureTable(ctx, tx, table, spec, cols); err != nil {
		return 0, err
	}

	insertSQL := s.insertStatement(table, spec, cols)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to prepare insert for %s", table)
	}
	defer func() { _ = stmt.Close() }()

	var written int64
	args := make([]interface{}, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			args[i] = sqliteArg(sqlValue(rec.Data[col.Name], col.Type))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to write row into %s", table)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to commit load into %s", table)
	}

	s.logger.Debug("load applied",
		zap.String("table", table),
		zap.String("disposition", string(spec.Disposition)),
		zap.Int64("rows", written))

	return written, streamErr
}

// ensureTable prepares the destination table for the disposition: replace
// drops and recreates it, merge creates it if missing and widens it with
// any columns this load introduces.
func (s *SQLiteStore) ensureTable(ctx context.Context, tx *sql.Tx, table string, spec LoadSpec, cols []column) error {
	if spec.Disposition == DispositionReplace {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quoteIdent(table))); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to drop %s", table)
		}
	}

	defs := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		defs = append(defs, quoteIdent(col.Name)+" "+sqliteType(col.Type))
	}
	if spec.Disposition == DispositionMerge && len(spec.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteIdents(spec.PrimaryKey)+")")
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, quoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to create %s", table)
	}

	if spec.Disposition == DispositionMerge {
		return s.addMissingColumns(ctx, tx, table, cols)
	}
	return nil
}

// addMissingColumns widens an existing merge table with columns first seen
// in this load. Older rows read NULL for the new columns.
func (s *SQLiteStore) addMissingColumns(ctx context.Context, tx *sql.Tx, table string, cols []column) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quoteIdent(table)))
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to introspect %s", table)
	}
	existing := make(map[string]bool, 16)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			_ = rows.Close()
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to scan table_info for %s", table)
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to read table_info for %s", table)
	}
	_ = rows.Close()

	for _, col := range cols {
		if existing[col.Name] {
			continue
		}
		alterSQL := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`,
			quoteIdent(table), quoteIdent(col.Name), sqliteType(col.Type))
		if _, err := tx.ExecContext(ctx, alterSQL); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to add column %s to %s", col.Name, table)
		}
	}
	return nil
}

// insertStatement builds the INSERT for the disposition: plain insert for
// replace, upsert-by-key for merge.
func (s *SQLiteStore) insertStatement(table string, spec LoadSpec, cols []column) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		names[i] = quoteIdent(col.Name)
		marks[i] = "?"
	}

	base := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))

	if spec.Disposition != DispositionMerge || len(spec.PrimaryKey) == 0 {
		return base
	}

	key := make(map[string]bool, len(spec.PrimaryKey))
	for _, k := range spec.PrimaryKey {
		key[k] = true
	}
	var updates []string
	for _, col := range cols {
		if key[col.Name] {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(col.Name), quoteIdent(col.Name)))
	}
	if len(updates) == 0 {
		return base + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdents(spec.PrimaryKey))
	}
	return base + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdents(spec.PrimaryKey), strings.Join(updates, ", "))
}

// RowCount returns the row count of an unqualified table name.
func (s *SQLiteStore) RowCount(ctx context.Context, table string) (int64, error) {
	qualified := qualifiedName(s.dataset, table)
	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(qualified))).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to count rows in %s", qualified)
	}
	return count, nil
}

// Tables lists the dataset's tables with their row counts.
func (s *SQLiteStore) Tables(ctx context.Context) ([]TableInfo, error) {
	prefix := ""
	if s.dataset != "" {
		prefix = s.dataset + "_"
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name`,
		prefix+"%")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list tables")
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to scan table name")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to read table list")
	}

	infos := make([]TableInfo, 0, len(names))
	for _, name := range names {
		var count int64
		if err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(name))).Scan(&count); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to count rows in %s", name)
		}
		infos = append(infos, TableInfo{Name: strings.TrimPrefix(name, prefix), Rows: count})
	}
	return infos, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func sqliteType(t ColumnType) string {
	switch t {
	case ColumnTypeBigint:
		return "INTEGER"
	case ColumnTypeDouble:
		return "REAL"
	case ColumnTypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// sqliteArg narrows values the driver does not bind natively.
func sqliteArg(v interface{}) interface{} {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdent(name)
	}
	return strings.Join(quoted, ", ")
}
