package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/errors"
	"github.com/openaviary/birdfeed/pkg/models"
)

// PostgresStore is the warehouse backend. The dataset maps to a schema and
// each resource to a table inside it.
type PostgresStore struct {
	pool    *pgxpool.Pool
	dataset string
	logger  *zap.Logger
}

// OpenPostgres connects to dsn and ensures the dataset schema exists.
func OpenPostgres(ctx context.Context, dsn, dataset string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to parse postgres dsn")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}

	s := &PostgresStore{
		pool:    pool,
		dataset: dataset,
		logger:  logger.With(zap.String("component", "postgres_store")),
	}

	if dataset != "" {
		if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, quoteIdent(dataset))); err != nil {
			pool.Close()
			return nil, errors.Wrapf(err, errors.ErrorTypeConnection, "failed to create schema %s", dataset)
		}
	}

	return s, nil
}

func (s *PostgresStore) tableRef(table string) string {
	if s.dataset == "" {
		return quoteIdent(table)
	}
	return quoteIdent(s.dataset) + "." + quoteIdent(table)
}

// Load applies the stream's records to the target table inside one
// transaction, mirroring the SQLite backend's semantics.
func (s *PostgresStore) Load(ctx context.Context, spec LoadSpec, stream *models.RecordStream) (int64, error) {
	records, streamErr := stream.Drain()
	if len(records) == 0 {
		return 0, streamErr
	}

	cols := inferColumns(spec, records)
	ref := s.tableRef(spec.Table)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConnection, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.ensureTable(ctx, tx, ref, spec, cols); err != nil {
		return 0, err
	}

	insertSQL := s.insertStatement(ref, spec, cols)
	var written int64
	args := make([]interface{}, len(cols))
	for _, rec := range records {
		for i, col := range cols {
			args[i] = sqlValue(rec.Data[col.Name], col.Type)
		}
		if _, err := tx.Exec(ctx, insertSQL, args...); err != nil {
			return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to write row into %s", spec.Table)
		}
		written++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to commit load into %s", spec.Table)
	}

	s.logger.Debug("load applied",
		zap.String("table", spec.Table),
		zap.String("disposition", string(spec.Disposition)),
		zap.Int64("rows", written))

	return written, streamErr
}

func (s *PostgresStore) ensureTable(ctx context.Context, tx pgx.Tx, ref string, spec LoadSpec, cols []column) error {
	if spec.Disposition == DispositionReplace {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ref)); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to drop %s", spec.Table)
		}
	}

	defs := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		defs = append(defs, quoteIdent(col.Name)+" "+postgresType(col.Type))
	}
	if spec.Disposition == DispositionMerge && len(spec.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteIdents(spec.PrimaryKey)+")")
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s)`, ref, strings.Join(defs, ", "))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to create %s", spec.Table)
	}

	if spec.Disposition == DispositionMerge {
		for _, col := range cols {
			alterSQL := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`,
				ref, quoteIdent(col.Name), postgresType(col.Type))
			if _, err := tx.Exec(ctx, alterSQL); err != nil {
				return errors.Wrapf(err, errors.ErrorTypeQuery, "failed to add column %s to %s", col.Name, spec.Table)
			}
		}
	}
	return nil
}

func (s *PostgresStore) insertStatement(ref string, spec LoadSpec, cols []column) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		names[i] = quoteIdent(col.Name)
		marks[i] = fmt.Sprintf("$%d", i+1)
	}

	base := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		ref, strings.Join(names, ", "), strings.Join(marks, ", "))

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
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(col.Name), quoteIdent(col.Name)))
	}
	if len(updates) == 0 {
		return base + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", quoteIdents(spec.PrimaryKey))
	}
	return base + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdents(spec.PrimaryKey), strings.Join(updates, ", "))
}

// RowCount returns the row count of an unqualified table name.
func (s *PostgresStore) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.tableRef(table))).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrorTypeQuery, "failed to count rows in %s", table)
	}
	return count, nil
}

// Tables lists the dataset schema's tables with their row counts.
func (s *PostgresStore) Tables(ctx context.Context) ([]TableInfo, error) {
	schema := s.dataset
	if schema == "" {
		schema = "public"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name`,
		schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to list tables")
	}
	defer rows.Close()

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
		count, err := s.RowCount(ctx, name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{Name: name, Rows: count})
	}
	return infos, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func postgresType(t ColumnType) string {
	switch t {
	case ColumnTypeBigint:
		return "BIGINT"
	case ColumnTypeDouble:
		return "DOUBLE PRECISION"
	case ColumnTypeBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}
