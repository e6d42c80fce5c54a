// Package store provides the destination side of the ingestion engine:
// write-disposition semantics (replace vs merge-by-key) applied to a SQL
// analytical store. Two backends are available, selected by DSN: an
// embedded SQLite file for local analytical work and PostgreSQL for shared
// deployments. Each Load is applied in a single transaction so a partially
// applied disposition is never observable.
package store

import (
	"context"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/models"
)

// Disposition governs how a resource's records are applied to the
// destination table.
type Disposition string

const (
	// DispositionReplace drops and fully repopulates the target table each
	// run. Deliberately not idempotent across differing upstream result
	// sets: stale rows are forgotten.
	DispositionReplace Disposition = "replace"
	// DispositionMerge upserts by primary key. Existing rows with matching
	// keys are overwritten; rows absent from the current fetch are left
	// untouched. Idempotent for identical upstream data.
	DispositionMerge Disposition = "merge"
)

// ColumnType is a destination column type hint.
type ColumnType string

const (
	ColumnTypeText    ColumnType = "text"
	ColumnTypeBigint  ColumnType = "bigint"
	ColumnTypeDouble  ColumnType = "double"
	ColumnTypeBoolean ColumnType = "boolean"
)

// LoadSpec describes how a resource's records map onto a destination table.
type LoadSpec struct {
	// Table is the unqualified table name; the store prefixes the dataset.
	Table string
	// PrimaryKey lists the key column(s). Required for merge.
	PrimaryKey []string
	// Disposition selects replace or merge semantics.
	Disposition Disposition
	// ColumnHints overrides inferred column types for named columns.
	ColumnHints map[string]ColumnType
}

// TableInfo reports a destination table and its row count, used for
// post-run summaries.
type TableInfo struct {
	Name string
	Rows int64
}

// Store is the destination store consumed by the run orchestrator.
type Store interface {
	// Load drains the stream and applies the records to the target table
	// under the spec's disposition, in one transaction. It returns the
	// number of rows written. When the stream terminated early, the
	// records yielded before the failure are still written and the
	// stream's error is returned alongside the row count.
	Load(ctx context.Context, spec LoadSpec, stream *models.RecordStream) (int64, error)

	// RowCount returns the row count of an unqualified table name.
	RowCount(ctx context.Context, table string) (int64, error)

	// Tables lists the dataset's tables with row counts.
	Tables(ctx context.Context) ([]TableInfo, error)

	// Close releases the underlying connection.
	Close() error
}

// Open connects to the destination identified by dsn. DSNs with a
// postgres:// or postgresql:// scheme select the PostgreSQL backend;
// anything else is treated as a SQLite database path.
func Open(ctx context.Context, dsn, dataset string, logger *zap.Logger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(ctx, dsn, dataset, logger)
	}
	return OpenSQLite(dsn, dataset, logger)
}

// column is a resolved destination column.
type column struct {
	Name string
	Type ColumnType
}

// inferColumns resolves the destination column set for a load: primary key
// columns first in declared order, then the union of all observed record
// fields in sorted order. Hints win over value-based inference.
func inferColumns(spec LoadSpec, records []*models.Record) []column {
	seen := make(map[string]bool, 16)
	var cols []column

	add := func(name string, sample interface{}) {
		if seen[name] {
			return
		}
		seen[name] = true
		cols = append(cols, column{Name: name, Type: columnType(spec, name, sample)})
	}

	for _, key := range spec.PrimaryKey {
		add(key, sampleValue(records, key))
	}

	rest := make(map[string]interface{}, 16)
	for _, rec := range records {
		for name, v := range rec.Data {
			if _, ok := rest[name]; !ok || rest[name] == nil {
				rest[name] = v
			}
		}
	}
	names := make([]string, 0, len(rest))
	for name := range rest {
		if !seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		add(name, rest[name])
	}

	return cols
}

func sampleValue(records []*models.Record, key string) interface{} {
	for _, rec := range records {
		if v, ok := rec.Data[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func columnType(spec LoadSpec, name string, sample interface{}) ColumnType {
	if t, ok := spec.ColumnHints[name]; ok {
		return t
	}
	switch sample.(type) {
	case bool:
		return ColumnTypeBoolean
	case int, int32, int64:
		return ColumnTypeBigint
	case float32, float64:
		return ColumnTypeDouble
	default:
		return ColumnTypeText
	}
}

// sqlValue converts a record field into a driver-friendly value for the
// given column type. JSON numbers arrive as float64 and are narrowed for
// bigint columns; nested structures are stored as JSON text.
func sqlValue(v interface{}, t ColumnType) interface{} {
	if v == nil {
		return nil
	}
	switch t {
	case ColumnTypeBigint:
		switch n := v.(type) {
		case float64:
			return int64(n)
		case float32:
			return int64(n)
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case ColumnTypeDouble:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	}
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	}
	return v
}

// qualifiedName joins dataset and table the way the flat-namespace
// backends (SQLite) expose them.
func qualifiedName(dataset, table string) string {
	if dataset == "" {
		return table
	}
	return dataset + "_" + table
}
