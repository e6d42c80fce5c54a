package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openaviary/birdfeed/pkg/models"
)

var loadTime = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(":memory:", "raw", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func observation(subID, species string, count interface{}) *models.Record {
	return models.New("recent_observations", "US-CA", map[string]interface{}{
		"subId":       subID,
		"speciesCode": species,
		"howMany":     count,
	}, loadTime)
}

func mergeSpec() LoadSpec {
	return LoadSpec{
		Table:       "recent_observations",
		PrimaryKey:  []string{"subId"},
		Disposition: DispositionMerge,
		ColumnHints: map[string]ColumnType{"howMany": ColumnTypeBigint},
	}
}

func TestLoad_MergeIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []*models.Record{
		observation("S1", "amecro", int64(4)),
		observation("S2", "norcar", int64(2)),
		observation("S3", "rethaw", int64(1)),
	}

	n, err := s.Load(ctx, mergeSpec(), models.StreamOf(records...))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Reloading identical data must not accumulate rows.
	n, err = s.Load(ctx, mergeSpec(), models.StreamOf(records...))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	count, err := s.RowCount(ctx, "recent_observations")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestLoad_MergeOverwritesByKey(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, mergeSpec(), models.StreamOf(
		observation("S1", "amecro", int64(4)),
		observation("S2", "norcar", int64(2)),
	))
	require.NoError(t, err)

	// Same submission, revised count. S2 is untouched by this load.
	_, err = s.Load(ctx, mergeSpec(), models.StreamOf(
		observation("S1", "amecro", int64(9)),
	))
	require.NoError(t, err)

	count, err := s.RowCount(ctx, "recent_observations")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var howMany int64
	err = s.db.QueryRow(`SELECT "howMany" FROM "raw_recent_observations" WHERE "subId" = 'S1'`).Scan(&howMany)
	require.NoError(t, err)
	assert.Equal(t, int64(9), howMany)

	var species string
	err = s.db.QueryRow(`SELECT "speciesCode" FROM "raw_recent_observations" WHERE "subId" = 'S2'`).Scan(&species)
	require.NoError(t, err)
	assert.Equal(t, "norcar", species)
}

func TestLoad_ReplaceDoesNotAccumulate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	spec := LoadSpec{
		Table:       "species_list",
		PrimaryKey:  []string{"speciesCode"},
		Disposition: DispositionReplace,
	}

	species := func(code string, order int) *models.Record {
		return models.New("species_list", "US-CA", map[string]interface{}{
			"speciesCode": code,
			"order":       order,
		}, loadTime)
	}

	_, err := s.Load(ctx, spec, models.StreamOf(
		species("amecro", 0), species("norcar", 1), species("rethaw", 2),
	))
	require.NoError(t, err)

	// A smaller second fetch fully replaces the first.
	_, err = s.Load(ctx, spec, models.StreamOf(species("amecro", 0)))
	require.NoError(t, err)

	count, err := s.RowCount(ctx, "species_list")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLoad_CompositeKeyUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	spec := LoadSpec{
		Table:       "region_stats",
		PrimaryKey:  []string{"regionCode", "year", "month", "day"},
		Disposition: DispositionMerge,
	}

	stat := func(region string, day, speciesCount int) *models.Record {
		return models.New("region_stats", region, map[string]interface{}{
			"regionCode":   region,
			"year":         2024,
			"month":        3,
			"day":          day,
			"speciesCount": speciesCount,
		}, loadTime)
	}

	_, err := s.Load(ctx, spec, models.StreamOf(
		stat("US-CA", 9, 12),
		stat("US-CA", 10, 8),
		stat("US-NY", 10, 5),
	))
	require.NoError(t, err)

	// Re-running the same day for one region revises it in place; the
	// other region's row for the same date is a distinct key.
	_, err = s.Load(ctx, spec, models.StreamOf(stat("US-CA", 10, 11)))
	require.NoError(t, err)

	count, err := s.RowCount(ctx, "region_stats")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	var speciesCount int64
	err = s.db.QueryRow(
		`SELECT "speciesCount" FROM "raw_region_stats" WHERE "regionCode" = 'US-CA' AND "day" = 10`).Scan(&speciesCount)
	require.NoError(t, err)
	assert.Equal(t, int64(11), speciesCount)

	err = s.db.QueryRow(
		`SELECT "speciesCount" FROM "raw_region_stats" WHERE "regionCode" = 'US-NY' AND "day" = 10`).Scan(&speciesCount)
	require.NoError(t, err)
	assert.Equal(t, int64(5), speciesCount)
}

func TestLoad_NullCountStoredAsNull(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, mergeSpec(), models.StreamOf(
		observation("S1", "amecro", nil),
		observation("S2", "norcar", int64(0)),
	))
	require.NoError(t, err)

	// An uncounted presence stays NULL; a counted zero stays zero.
	var nullCount int64
	err = s.db.QueryRow(`SELECT COUNT(*) FROM "raw_recent_observations" WHERE "howMany" IS NULL`).Scan(&nullCount)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nullCount)

	var zero int64
	err = s.db.QueryRow(`SELECT "howMany" FROM "raw_recent_observations" WHERE "subId" = 'S2'`).Scan(&zero)
	require.NoError(t, err)
	assert.Equal(t, int64(0), zero)
}

func TestLoad_PartialStreamWritesPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	streamErr := assert.AnError
	n, err := s.Load(ctx, mergeSpec(), models.FailedStreamOf(streamErr,
		observation("S1", "amecro", int64(4)),
	))

	// The record yielded before the failure is written, and the failure
	// is still surfaced to the caller.
	require.ErrorIs(t, err, streamErr)
	assert.Equal(t, int64(1), n)

	count, countErr := s.RowCount(ctx, "recent_observations")
	require.NoError(t, countErr)
	assert.Equal(t, int64(1), count)
}

func TestLoad_EmptyStream(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Load(context.Background(), mergeSpec(), models.StreamOf())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// No table is created for a load that carried no records.
	_, err = s.RowCount(context.Background(), "recent_observations")
	assert.Error(t, err)
}

func TestLoad_MergeWidensSchema(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, mergeSpec(), models.StreamOf(observation("S1", "amecro", int64(4))))
	require.NoError(t, err)

	// A later load introduces a field the table has not seen.
	rec := observation("S2", "norcar", int64(2))
	rec.Set("comName", "Northern Cardinal")
	_, err = s.Load(ctx, mergeSpec(), models.StreamOf(rec))
	require.NoError(t, err)

	var name string
	err = s.db.QueryRow(`SELECT "comName" FROM "raw_recent_observations" WHERE "subId" = 'S2'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "Northern Cardinal", name)

	// Pre-widening rows read NULL for the new column.
	var nullCount int64
	err = s.db.QueryRow(`SELECT COUNT(*) FROM "raw_recent_observations" WHERE "comName" IS NULL`).Scan(&nullCount)
	require.NoError(t, err)
	assert.Equal(t, int64(1), nullCount)
}

func TestTables_ListsDatasetWithPrefixTrimmed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Load(ctx, mergeSpec(), models.StreamOf(observation("S1", "amecro", int64(4))))
	require.NoError(t, err)

	_, err = s.Load(ctx, LoadSpec{
		Table:       "hotspots",
		PrimaryKey:  []string{"locId"},
		Disposition: DispositionMerge,
	}, models.StreamOf(models.New("hotspots", "US-CA", map[string]interface{}{
		"locId":   "L1",
		"locName": "Golden Gate Park",
	}, loadTime)))
	require.NoError(t, err)

	infos, err := s.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, "hotspots", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].Rows)
	assert.Equal(t, "recent_observations", infos[1].Name)
	assert.Equal(t, int64(1), infos[1].Rows)
}

func TestLoad_BooleanStoredAsInteger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := observation("S1", "amecro", int64(4))
	rec.Set("_is_notable", false)
	_, err := s.Load(ctx, mergeSpec(), models.StreamOf(rec))
	require.NoError(t, err)

	var notable int64
	err = s.db.QueryRow(`SELECT "_is_notable" FROM "raw_recent_observations" WHERE "subId" = 'S1'`).Scan(&notable)
	require.NoError(t, err)
	assert.Equal(t, int64(0), notable)
}
