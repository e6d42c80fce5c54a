package ebird

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/models"
	"github.com/openaviary/birdfeed/pkg/store"
)

// statsDayCap is the per-day result cap for the stats replay fetches,
// independent of the run's maxResults: cardinalities need a wider sample
// than the raw observation tables.
const statsDayCap = 500

// regionStats derives one record of per-day cardinalities (distinct
// species, raw observations, distinct locations) for each day of the
// lookback window by replaying single-day observation fetches. It does not
// read back from already-merged storage.
//
// A day whose fetch succeeds with no observations yields a zero-valued
// record; a day whose fetch fails yields nothing at all, leaving a gap.
// The two outcomes are deliberately distinguishable downstream.
type regionStats struct {
	*Source
}

func (r *regionStats) Name() string { return "region_stats" }

func (r *regionStats) PrimaryKey() []string {
	return []string{"regionCode", "year", "month", "day"}
}

func (r *regionStats) Disposition() store.Disposition           { return store.DispositionMerge }
func (r *regionStats) ColumnHints() map[string]store.ColumnType { return nil }

func (r *regionStats) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		loadedAt := r.now()
		end := loadedAt

		for daysAgo := 0; daysAgo < req.LookbackDays; daysAgo++ {
			date := end.AddDate(0, 0, -daysAgo)

			query := url.Values{}
			query.Set("back", "1")
			query.Set("maxResults", strconv.Itoa(statsDayCap))

			path := "/data/obs/" + req.Region + "/recent/" + date.Format("2006/01/02")

			var observations []map[string]interface{}
			if err := r.client.GetJSON(ctx, path, query, &observations); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// A failed day is skipped, not zeroed: the gap tells
				// downstream consumers the day is unknown, not empty.
				r.logger.Warn("skipping stats day after fetch failure",
					zap.String("region", req.Region),
					zap.String("date", date.Format("2006-01-02")),
					zap.Error(err))
				continue
			}

			speciesSet := make(map[string]struct{}, len(observations))
			locationSet := make(map[string]struct{}, len(observations))
			for _, obs := range observations {
				if code, ok := obs["speciesCode"].(string); ok && code != "" {
					speciesSet[code] = struct{}{}
				}
				if loc, ok := obs["locId"].(string); ok && loc != "" {
					locationSet[loc] = struct{}{}
				}
			}

			rec := models.New(r.Name(), req.Region, map[string]interface{}{
				"regionCode":       req.Region,
				"year":             date.Year(),
				"month":            int(date.Month()),
				"day":              date.Day(),
				"date":             date.Format("2006-01-02"),
				"speciesCount":     len(speciesSet),
				"observationCount": len(observations),
				"locationCount":    len(locationSet),
				"_loaded_at":       loadedAt.UTC().Format(time.RFC3339),
			}, loadedAt)

			if !yield(rec) {
				return ctx.Err()
			}
		}
		return nil
	})
}
