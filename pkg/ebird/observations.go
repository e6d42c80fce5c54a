package ebird

import (
	"context"
	"net/url"
	"strconv"

	"github.com/openaviary/birdfeed/pkg/models"
	"github.com/openaviary/birdfeed/pkg/store"
)

// observationHints covers the fields whose JSON representation is
// ambiguous: counts are integral, coordinates are doubles.
func observationHints() map[string]store.ColumnType {
	return map[string]store.ColumnType{
		"howMany": store.ColumnTypeBigint,
		"lat":     store.ColumnTypeDouble,
		"lng":     store.ColumnTypeDouble,
	}
}

// recentObservations fetches routine sightings reported in the lookback
// window. Merged by submission id: re-fetching a submission overwrites the
// stored row, never duplicates it.
type recentObservations struct {
	*Source
}

func (r *recentObservations) Name() string                            { return "recent_observations" }
func (r *recentObservations) PrimaryKey() []string                    { return []string{"subId"} }
func (r *recentObservations) Disposition() store.Disposition          { return store.DispositionMerge }
func (r *recentObservations) ColumnHints() map[string]store.ColumnType { return observationHints() }

func (r *recentObservations) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		query := url.Values{}
		query.Set("back", strconv.Itoa(req.LookbackDays))
		query.Set("maxResults", strconv.Itoa(req.MaxResults))
		// Provisional (unreviewed) observations are wanted in this stream;
		// this is a deliberate inclusion, not the endpoint default.
		query.Set("includeProvisional", "true")

		var raw []map[string]interface{}
		if err := r.client.GetJSON(ctx, "/data/obs/"+req.Region+"/recent", query, &raw); err != nil {
			return err
		}

		loadedAt := r.now()
		for _, obs := range raw {
			if !yield(r.normalizeObservation(r.Name(), obs, req.Region, loadedAt, false)) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// notableObservations fetches rarity-flagged sightings via the dedicated
// endpoint. Same merge semantics as recentObservations.
type notableObservations struct {
	*Source
}

func (n *notableObservations) Name() string                            { return "notable_observations" }
func (n *notableObservations) PrimaryKey() []string                    { return []string{"subId"} }
func (n *notableObservations) Disposition() store.Disposition          { return store.DispositionMerge }
func (n *notableObservations) ColumnHints() map[string]store.ColumnType { return observationHints() }

func (n *notableObservations) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		query := url.Values{}
		query.Set("back", strconv.Itoa(req.LookbackDays))
		query.Set("maxResults", strconv.Itoa(req.MaxResults))

		var raw []map[string]interface{}
		if err := n.client.GetJSON(ctx, "/data/obs/"+req.Region+"/recent/notable", query, &raw); err != nil {
			return err
		}

		loadedAt := n.now()
		for _, obs := range raw {
			if !yield(n.normalizeObservation(n.Name(), obs, req.Region, loadedAt, true)) {
				return ctx.Err()
			}
		}
		return nil
	})
}
