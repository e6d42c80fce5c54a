package ebird

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/openaviary/birdfeed/pkg/models"
	"github.com/openaviary/birdfeed/pkg/store"
)

// speciesList fetches the species observed in a region. The endpoint is
// not time-scoped, so the request's lookback window is ignored. Replaced
// wholesale per run: the ordering rank is region-relative, so no merge key
// spans regions safely.
type speciesList struct {
	*Source
}

func (l *speciesList) Name() string                             { return "species_list" }
func (l *speciesList) PrimaryKey() []string                     { return []string{"speciesCode"} }
func (l *speciesList) Disposition() store.Disposition           { return store.DispositionReplace }
func (l *speciesList) ColumnHints() map[string]store.ColumnType { return nil }

func (l *speciesList) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		// The endpoint returns a bare JSON array of species codes.
		var codes []string
		if err := l.client.GetJSON(ctx, "/product/spplist/"+req.Region, nil, &codes); err != nil {
			return err
		}

		loadedAt := l.now()
		for idx, code := range codes {
			rec := models.New(l.Name(), req.Region, map[string]interface{}{
				"speciesCode": code,
				"region":      req.Region,
				"order":       idx,
				"_loaded_at":  loadedAt.UTC().Format(time.RFC3339),
			}, loadedAt)
			if !yield(rec) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// hotspots fetches the region's birding hotspots, merged by location id.
type hotspots struct {
	*Source
}

func (h *hotspots) Name() string                   { return "hotspots" }
func (h *hotspots) PrimaryKey() []string           { return []string{"locId"} }
func (h *hotspots) Disposition() store.Disposition { return store.DispositionMerge }

func (h *hotspots) ColumnHints() map[string]store.ColumnType {
	return map[string]store.ColumnType{
		"lat":               store.ColumnTypeDouble,
		"lng":               store.ColumnTypeDouble,
		"numSpeciesAllTime": store.ColumnTypeBigint,
	}
}

func (h *hotspots) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		query := url.Values{}
		query.Set("back", strconv.Itoa(req.LookbackDays))
		query.Set("fmt", "json")

		var raw []map[string]interface{}
		if err := h.client.GetJSON(ctx, "/ref/hotspot/"+req.Region, query, &raw); err != nil {
			return err
		}

		loadedAt := h.now()
		for _, spot := range raw {
			spot["_loaded_at"] = loadedAt.UTC().Format(time.RFC3339)
			spot["_region_code"] = req.Region
			if !yield(models.New(h.Name(), req.Region, spot, loadedAt)) {
				return ctx.Err()
			}
		}
		return nil
	})
}

// taxonomy fetches the global species reference data, keyed by scientific
// name and replaced wholesale on every load. Not region-scoped.
type taxonomy struct {
	*Source
}

func (t *taxonomy) Name() string                             { return "taxonomy" }
func (t *taxonomy) PrimaryKey() []string                     { return []string{"sciName"} }
func (t *taxonomy) Disposition() store.Disposition           { return store.DispositionReplace }
func (t *taxonomy) ColumnHints() map[string]store.ColumnType { return nil }

func (t *taxonomy) Extract(ctx context.Context, req Request) *models.RecordStream {
	return newStream(ctx, func(ctx context.Context, yield func(*models.Record) bool) error {
		query := url.Values{}
		query.Set("fmt", "json")
		query.Set("locale", "en")

		var raw []map[string]interface{}
		if err := t.client.GetJSON(ctx, "/ref/taxonomy/ebird", query, &raw); err != nil {
			return err
		}

		loadedAt := t.now()
		for _, species := range raw {
			species["_loaded_at"] = loadedAt.UTC().Format(time.RFC3339)
			if !yield(models.New(t.Name(), "", species, loadedAt)) {
				return ctx.Err()
			}
		}
		return nil
	})
}
