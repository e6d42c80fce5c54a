// Package pipeline orchestrates multi-region ingestion runs. Resources
// within a region and regions within a batch execute sequentially; failures
// are isolated at the smallest unit that preserves forward progress
// (resource, then region). Only credential absence and destination
// connection failures abort a batch.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/clients"
	"github.com/openaviary/birdfeed/pkg/ebird"
	"github.com/openaviary/birdfeed/pkg/errors"
	"github.com/openaviary/birdfeed/pkg/metrics"
	"github.com/openaviary/birdfeed/pkg/store"
)

// Options configures the extraction window applied to every region.
type Options struct {
	// LookbackDays is the backward day window for time-scoped fetches.
	LookbackDays int
	// MaxResults caps the per-endpoint result count.
	MaxResults int
}

// Engine sequences resource extraction into the destination store.
type Engine struct {
	client    *clients.APIClient
	resources []ebird.Resource
	store     store.Store
	opts      Options
	logger    *zap.Logger
}

// New creates an Engine over the given resources and destination.
func New(client *clients.APIClient, resources []ebird.Resource, st store.Store, opts Options, logger *zap.Logger) *Engine {
	return &Engine{
		client:    client,
		resources: resources,
		store:     st,
		opts:      opts,
		logger:    logger.With(zap.String("component", "pipeline")),
	}
}

// Run ingests every resource for one region and reports a summary. The
// returned error is non-nil only for batch-fatal conditions (missing
// credential, destination connection failure); per-resource failures are
// captured in the result and decide the region's terminal state.
func (e *Engine) Run(ctx context.Context, region string) (*RunResult, error) {
	result := &RunResult{
		RunID:       uuid.NewString(),
		Region:      region,
		State:       RegionPending,
		TableCounts: make(map[string]int64, len(e.resources)),
		StartedAt:   time.Now(),
	}

	log := e.logger.With(
		zap.String("run_id", result.RunID),
		zap.String("region", region))

	// Credential absence is a precondition failure: detected before any
	// network call and fatal for the whole batch, not one resource.
	if err := e.client.CheckCredential(); err != nil {
		return nil, err
	}

	result.State = RegionFetching
	log.Info("starting region run",
		zap.Int("lookback_days", e.opts.LookbackDays),
		zap.Int("max_results", e.opts.MaxResults))

	req := ebird.Request{
		Region:       region,
		LookbackDays: e.opts.LookbackDays,
		MaxResults:   e.opts.MaxResults,
	}

	for _, res := range e.resources {
		rr := e.loadResource(ctx, log, res, req)
		if rr.fatal != nil {
			return nil, rr.fatal
		}
		result.Resources = append(result.Resources, *rr)
	}

	e.reportTables(ctx, log, result)

	result.Duration = time.Since(result.StartedAt)
	if len(result.FailedResources()) > 0 {
		result.State = RegionFailed
	} else {
		result.State = RegionSucceeded
	}

	metrics.ObserveRun(string(result.State), result.Duration)
	log.Info("region run finished",
		zap.String("state", string(result.State)),
		zap.Strings("failed_resources", result.FailedResources()),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// loadResource extracts one resource and applies it to the store,
// capturing any non-fatal failure in the returned result.
func (e *Engine) loadResource(ctx context.Context, log *zap.Logger, res ebird.Resource, req ebird.Request) *ResourceResult {
	stream := res.Extract(ctx, req)

	spec := store.LoadSpec{
		Table:       res.Name(),
		PrimaryKey:  res.PrimaryKey(),
		Disposition: res.Disposition(),
		ColumnHints: res.ColumnHints(),
	}

	rows, err := e.store.Load(ctx, spec, stream)

	rr := &ResourceResult{Resource: res.Name(), Rows: rows}
	metrics.RecordsExtracted.WithLabelValues(res.Name()).Add(float64(rows))
	if rows > 0 {
		metrics.RowsLoaded.WithLabelValues(res.Name(), string(res.Disposition())).Add(float64(rows))
	}

	if err != nil {
		if errors.IsBatchFatal(err) {
			rr.fatal = err
			return rr
		}
		// Resource failures are isolated: logged, recorded, and the run
		// proceeds to the next resource. Rows yielded before the failure
		// have already been written.
		rr.Err = err.Error()
		metrics.ResourceFailures.WithLabelValues(res.Name(), string(errors.TypeOf(err))).Inc()
		log.Warn("resource load failed",
			zap.String("resource", res.Name()),
			zap.Int64("rows_written", rows),
			zap.Error(err))
		return rr
	}

	log.Info("resource loaded",
		zap.String("resource", res.Name()),
		zap.String("disposition", string(res.Disposition())),
		zap.Int64("rows", rows))
	return rr
}

// reportTables fills in post-run destination row counts. Missing tables
// (resource failed before its first successful load) are skipped.
func (e *Engine) reportTables(ctx context.Context, log *zap.Logger, result *RunResult) {
	for _, res := range e.resources {
		count, err := e.store.RowCount(ctx, res.Name())
		if err != nil {
			log.Debug("skipping row count", zap.String("table", res.Name()), zap.Error(err))
			continue
		}
		result.TableCounts[res.Name()] = count
	}
}

// RunBatch runs every region sequentially in listed order. Each region's
// terminal state is independent; the batch aborts early only on
// batch-fatal errors. A batch in which every region failed returns its
// result together with a region error so total failure is never mistaken
// for success.
func (e *Engine) RunBatch(ctx context.Context, regions []string) (*BatchResult, error) {
	batch := &BatchResult{TotalCount: len(regions)}
	start := time.Now()

	for _, region := range regions {
		result, err := e.Run(ctx, region)
		if err != nil {
			if errors.IsBatchFatal(err) {
				return nil, err
			}
			batch.Outcomes = append(batch.Outcomes, RegionOutcome{
				Region: region,
				State:  RegionFailed,
				Err:    err,
			})
			continue
		}

		outcome := RegionOutcome{
			Region: region,
			State:  result.State,
			Result: result,
			Err:    result.Err(),
		}
		if result.State == RegionSucceeded {
			batch.SucceededCount++
		}
		batch.Outcomes = append(batch.Outcomes, outcome)
	}

	batch.Duration = time.Since(start)

	e.logger.Info("batch finished",
		zap.Int("succeeded", batch.SucceededCount),
		zap.Int("total", batch.TotalCount),
		zap.Duration("duration", batch.Duration))

	if batch.TotalCount > 0 && batch.SucceededCount == 0 {
		return batch, errors.Newf(errors.ErrorTypeRegion, "all %d regions failed", batch.TotalCount)
	}
	return batch, nil
}
