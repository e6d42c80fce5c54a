// Package ebird implements the declarative extraction resources for the
// eBird API. Each resource declares its fetch, record transformation,
// primary key, and write disposition; the run orchestrator applies the
// resulting record streams to the destination store.
package ebird

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/pkg/clients"
	"github.com/openaviary/birdfeed/pkg/models"
	"github.com/openaviary/birdfeed/pkg/store"
)

// Request scopes a single extraction invocation.
type Request struct {
	// Region is the region code (country, state, or county).
	Region string
	// LookbackDays is the backward day window for time-scoped endpoints.
	// Reference endpoints (species list, taxonomy) ignore it.
	LookbackDays int
	// MaxResults caps the per-endpoint result count.
	MaxResults int
}

// Resource is one declaratively defined extraction unit: endpoint,
// transform, primary key, and write disposition. Extract creates a fresh
// lazy record sequence on every invocation; sequences are finite and not
// restartable mid-flight.
type Resource interface {
	// Name is the destination table name for this resource.
	Name() string
	// PrimaryKey lists the merge key column(s). Informational for
	// replace-disposition resources.
	PrimaryKey() []string
	// Disposition selects how records are applied to the destination.
	Disposition() store.Disposition
	// ColumnHints declares destination column types for fields whose JSON
	// representation is ambiguous.
	ColumnHints() map[string]store.ColumnType
	// Extract fetches and normalizes records, yielding them one at a time.
	Extract(ctx context.Context, req Request) *models.RecordStream
}

// Source owns the API client shared by all resources and hands out the
// closed set of resource variants.
type Source struct {
	client *clients.APIClient
	logger *zap.Logger
	now    func() time.Time
}

// Option customises a Source.
type Option func(*Source)

// WithClock overrides the provenance/window clock. Used by tests to pin
// the daily stats window.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// NewSource creates a Source backed by the given API client.
func NewSource(client *clients.APIClient, logger *zap.Logger, opts ...Option) *Source {
	s := &Source{
		client: client,
		logger: logger.With(zap.String("component", "ebird_source")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resources returns the six resource variants in load order.
func (s *Source) Resources() []Resource {
	return []Resource{
		&recentObservations{s},
		&notableObservations{s},
		&speciesList{s},
		&hotspots{s},
		&taxonomy{s},
		&regionStats{s},
	}
}

// newStream runs produce in a goroutine and exposes its output as a
// RecordStream. The yield callback returns false once the context is done;
// produce's error, if any, terminates the sequence early and is delivered
// on the stream's error channel after the yielded records.
func newStream(ctx context.Context, produce func(ctx context.Context, yield func(*models.Record) bool) error) *models.RecordStream {
	out := make(chan *models.Record)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(out)
		yield := func(rec *models.Record) bool {
			select {
			case out <- rec:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if err := produce(ctx, yield); err != nil {
			errs <- err
		}
	}()

	return &models.RecordStream{Records: out, Errors: errs}
}
