// Package models provides the record types flowing through the ingestion
// engine. A Record is a flat field map plus provenance metadata; records
// travel from extractor to store through a RecordStream, produced lazily
// one record at a time.
package models

import (
	"time"
)

// Record is the unit of data handed from an extractor to the store.
type Record struct {
	// Data contains the flat field map as fetched and normalized.
	Data map[string]interface{} `json:"data"`
	// Metadata carries provenance information, set at extraction time and
	// immutable afterwards. Used for audit only; merges are last-write-wins.
	Metadata Metadata `json:"metadata"`
}

// Metadata describes where and when a record was extracted.
type Metadata struct {
	// Source identifies the producing resource (e.g. "recent_observations").
	Source string `json:"source,omitempty"`
	// Region is the region code the fetch was scoped to, if any.
	Region string `json:"region,omitempty"`
	// Timestamp is the extraction-time provenance timestamp.
	Timestamp time.Time `json:"timestamp"`
}

// New creates a record for the given resource with the supplied field map.
// The map is owned by the record after the call.
func New(source, region string, data map[string]interface{}, extractedAt time.Time) *Record {
	return &Record{
		Data: data,
		Metadata: Metadata{
			Source:    source,
			Region:    region,
			Timestamp: extractedAt,
		},
	}
}

// Get returns the named field value.
func (r *Record) Get(key string) (interface{}, bool) {
	v, ok := r.Data[key]
	return v, ok
}

// Set stores a field value.
func (r *Record) Set(key string, value interface{}) {
	if r.Data == nil {
		r.Data = make(map[string]interface{}, 16)
	}
	r.Data[key] = value
}

// RecordStream is a finite, lazily produced sequence of records. The
// Records channel is closed when the sequence ends, normally or otherwise;
// Errors carries at most the error that terminated the sequence early.
// Records already received before a failure remain valid. A stream is not
// restartable; re-extracting a resource creates a fresh one.
type RecordStream struct {
	Records <-chan *Record
	Errors  <-chan error
}

// Drain consumes the stream to completion, returning every yielded record
// and the terminating error, if any.
func (s *RecordStream) Drain() ([]*Record, error) {
	var records []*Record
	for rec := range s.Records {
		records = append(records, rec)
	}
	select {
	case err := <-s.Errors:
		return records, err
	default:
		return records, nil
	}
}

// StreamOf wraps an already-materialized record slice in a RecordStream.
// Intended for tests and for replaying buffered sequences.
func StreamOf(records ...*Record) *RecordStream {
	out := make(chan *Record, len(records))
	errs := make(chan error, 1)
	for _, rec := range records {
		out <- rec
	}
	close(out)
	close(errs)
	return &RecordStream{Records: out, Errors: errs}
}

// FailedStreamOf wraps records followed by a terminating error, modelling a
// sequence that failed after yielding part of its data.
func FailedStreamOf(err error, records ...*Record) *RecordStream {
	out := make(chan *Record, len(records))
	errs := make(chan error, 1)
	for _, rec := range records {
		out <- rec
	}
	close(out)
	errs <- err
	close(errs)
	return &RecordStream{Records: out, Errors: errs}
}
