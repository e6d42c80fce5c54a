package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_GetSet(t *testing.T) {
	rec := New("hotspots", "US-CA", map[string]interface{}{"locId": "L1"}, time.Now())

	v, ok := rec.Get("locId")
	require.True(t, ok)
	assert.Equal(t, "L1", v)

	rec.Set("locName", "Golden Gate Park")
	v, ok = rec.Get("locName")
	require.True(t, ok)
	assert.Equal(t, "Golden Gate Park", v)

	_, ok = rec.Get("missing")
	assert.False(t, ok)

	var empty Record
	empty.Set("k", 1)
	v, ok = empty.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestStreamOf_DrainsAllRecords(t *testing.T) {
	now := time.Now()
	stream := StreamOf(
		New("recent_observations", "US-CA", map[string]interface{}{"subId": "S1"}, now),
		New("recent_observations", "US-CA", map[string]interface{}{"subId": "S2"}, now),
	)

	records, err := stream.Drain()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "S1", records[0].Data["subId"])
	assert.Equal(t, "US-CA", records[0].Metadata.Region)
}

func TestFailedStreamOf_KeepsPrefixAndError(t *testing.T) {
	rec := New("recent_observations", "US-CA", map[string]interface{}{"subId": "S1"}, time.Now())
	stream := FailedStreamOf(assert.AnError, rec)

	records, err := stream.Drain()
	require.ErrorIs(t, err, assert.AnError)
	require.Len(t, records, 1, "records yielded before the failure stay valid")
}

func TestStreamOf_Empty(t *testing.T) {
	records, err := StreamOf().Drain()
	require.NoError(t, err)
	assert.Empty(t, records)
}
