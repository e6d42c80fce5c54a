package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Formatting(t *testing.T) {
	err := New(ErrorTypeUpstream, "eBird API returned status 500")
	assert.Equal(t, "upstream: eBird API returned status 500", err.Error())

	wrapped := Wrap(io.EOF, ErrorTypeTransport, "request failed")
	assert.Equal(t, "transport: request failed: EOF", wrapped.Error())
	assert.ErrorIs(t, wrapped, io.EOF)
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeQuery, "nope"))
	assert.Nil(t, Wrapf(nil, ErrorTypeQuery, "nope %d", 1))
}

func TestIsType_SeesThroughWrapping(t *testing.T) {
	inner := New(ErrorTypeCredential, "token missing")
	outer := fmt.Errorf("run aborted: %w", inner)

	assert.True(t, IsType(outer, ErrorTypeCredential))
	assert.False(t, IsType(outer, ErrorTypeUpstream))
	assert.False(t, IsType(io.EOF, ErrorTypeCredential))
}

func TestIsBatchFatal(t *testing.T) {
	assert.True(t, IsBatchFatal(New(ErrorTypeCredential, "token missing")))
	assert.True(t, IsBatchFatal(New(ErrorTypeConnection, "store unreachable")))

	assert.False(t, IsBatchFatal(New(ErrorTypeUpstream, "status 500")))
	assert.False(t, IsBatchFatal(New(ErrorTypeTransport, "dial timeout")))
	assert.False(t, IsBatchFatal(New(ErrorTypeRegion, "region failed")))
	assert.False(t, IsBatchFatal(io.EOF))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeData, TypeOf(New(ErrorTypeData, "bad payload")))
	assert.Equal(t, ErrorType(""), TypeOf(io.EOF))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestUpstreamStatus(t *testing.T) {
	err := New(ErrorTypeUpstream, "eBird API returned status 404").
		WithDetail("status_code", 404).
		WithDetail("body", "not found")

	status, ok := UpstreamStatus(err)
	require.True(t, ok)
	assert.Equal(t, 404, status)

	// Non-upstream and detail-free errors yield no status.
	_, ok = UpstreamStatus(New(ErrorTypeTransport, "dial timeout"))
	assert.False(t, ok)
	_, ok = UpstreamStatus(New(ErrorTypeUpstream, "no detail"))
	assert.False(t, ok)
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeQuery, "insert failed").WithDetail("table", "raw_hotspots")

	v, ok := err.Detail("table")
	require.True(t, ok)
	assert.Equal(t, "raw_hotspots", v)

	_, ok = err.Detail("missing")
	assert.False(t, ok)
}
