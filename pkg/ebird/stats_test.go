package ebird

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openaviary/birdfeed/pkg/store"
)

func TestRegionStats_Extract(t *testing.T) {
	setupHTTPMock(t)

	// Day 0 (2024-03-10): two observations of distinct species at the
	// same location.
	var gotQuery string
	httpmock.RegisterResponder("GET", testBaseURL+"/data/obs/US-CA/recent/2024/03/10",
		func(req *http.Request) (*http.Response, error) {
			gotQuery = req.URL.RawQuery
			return httpmock.NewStringResponse(http.StatusOK, `[
				{"subId":"S1","speciesCode":"amecro","locId":"L1"},
				{"subId":"S2","speciesCode":"norcar","locId":"L1"}
			]`), nil
		})

	// Day 1 (2024-03-09): upstream failure. The day must be absent from
	// the output, not reported as zero.
	httpmock.RegisterResponder("GET", testBaseURL+"/data/obs/US-CA/recent/2024/03/09",
		httpmock.NewStringResponder(http.StatusInternalServerError, `{"errors":["boom"]}`))

	// Day 2 (2024-03-08): a genuinely quiet day.
	httpmock.RegisterResponder("GET", testBaseURL+"/data/obs/US-CA/recent/2024/03/08",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	source := newTestSource(t)
	resource := &regionStats{source}

	assert.Equal(t, "region_stats", resource.Name())
	assert.Equal(t, []string{"regionCode", "year", "month", "day"}, resource.PrimaryKey())
	assert.Equal(t, store.DispositionMerge, resource.Disposition())

	stream := resource.Extract(context.Background(), Request{
		Region:       "US-CA",
		LookbackDays: 3,
		MaxResults:   100,
	})
	records, err := stream.Drain()
	require.NoError(t, err, "a failed day degrades to a gap, not a stream error")
	require.Len(t, records, 2)

	query, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	assert.Equal(t, "1", query.Get("back"), "each replay fetch covers exactly one day")
	assert.Equal(t, "500", query.Get("maxResults"), "day cap is fixed, independent of the run's maxResults")

	day0 := records[0].Data
	assert.Equal(t, "US-CA", day0["regionCode"])
	assert.Equal(t, 2024, day0["year"])
	assert.Equal(t, 3, day0["month"])
	assert.Equal(t, 10, day0["day"])
	assert.Equal(t, "2024-03-10", day0["date"])
	assert.Equal(t, 2, day0["speciesCount"])
	assert.Equal(t, 2, day0["observationCount"])
	assert.Equal(t, 1, day0["locationCount"])

	// The empty day yields an explicit zero record, distinguishable from
	// the gap left by the failed day.
	day2 := records[1].Data
	assert.Equal(t, "2024-03-08", day2["date"])
	assert.Equal(t, 0, day2["speciesCount"])
	assert.Equal(t, 0, day2["observationCount"])
	assert.Equal(t, 0, day2["locationCount"])

	for _, rec := range records {
		assert.NotEqual(t, "2024-03-09", rec.Data["date"], "failed day must not appear")
	}
}

func TestRegionStats_AllDaysFail(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", `=~^https://api\.test/v2/data/obs/US-CA/recent/\d{4}/\d{2}/\d{2}$`,
		httpmock.NewStringResponder(http.StatusBadGateway, `{"errors":["down"]}`))

	source := newTestSource(t)
	resource := &regionStats{source}

	stream := resource.Extract(context.Background(), Request{
		Region:       "US-CA",
		LookbackDays: 3,
	})
	records, err := stream.Drain()

	// Every day skipped still means the stream itself completed.
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRegionStats_ContextCancelled(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", `=~^https://api\.test/v2/data/obs/US-CA/recent/\d{4}/\d{2}/\d{2}$`,
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := newTestSource(t)
	resource := &regionStats{source}

	stream := resource.Extract(ctx, Request{Region: "US-CA", LookbackDays: 30})
	_, err := stream.Drain()

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
