package clients

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/openaviary/birdfeed/pkg/errors"
)

const testBaseURL = "https://api.test/v2"

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(t *testing.T, token string) *APIClient {
	t.Helper()
	return NewAPIClient(APIConfig{
		BaseURL: testBaseURL,
		Token:   token,
		Timeout: 5 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestGetJSON_Success(t *testing.T) {
	setupHTTPMock(t)

	var gotToken, gotAccept string
	httpmock.RegisterResponder("GET", testBaseURL+"/data/obs/US-CA/recent",
		func(req *http.Request) (*http.Response, error) {
			gotToken = req.Header.Get("X-eBirdApiToken")
			gotAccept = req.Header.Get("Accept")
			return httpmock.NewStringResponse(http.StatusOK,
				`[{"speciesCode":"amecro","subId":"S1"}]`), nil
		})

	client := newTestClient(t, "test-token")

	var out []map[string]interface{}
	err := client.GetJSON(context.Background(), "/data/obs/US-CA/recent", nil, &out)

	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "amecro", out[0]["speciesCode"])
	assert.Equal(t, "test-token", gotToken)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, int64(1), client.Requests())
	assert.Equal(t, int64(0), client.FailedRequests())
}

func TestGetJSON_MissingCredential(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", testBaseURL+"/data/obs/US-CA/recent",
		httpmock.NewStringResponder(http.StatusOK, `[]`))

	client := newTestClient(t, "")

	var out []map[string]interface{}
	err := client.GetJSON(context.Background(), "/data/obs/US-CA/recent", nil, &out)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCredential))

	// The precondition fails before any network call is attempted.
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
	assert.Equal(t, int64(0), client.Requests())
}

func TestGetJSON_UpstreamError(t *testing.T) {
	setupHTTPMock(t)

	tests := []struct {
		name       string
		statusCode int
	}{
		{"bad_request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"not_found", http.StatusNotFound},
		{"internal_server_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder("GET", testBaseURL+"/ref/hotspot/US-CA",
				httpmock.NewStringResponder(tt.statusCode, `{"errors":["nope"]}`))

			client := newTestClient(t, "test-token")

			var out []map[string]interface{}
			err := client.GetJSON(context.Background(), "/ref/hotspot/US-CA", nil, &out)

			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeUpstream))

			status, ok := errors.UpstreamStatus(err)
			require.True(t, ok)
			assert.Equal(t, tt.statusCode, status)
		})
	}
}

func TestGetJSON_TransportError(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", testBaseURL+"/ref/taxonomy/ebird",
		httpmock.NewErrorResponder(assert.AnError))

	client := newTestClient(t, "test-token")

	var out []map[string]interface{}
	err := client.GetJSON(context.Background(), "/ref/taxonomy/ebird", nil, &out)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTransport))
	assert.Equal(t, int64(1), client.FailedRequests())
}

func TestGetJSON_InvalidJSON(t *testing.T) {
	setupHTTPMock(t)

	httpmock.RegisterResponder("GET", testBaseURL+"/product/spplist/US-CA",
		httpmock.NewStringResponder(http.StatusOK, `{invalid json`))

	client := newTestClient(t, "test-token")

	var out []string
	err := client.GetJSON(context.Background(), "/product/spplist/US-CA", nil, &out)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}
