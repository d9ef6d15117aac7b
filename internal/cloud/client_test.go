package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldsentry-io/coldsentry/internal/faults"
)

func TestObtainToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/tokens", r.URL.Path)

		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email != "x@y.z" || req.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(tokenResponse{Token: "tok-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	tok, err := c.ObtainToken(context.Background(), "x@y.z", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	_, err = c.ObtainToken(context.Background(), "x@y.z", "wrong")
	require.Error(t, err)
	assert.True(t, faults.IsAuthRejected(err), "401 must surface as an auth rejection")
}

func TestSubmitReadingCarriesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Token = "tok-1"

	status, err := c.SubmitReading(context.Background(), Reading{SensorName: "walk-in", TemperatureC: -18.5})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestSubmitReadingForbiddenIsAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	status, err := c.SubmitReading(context.Background(), Reading{})
	assert.Equal(t, http.StatusForbidden, status)
	assert.True(t, faults.IsAuthRejected(err))
}

func TestSubmitReadingServerErrorIsNotAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	status, err := c.SubmitReading(context.Background(), Reading{})
	require.NoError(t, err, "a 502 is a transient failure, reported via status code")
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestReportErrors(t *testing.T) {
	var got errorReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/diagnostics", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.ReportErrors(context.Background(), []string{"a", "b"}))
	assert.Equal(t, []string{"a", "b"}, got.Errors)

	require.NoError(t, c.ReportErrors(context.Background(), nil), "empty batch is a no-op")
}
