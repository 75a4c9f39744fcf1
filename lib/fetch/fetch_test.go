package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pricescout-backend/lib/chrono"
	"pricescout-backend/lib/proxyhealth"
)

func testClient(opts Options) (*Client, *proxyhealth.Registry) {
	registry := proxyhealth.NewRegistry(chrono.NewStandardTime())
	return New(registry, opts), registry
}

func TestDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	client, _ := testClient(Options{})
	res, err := client.Do(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(res.Body), "hello")
	require.Greater(t, res.Elapsed, time.Duration(0))
}

func TestDoStatusError(t *testing.T) {
	cases := []struct {
		status      int
		retryable   bool
		rotate      bool
		blockSignal bool
	}{
		{status: http.StatusNotFound, retryable: false, rotate: false, blockSignal: false},
		{status: http.StatusForbidden, retryable: true, rotate: true, blockSignal: true},
		{status: http.StatusTooManyRequests, retryable: true, rotate: true, blockSignal: true},
		{status: http.StatusServiceUnavailable, retryable: true, rotate: true, blockSignal: false},
		{status: http.StatusInternalServerError, retryable: true, rotate: false, blockSignal: false},
	}

	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
			w.Write([]byte("body still delivered"))
		}))

		client, _ := testClient(Options{})
		res, err := client.Do(context.Background(), Request{URL: server.URL})
		server.Close()

		var ferr *Error
		require.ErrorAs(t, err, &ferr, "status %d", c.status)
		require.Equal(t, KindStatus, ferr.Kind)
		require.Equal(t, c.status, ferr.StatusCode)
		require.Equal(t, c.retryable, ferr.Retryable(), "status %d", c.status)
		require.Equal(t, c.rotate, ferr.RotateProxy(), "status %d", c.status)
		require.Equal(t, c.blockSignal, ferr.BlockSignal(), "status %d", c.status)

		// the response body survives a status error so the caller can
		// classify challenge pages
		require.NotNil(t, res)
		require.Contains(t, string(res.Body), "body still delivered")
	}
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, _ := testClient(Options{
		BaseTimeout: time.Millisecond * 100,
		MinTimeout:  time.Millisecond * 50,
		MaxTimeout:  time.Millisecond * 200,
	})

	_, err := client.Do(context.Background(), Request{URL: server.URL})
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, KindTimeout, ferr.Kind)
	require.True(t, ferr.Retryable())
}

func TestDoNetworkError(t *testing.T) {
	client, _ := testClient(Options{
		BaseTimeout: time.Millisecond * 500,
		MinTimeout:  time.Millisecond * 100,
		MaxTimeout:  time.Second,
	})

	_, err := client.Do(context.Background(), Request{URL: "http://127.0.0.1:1/nothing-listens-here"})
	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	require.Contains(t, []ErrorKind{KindNetwork, KindTimeout}, ferr.Kind)
	require.True(t, ferr.Retryable())
}

func TestDeadline(t *testing.T) {
	opts := Options{
		BaseTimeout: time.Second * 10,
		MinTimeout:  time.Second * 5,
		MaxTimeout:  time.Second * 60,
		RetryGrowth: 1.5,
	}
	client, registry := testClient(opts)
	p := proxyhealth.Proxy{Endpoint: "http://slow:8080"}

	// no history: base timeout
	require.Equal(t, time.Second*10, client.Deadline(p, ProfileDefault, 0))

	// avg+2*stddev beyond base stretches the deadline
	registry.RecordSuccess(p, time.Second*12, "")
	registry.RecordSuccess(p, time.Second*16, "")
	// avg 14s, stddev 2s
	require.Equal(t, time.Second*18, client.Deadline(p, ProfileDefault, 0))

	// render profile doubles it
	require.Equal(t, time.Second*36, client.Deadline(p, ProfileRender, 0))

	// retries grow the deadline multiplicatively
	require.Equal(t, time.Second*27, client.Deadline(p, ProfileDefault, 1))

	// the max clamp applies before profile and retry scaling
	fast := proxyhealth.Proxy{Endpoint: "http://fast:8080"}
	registry.RecordSuccess(fast, time.Minute*5, "")
	require.Equal(t, time.Second*60, client.Deadline(fast, ProfileDefault, 0))
}

func TestDeadlineMinClamp(t *testing.T) {
	client, _ := testClient(Options{
		BaseTimeout: time.Second,
		MinTimeout:  time.Second * 5,
		MaxTimeout:  time.Second * 60,
	})
	require.Equal(t, time.Second*5, client.Deadline(proxyhealth.Proxy{}, ProfileDefault, 0))
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(KindNetwork, 0, "http://x", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "network")

	statusErr := NewError(KindStatus, 404, "http://x", nil)
	require.Contains(t, statusErr.Error(), "HTTP 404")
	require.False(t, NewError(KindCanceled, 0, "http://x", nil).Retryable())
}
