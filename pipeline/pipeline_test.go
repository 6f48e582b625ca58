package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devprobe/apidiag/classify"
	"github.com/devprobe/apidiag/environment"
)

func testConfig(baseURL string) environment.Config {
	return environment.Config{
		Name:          environment.Development,
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
	}
}

// sleepRecorder captures backoff delays instead of sleeping.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

// flakyTransport fails the first n attempts with err, then delegates.
type flakyTransport struct {
	failures int32
	err      error
	next     http.RoundTripper
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if atomic.AddInt32(&t.failures, -1) >= 0 {
		return nil, t.err
	}
	return t.next.RoundTrip(req)
}

func TestDoSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	outcome := client.Get(context.Background(), "/health", nil)

	assert.True(t, outcome.Success)
	assert.Equal(t, http.StatusOK, outcome.Status)
	assert.Equal(t, classify.KindNone, outcome.Kind)
	assert.JSONEq(t, `{"status":"ok"}`, string(outcome.Body))
	assert.Positive(t, outcome.Duration)
}

func TestDoSerializesJSONBody(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	outcome := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/api/v1/items",
		Body:   map[string]string{"name": "probe"},
	})

	require.True(t, outcome.Success)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"name":"probe"}`, string(gotBody))
}

// TestDoBinaryBodySkipsContentType ensures raw payloads leave the content
// type to the caller so multipart boundaries stay intact.
func TestDoBinaryBodySkipsContentType(t *testing.T) {
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	outcome := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/upload",
		Body:   []byte{0x1f, 0x8b, 0x08},
	})

	require.True(t, outcome.Success)
	assert.Empty(t, gotContentType)
}

func TestDoHeaderMerge(t *testing.T) {
	var gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	outcome := client.Get(context.Background(), "/", map[string]string{
		"Authorization": "Bearer secret-token",
		"Accept":        "text/plain",
	})

	require.True(t, outcome.Success)
	assert.Equal(t, "Bearer secret-token", gotAuth, "Authorization must pass through unmodified")
	assert.Equal(t, "text/plain", gotAccept, "caller headers win over pipeline defaults")
}

func TestDoHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		default:
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := New(testConfig(server.URL))

	t.Run("client error", func(t *testing.T) {
		outcome := client.Get(context.Background(), "/missing", nil)
		assert.False(t, outcome.Success)
		assert.Equal(t, http.StatusNotFound, outcome.Status)
		assert.Equal(t, classify.KindHTTPClientError, outcome.Kind)
	})

	t.Run("server error", func(t *testing.T) {
		outcome := client.Get(context.Background(), "/boom", nil)
		assert.False(t, outcome.Success)
		assert.Equal(t, http.StatusInternalServerError, outcome.Status)
		assert.Equal(t, classify.KindHTTPServerError, outcome.Kind)
	})
}

func TestDoParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>definitely not json</html>"))
	}))
	defer server.Close()

	client := New(testConfig(server.URL))
	outcome := client.Get(context.Background(), "/health", nil)

	assert.False(t, outcome.Success)
	assert.Equal(t, classify.KindParse, outcome.Kind)
}

// TestDoTimeout ensures a slow transport resolves as a timeout outcome and
// the call returns promptly once the deadline fires.
func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig(server.URL)
	cfg.Timeout = 50 * time.Millisecond

	client := New(cfg)
	start := time.Now()
	outcome := client.Get(context.Background(), "/health", nil)

	assert.False(t, outcome.Success)
	assert.Equal(t, classify.KindTimeout, outcome.Kind)
	assert.Less(t, time.Since(start), 2*time.Second, "call must resolve shortly after the deadline")
}

func TestDoWithRetryRecoversFromNetworkFailures(t *testing.T) {
	var handled int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&handled, 1)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	recorder := &sleepRecorder{}
	transport := &flakyTransport{
		failures: 2,
		err:      errors.New("network error"),
		next:     http.DefaultTransport,
	}

	client := New(testConfig(server.URL),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleep(recorder.sleep),
	)

	outcome := client.DoWithRetry(context.Background(), Request{Method: http.MethodGet, Path: "/health"})

	assert.True(t, outcome.Success, "third attempt should succeed")
	assert.Equal(t, int32(1), atomic.LoadInt32(&handled))
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, recorder.delays)
}

func TestDoWithRetryExhaustsBudget(t *testing.T) {
	recorder := &sleepRecorder{}
	transport := &flakyTransport{
		failures: 99,
		err:      errors.New("network error"),
		next:     http.DefaultTransport,
	}

	client := New(testConfig("http://localhost:4000"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithSleep(recorder.sleep),
	)

	outcome := client.DoWithRetry(context.Background(), Request{Method: http.MethodGet, Path: "/health"})

	assert.False(t, outcome.Success)
	assert.Equal(t, classify.KindNetwork, outcome.Kind)
	assert.Len(t, recorder.delays, 2, "3 total attempts means 2 backoff pauses")
}

// TestDoWithRetryTerminalFailures ensures CORS and HTTP client errors never
// trigger a second attempt.
func TestDoWithRetryTerminalFailures(t *testing.T) {
	t.Run("http 404", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		}))
		defer server.Close()

		recorder := &sleepRecorder{}
		client := New(testConfig(server.URL), WithSleep(recorder.sleep))

		outcome := client.DoWithRetry(context.Background(), Request{Method: http.MethodGet, Path: "/missing"})

		assert.False(t, outcome.Success)
		assert.Equal(t, classify.KindHTTPClientError, outcome.Kind)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
		assert.Empty(t, recorder.delays)
	})

	t.Run("cors", func(t *testing.T) {
		var attempts int32
		transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&attempts, 1)
			return nil, errors.New("blocked by CORS policy: No 'Access-Control-Allow-Origin' header is present")
		})

		recorder := &sleepRecorder{}
		client := New(testConfig("http://localhost:4000"),
			WithHTTPClient(&http.Client{Transport: transport}),
			WithSleep(recorder.sleep),
		)

		outcome := client.DoWithRetry(context.Background(), Request{Method: http.MethodGet, Path: "/health"})

		assert.False(t, outcome.Success)
		assert.Equal(t, classify.KindCORS, outcome.Kind)
		assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
		assert.Empty(t, recorder.delays)
	})
}

// TestDoCrossOriginOpaqueFailure exercises the CORS heuristic end to end: an
// opaque transport failure against a host that differs from the app origin is
// classified as CORS.
func TestDoCrossOriginOpaqueFailure(t *testing.T) {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("request failed")
	})

	client := New(testConfig("https://api.elsewhere.app"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithOrigin("https://myapp.vercel.app"),
	)

	outcome := client.Get(context.Background(), "/health", nil)

	assert.False(t, outcome.Success)
	assert.Equal(t, classify.KindCORS, outcome.Kind)
}

func TestDoNeverReturnsError(t *testing.T) {
	// Even a hopeless request resolves into an outcome.
	client := New(testConfig("http://localhost:1"))
	outcome := client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/health"})

	assert.False(t, outcome.Success)
	assert.NotEqual(t, classify.KindNone, outcome.Kind)
	assert.NotEmpty(t, outcome.Message)
}

func TestOutcomeJSONShape(t *testing.T) {
	outcome := Outcome{
		Success: false,
		Status:  http.StatusNotFound,
		Kind:    classify.KindHTTPClientError,
		Message: "status 404 Not Found",
	}
	data, err := json.Marshal(outcome)
	require.NoError(t, err)
	assert.Contains(t, string(data), "httpClientError")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
