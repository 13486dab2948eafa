package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lxdhttp "github.com/fivetwenty-io/lxd-client/internal/http"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []map[string]interface{}
}

func (l *MockLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.record("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.record("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.record("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.record("error", msg, fields) }

func (l *MockLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	messages := make([]string, 0, len(l.logs))
	for _, entry := range l.logs {
		messages = append(messages, entry["msg"].(string))
	}

	return messages
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/1.0/instances", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Accept"))
			assert.Equal(t, "lxd-client/1.0", request.Header.Get("User-Agent"))

			_ = json.NewEncoder(writer).Encode(map[string]interface{}{
				"type":        "sync",
				"status_code": 200,
				"metadata":    []string{"/1.0/instances/c1"},
			})
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "GET",
			Path:   "/1.0/instances",
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result map[string]interface{}

		err = json.Unmarshal(resp.Body, &result)
		require.NoError(t, err)
		assert.Equal(t, "sync", result["type"])
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/1.0/instances", request.URL.Path)
			assert.Equal(t, "project=dev&recursion=1", request.URL.RawQuery)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL + "/")

		resp, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "GET",
			Path:   "/1.0/instances",
			Query:  url.Values{"recursion": []string{"1"}, "project": []string{"dev"}},
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "c1", body["name"])

			writer.WriteHeader(http.StatusAccepted)
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "POST",
			Path:   "/1.0/instances",
			Body:   map[string]string{"name": "c1"},
		})
		require.NoError(t, err)
		assert.Equal(t, 202, resp.StatusCode)
	})

	t.Run("error status is passed through uninterpreted", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(writer).Encode(map[string]interface{}{
				"type":       "error",
				"error":      "not found",
				"error_code": 404,
			})
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "GET",
			Path:   "/1.0/instances/missing",
		})
		require.NoError(t, err)
		assert.Equal(t, 404, resp.StatusCode)
		assert.Contains(t, string(resp.Body), "not found")
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "custom-value", request.Header.Get("X-Custom-Header"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL)

		resp, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "GET",
			Path:   "/1.0",
			Headers: map[string]string{
				"X-Custom-Header": "custom-value",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"type": "sync"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := lxdhttp.NewClient(server.URL, lxdhttp.WithLogger(logger), lxdhttp.WithDebug(true))

		_, err := client.Do(context.Background(), &lxdhttp.Request{
			Method: "GET",
			Path:   "/1.0",
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"HTTP Request", "HTTP Response"}, logger.messages())
	})
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*lxdhttp.Client, context.Context) (*lxdhttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *lxdhttp.Client, ctx context.Context) (*lxdhttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *lxdhttp.Client, ctx context.Context) (*lxdhttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *lxdhttp.Client, ctx context.Context) (*lxdhttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *lxdhttp.Client, ctx context.Context) (*lxdhttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *lxdhttp.Client, ctx context.Context) (*lxdhttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := lxdhttp.NewClient(server.URL)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Failures(t *testing.T) {
	t.Parallel()

	t.Run("never retries server errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := lxdhttp.NewClient(server.URL)

		resp, err := client.Get(context.Background(), "/1.0", nil)
		require.NoError(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())
	})

	t.Run("refused connection is a connection failure", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		addr := listener.Addr().String()
		require.NoError(t, listener.Close())

		logger := &MockLogger{}
		client := lxdhttp.NewClient("http://"+addr, lxdhttp.WithLogger(logger))

		_, err = client.Get(context.Background(), "/1.0", nil)
		require.Error(t, err)
		assert.True(t, lxd.IsConnectionFailure(err))
		assert.False(t, lxd.IsTimeout(err))
		assert.Contains(t, logger.messages(), "request failed")
	})

	t.Run("elapsed deadline is a request timeout", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			select {
			case <-release:
			case <-request.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		client := lxdhttp.NewClient(server.URL, lxdhttp.WithRequestTimeout(50*time.Millisecond))

		_, err := client.Get(context.Background(), "/1.0", nil)
		require.Error(t, err)

		timeoutErr := &lxd.TimeoutError{}
		require.ErrorAs(t, err, &timeoutErr)
		assert.Equal(t, lxd.TimeoutRequest, timeoutErr.Kind)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("caller cancellation is not a connection failure", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			select {
			case <-release:
			case <-request.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		client := lxdhttp.NewClient(server.URL)

		_, err := client.Get(ctx, "/1.0", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, lxd.IsConnectionFailure(err))
	})
}

func TestClient_Interceptors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "yes", request.Header.Get("X-Intercepted"))
		assert.NotEmpty(t, request.Header.Get(lxd.RequestIDHeader))
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	collector := lxd.NewMetricsCollector()
	chain := lxd.NewInterceptorChain()
	chain.AddRequestInterceptor(lxd.HeaderInterceptor(map[string]string{"X-Intercepted": "yes"}))
	chain.AddRequestInterceptor(lxd.RequestIDInterceptor())
	chain.AddRequestInterceptor(lxd.MetricsRequestInterceptor(collector))
	chain.AddResponseInterceptor(lxd.MetricsResponseInterceptor(collector))

	client := lxdhttp.NewClient(server.URL, lxdhttp.WithInterceptors(chain))

	for range 3 {
		_, err := client.Get(context.Background(), "/1.0", nil)
		require.NoError(t, err)
	}

	metrics, ok := collector.GetMetrics("GET /1.0")
	require.True(t, ok)
	assert.Equal(t, int64(3), metrics.TotalRequests)
	assert.Equal(t, int64(0), metrics.TotalErrors)
}

func TestClient_DialWebsocket(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/1.0/events", request.URL.Path)
		assert.Equal(t, "operation", request.URL.Query().Get("type"))

		conn, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]string{"type": "operation"})
	}))
	defer server.Close()

	client := lxdhttp.NewClient(server.URL)

	conn, err := client.DialWebsocket(context.Background(), "/1.0/events", url.Values{"type": []string{"operation"}})
	require.NoError(t, err)

	defer conn.Close()

	var message map[string]string

	require.NoError(t, conn.ReadJSON(&message))
	assert.Equal(t, "operation", message["type"])
}
