package client

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/lxd-client/internal/lxdtest"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func TestNew(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		_, err := New(context.Background(), nil)
		require.ErrorIs(t, err, lxd.ErrConfigRequired)
	})

	t.Run("requires endpoint", func(t *testing.T) {
		_, err := New(context.Background(), &lxd.Config{})
		require.ErrorIs(t, err, lxd.ErrEndpointRequired)
	})

	t.Run("rejects half a key pair", func(t *testing.T) {
		_, err := New(context.Background(), &lxd.Config{Endpoint: "https://127.0.0.1:8443", ClientCert: "cert"})
		require.ErrorIs(t, err, lxd.ErrIncompleteKeyPair)
	})

	t.Run("negotiates with the server", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server)

		info := client.Server()
		require.NotNil(t, info)
		assert.Equal(t, "1.0", info.APIVersion)
		assert.True(t, info.Trusted())
		assert.True(t, client.tracker.useEvents.Load())
		assert.Equal(t, 1, server.RequestCount(http.MethodGet, "/1.0"))
	})

	t.Run("unsupported api version", func(t *testing.T) {
		server := newTestServer(t)
		server.SetAPIVersion("2.0")

		_, err := New(context.Background(), &lxd.Config{Endpoint: server.URL})
		require.ErrorIs(t, err, lxd.ErrUnsupportedAPIVersion)
		assert.Contains(t, err.Error(), "2.0")
	})

	t.Run("explicit api version", func(t *testing.T) {
		server := newTestServer(t)
		server.SetAPIVersion("2.0")

		client := newTestClient(t, server, func(config *lxd.Config) {
			config.APIVersion = "2.0"
		})
		assert.Equal(t, "2.0", client.Server().APIVersion)
	})

	t.Run("untrusted sessions poll", func(t *testing.T) {
		server := newTestServer(t)
		server.SetAuth("untrusted")

		client := newTestClient(t, server)
		assert.False(t, client.Server().Trusted())
		assert.False(t, client.tracker.useEvents.Load())
	})

	t.Run("poll strategy", func(t *testing.T) {
		server := newTestServer(t)

		client := newTestClient(t, server, func(config *lxd.Config) {
			config.WaitStrategy = lxd.WaitStrategyPoll
		})
		assert.False(t, client.tracker.useEvents.Load())
	})

	t.Run("server unreachable", func(t *testing.T) {
		server := lxdtest.NewServer()
		endpoint := server.URL
		server.Close()

		_, err := New(context.Background(), &lxd.Config{Endpoint: endpoint})
		require.Error(t, err)
		assert.True(t, lxd.IsConnectionFailure(err))
	})

	t.Run("invalid server info", func(t *testing.T) {
		server := newTestServer(t)
		server.Handle(http.MethodGet, "/1.0", func(w http.ResponseWriter, r *http.Request) {
			lxdtest.WriteSync(w, map[string]interface{}{"api_version": "1.0", "auth": "maybe"})
		})

		_, err := New(context.Background(), &lxd.Config{Endpoint: server.URL})

		var validation *lxd.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "metadata.auth", validation.Path)
	})
}

func TestClient_GetServer(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	server.SetAuth("untrusted")

	info, err := client.GetServer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "untrusted", info.Auth)
	assert.Equal(t, "untrusted", client.Server().Auth)
	assert.Equal(t, "fake", info.Environment.ServerName)
}

func TestClient_Project(t *testing.T) {
	server := newTestServer(t)

	var (
		mu       sync.Mutex
		projects []string
	)

	server.Handle(http.MethodGet, "/1.0/instances", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		projects = append(projects, r.URL.Query().Get("project"))
		mu.Unlock()

		assert.Equal(t, "1", r.URL.Query().Get("recursion"))
		lxdtest.WriteSync(w, []lxd.Instance{})
	})

	client := newTestClient(t, server, func(config *lxd.Config) {
		config.Project = "staging"
	})

	instances, err := client.Instances().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, instances)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"staging"}, projects)
}

func TestClient_Interceptors(t *testing.T) {
	server := newTestServer(t)

	headers := make(chan http.Header, 1)

	server.Handle(http.MethodGet, "/1.0/networks", func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()

		lxdtest.WriteSync(w, []lxd.Network{})
	})

	chain := lxd.NewInterceptorChain()
	chain.AddRequestInterceptor(lxd.HeaderInterceptor(map[string]string{"X-Team": "infra"}))

	metrics := lxd.NewMetricsCollector()

	client := newTestClient(t, server, func(config *lxd.Config) {
		config.Interceptors = chain
		config.Metrics = metrics
		config.UserAgent = "lxd-client-test"
		config.RequestsPerSecond = 100
	})

	_, err := client.Networks().List(context.Background())
	require.NoError(t, err)

	header := <-headers
	assert.Equal(t, "infra", header.Get("X-Team"))
	assert.Equal(t, "lxd-client-test", header.Get("User-Agent"))
	assert.NotEmpty(t, header.Get(lxd.RequestIDHeader))

	stats, ok := metrics.GetMetrics("GET /1.0/networks")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.TotalRequests)
}

func TestClient_Close(t *testing.T) {
	t.Run("rejects new requests", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server)

		require.NoError(t, client.Close())
		require.NoError(t, client.Close())

		_, err := client.Instances().List(context.Background())
		require.ErrorIs(t, err, lxd.ErrSessionClosed)

		_, err = client.Operations().Wait(context.Background(), "op1", lxd.WaitOptions{})
		require.ErrorIs(t, err, lxd.ErrSessionClosed)

		_, _, err = client.Events().Subscribe(context.Background())
		require.ErrorIs(t, err, lxd.ErrSessionClosed)
	})

	t.Run("interrupts waits", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(lxdtest.Succeed(time.Minute)...)

		client := newTestClient(t, server)

		errs := make(chan error, 1)

		go func() {
			_, err := client.Instances().Create(context.Background(), &lxd.InstancesPost{
				Name:   "c1",
				Source: lxd.InstanceSource{Type: "image", Alias: "ubuntu/24.04"},
			})
			errs <- err
		}()

		require.Eventually(t, func() bool {
			return server.RequestCount(http.MethodPost, "/1.0/instances") == 1
		}, 2*time.Second, time.Millisecond)

		require.NoError(t, client.Close())

		select {
		case err := <-errs:
			require.ErrorIs(t, err, lxd.ErrSessionClosed)
		case <-time.After(5 * time.Second):
			t.Fatal("wait not interrupted by Close")
		}
	})

	t.Run("closes event subscriptions", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server)

		events, _, err := client.Events().Subscribe(context.Background())
		require.NoError(t, err)

		require.NoError(t, client.Close())

		requireClosed(t, events)
	})
}

func TestClient_Events(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)

	events, stop, err := client.Events().Subscribe(context.Background(), lxd.EventTypeOperation)
	require.NoError(t, err)

	defer stop()

	require.Eventually(t, func() bool { return server.EventConnections() == 1 }, 2*time.Second, time.Millisecond)

	op := server.StartOperation("Testing", nil, lxdtest.Step{StatusCode: lxd.Success})
	server.PublishOperation(op)

	event := nextEvent(t, events)
	assert.Equal(t, lxd.EventTypeOperation, event.Type)

	decoded, err := lxd.Decode[lxd.Operation](event.Metadata, "metadata")
	require.NoError(t, err)
	assert.Equal(t, op.ID, decoded.ID)
}

func TestClient_EventsUnavailable(t *testing.T) {
	server := newTestServer(t)
	server.DisableEvents()

	client := newTestClient(t, server)

	_, _, err := client.Events().Subscribe(context.Background())
	require.ErrorIs(t, err, lxd.ErrEventsUnavailable)

	// Operation waits fall back to polling.
	_, err = client.Instances().Create(context.Background(), &lxd.InstancesPost{
		Name:   "c1",
		Source: lxd.InstanceSource{Type: "none"},
	})
	require.NoError(t, err)

	_, ok := server.Instance("c1")
	assert.True(t, ok)
}
