package client

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/lxd-client/internal/lxdtest"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func newInstanceRequest(name string) *lxd.InstancesPost {
	return &lxd.InstancesPost{
		Name:   name,
		Source: lxd.InstanceSource{Type: "image", Alias: "ubuntu/24.04"},
	}
}

func TestInstancesClient_List(t *testing.T) {
	server := newTestServer(t)
	server.AddInstance(testInstance("web", lxd.Running))
	server.AddInstance(testInstance("db", lxd.Stopped))

	client := newTestClient(t, server)

	instances, err := client.Instances().List(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "db", instances[0].Name)
	assert.Equal(t, lxd.Stopped, instances[0].StatusCode)
	assert.Equal(t, "web", instances[1].Name)

	names, err := client.Instances().ListNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"db", "web"}, names)
}

func TestInstancesClient_ListInvalidElement(t *testing.T) {
	server := newTestServer(t)
	server.Handle(http.MethodGet, "/1.0/instances", func(w http.ResponseWriter, r *http.Request) {
		lxdtest.WriteSync(w, []map[string]interface{}{
			{"name": "web", "status": "Running", "status_code": 103},
			{"status": "Running", "status_code": 103},
		})
	})

	client := newTestClient(t, server)

	instances, err := client.Instances().List(context.Background())
	assert.Nil(t, instances)

	var validation *lxd.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "metadata[1].name", validation.Path)
}

func TestInstancesClient_Get(t *testing.T) {
	server := newTestServer(t)
	server.AddInstance(testInstance("web", lxd.Running))

	client := newTestClient(t, server)

	instance, err := client.Instances().Get(context.Background(), "web")
	require.NoError(t, err)
	assert.Equal(t, "web", instance.Name)
	assert.Equal(t, "Running", instance.Status)

	_, err = client.Instances().Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, lxd.IsNotFound(err))

	var apiErr *lxd.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Instance not found", apiErr.Message)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestInstancesClient_Create(t *testing.T) {
	t.Run("waits for the operation", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server)

		result, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.NoError(t, err)
		assert.NotNil(t, result)

		instance, ok := server.Instance("c1")
		require.True(t, ok)
		assert.Equal(t, lxd.Stopped, instance.StatusCode)
	})

	t.Run("walks pending, running and success", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(
			lxdtest.Step{StatusCode: lxd.Pending},
			lxdtest.Step{After: 10 * time.Millisecond, StatusCode: lxd.Running},
			lxdtest.Step{After: 10 * time.Millisecond, StatusCode: lxd.Success, Metadata: lxd.Metadata{"progress": "done"}},
		)

		client := newTestClient(t, server)

		result, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.NoError(t, err)
		assert.Equal(t, "done", result["progress"])
	})

	t.Run("operation failure", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(lxdtest.Fail(10*time.Millisecond, 404, "not found")...)

		client := newTestClient(t, server)

		_, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.Error(t, err)
		assert.True(t, lxd.IsOperationFailed(err))

		var failure *lxd.OperationFailedError
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, 404, failure.Code)
		assert.Equal(t, "not found", failure.Message)

		_, ok := server.Instance("c1")
		assert.False(t, ok)
	})

	t.Run("missing name is rejected before sending", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server)

		_, err := client.Instances().Create(context.Background(), &lxd.InstancesPost{
			Source: lxd.InstanceSource{Type: "image", Alias: "ubuntu/24.04"},
		})

		var validation *lxd.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "body.name", validation.Path)
		assert.Equal(t, 0, server.RequestCount(http.MethodPost, "/1.0/instances"))
	})

	t.Run("already exists", func(t *testing.T) {
		server := newTestServer(t)
		server.AddInstance(testInstance("c1", lxd.Stopped))

		client := newTestClient(t, server)

		_, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.Error(t, err)
		assert.True(t, lxd.IsConflict(err))
	})

	t.Run("cancel signal", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(lxdtest.Succeed(time.Minute)...)

		client := newTestClient(t, server)

		signal := make(chan struct{})
		close(signal)

		ctx := lxd.WithCancelSignal(context.Background(), signal)

		_, err := client.Instances().Create(ctx, newInstanceRequest("c1"))
		require.Error(t, err)
		assert.True(t, lxd.IsCancelled(err))

		var cancelled *lxd.OperationCancelled
		require.ErrorAs(t, err, &cancelled)

		op, ok := server.Operation(cancelled.OperationID)
		require.True(t, ok)
		assert.Equal(t, lxd.Cancelled, op.StatusCode)

		_, ok = server.Instance("c1")
		assert.False(t, ok)
	})

	t.Run("operation timeout", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(lxdtest.Succeed(time.Minute)...)

		client := newTestClient(t, server, func(config *lxd.Config) {
			config.OperationTimeout = 50 * time.Millisecond
		})

		_, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.Error(t, err)
		assert.True(t, lxd.IsTimeout(err))

		var timeout *lxd.TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, lxd.TimeoutOperation, timeout.Kind)
	})

	t.Run("polling only", func(t *testing.T) {
		server := newTestServer(t)
		client := newTestClient(t, server, func(config *lxd.Config) {
			config.WaitStrategy = lxd.WaitStrategyPoll
		})

		_, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.NoError(t, err)
		assert.Equal(t, 0, server.EventConnections())
	})

	t.Run("events are lost mid-wait", func(t *testing.T) {
		server := newTestServer(t)
		server.ScriptNextOperation(lxdtest.Succeed(200 * time.Millisecond)...)

		client := newTestClient(t, server, func(config *lxd.Config) {
			config.PollIntervalMax = time.Hour
		})

		go func() {
			assert.Eventually(t, func() bool { return server.EventConnections() == 1 }, 2*time.Second, time.Millisecond)
			server.DropEventConnections()
		}()

		_, err := client.Instances().Create(context.Background(), newInstanceRequest("c1"))
		require.NoError(t, err)

		_, ok := server.Instance("c1")
		assert.True(t, ok)
	})
}

func TestInstancesClient_UpdateAndPatch(t *testing.T) {
	server := newTestServer(t)
	server.AddInstance(testInstance("web", lxd.Stopped))

	client := newTestClient(t, server)
	ctx := context.Background()

	instance, err := client.Instances().Get(ctx, "web")
	require.NoError(t, err)

	put := instance.Writable()
	put.Description = "frontend"
	put.Config = map[string]string{"limits.cpu": "2"}

	require.NoError(t, client.Instances().Update(ctx, "web", &put))

	updated, ok := server.Instance("web")
	require.True(t, ok)
	assert.Equal(t, "frontend", updated.Description)
	assert.Equal(t, "2", updated.Config["limits.cpu"])

	require.NoError(t, client.Instances().Patch(ctx, "web", &lxd.InstancePut{
		Description: "frontend v2",
		Config:      map[string]string{"limits.cpu": "4"},
		Profiles:    []string{"default"},
	}))

	patched, _ := server.Instance("web")
	assert.Equal(t, "frontend v2", patched.Description)
	assert.Equal(t, "4", patched.Config["limits.cpu"])
}

func TestInstancesClient_State(t *testing.T) {
	server := newTestServer(t)
	server.AddInstance(testInstance("web", lxd.Stopped))

	client := newTestClient(t, server)
	ctx := context.Background()

	state, err := client.Instances().GetState(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, lxd.Stopped, state.StatusCode)

	_, err = client.Instances().UpdateState(ctx, "web", &lxd.InstanceStatePut{Action: "start", Timeout: -1})
	require.NoError(t, err)

	state, err = client.Instances().GetState(ctx, "web")
	require.NoError(t, err)
	assert.Equal(t, lxd.Running, state.StatusCode)
	assert.Contains(t, state.Network, "eth0")

	_, err = client.Instances().UpdateState(ctx, "web", &lxd.InstanceStatePut{Action: "explode"})

	var validation *lxd.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "body.action", validation.Path)
}

func TestInstancesClient_Delete(t *testing.T) {
	server := newTestServer(t)
	server.AddInstance(testInstance("web", lxd.Running))
	server.AddInstance(testInstance("old", lxd.Stopped))

	client := newTestClient(t, server)
	ctx := context.Background()

	err := client.Instances().Delete(ctx, "web")
	require.Error(t, err)

	var apiErr *lxd.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Instance is running", apiErr.Message)

	require.NoError(t, client.Instances().Delete(ctx, "old"))

	_, ok := server.Instance("old")
	assert.False(t, ok)

	err = client.Instances().Delete(ctx, "old")
	assert.True(t, lxd.IsNotFound(err))
}
