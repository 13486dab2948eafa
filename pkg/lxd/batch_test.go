package lxd_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// MockClient implements lxd.Client for testing.
type MockClient struct {
	mock.Mock

	instances *MockInstancesClient
	networks  *MockNetworksClient
}

func (m *MockClient) Instances() lxd.InstancesClient { return m.instances }
func (m *MockClient) Images() lxd.ImagesClient { return nil }
func (m *MockClient) StoragePools() lxd.StoragePoolsClient { return nil }
func (m *MockClient) Networks() lxd.NetworksClient { return m.networks }
func (m *MockClient) Certificates() lxd.CertificatesClient { return nil }
func (m *MockClient) Operations() lxd.OperationsClient { return nil }
func (m *MockClient) Events() lxd.EventsClient { return nil }
func (m *MockClient) Server() *lxd.Server { return &lxd.Server{APIVersion: "1.0", Auth: "trusted"} }
func (m *MockClient) Close() error { return nil }
func (m *MockClient) GetServer(context.Context) (*lxd.Server, error) { return m.Server(), nil }

// MockInstancesClient implements lxd.InstancesClient for testing.
type MockInstancesClient struct {
	mock.Mock
}

func (m *MockInstancesClient) List(ctx context.Context) ([]lxd.Instance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]lxd.Instance), args.Error(1)
}

func (m *MockInstancesClient) ListNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockInstancesClient) Get(ctx context.Context, name string) (*lxd.Instance, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*lxd.Instance), args.Error(1)
}

func (m *MockInstancesClient) Create(ctx context.Context, request *lxd.InstancesPost) (lxd.Metadata, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(lxd.Metadata), args.Error(1)
}

func (m *MockInstancesClient) Update(ctx context.Context, name string, request *lxd.InstancePut) error {
	return m.Called(ctx, name, request).Error(0)
}

func (m *MockInstancesClient) Patch(ctx context.Context, name string, request *lxd.InstancePut) error {
	return m.Called(ctx, name, request).Error(0)
}

func (m *MockInstancesClient) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockInstancesClient) GetState(ctx context.Context, name string) (*lxd.InstanceState, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*lxd.InstanceState), args.Error(1)
}

func (m *MockInstancesClient) UpdateState(ctx context.Context, name string, request *lxd.InstanceStatePut) (lxd.Metadata, error) {
	args := m.Called(ctx, name, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(lxd.Metadata), args.Error(1)
}

// MockNetworksClient implements lxd.NetworksClient for testing.
type MockNetworksClient struct {
	mock.Mock
}

func (m *MockNetworksClient) List(ctx context.Context) ([]lxd.Network, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]lxd.Network), args.Error(1)
}

func (m *MockNetworksClient) Get(ctx context.Context, name string) (*lxd.Network, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*lxd.Network), args.Error(1)
}

func (m *MockNetworksClient) Create(ctx context.Context, request *lxd.NetworksPost) error {
	return m.Called(ctx, request).Error(0)
}

func (m *MockNetworksClient) Update(ctx context.Context, name string, request *lxd.NetworkPut) error {
	return m.Called(ctx, name, request).Error(0)
}

func (m *MockNetworksClient) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func newMockClient() *MockClient {
	return &MockClient{
		instances: &MockInstancesClient{},
		networks:  &MockNetworksClient{},
	}
}

func TestBatchExecutor_Execute(t *testing.T) {
	client := newMockClient()
	ctx := context.Background()

	web := &lxd.InstancesPost{Name: "web", Source: lxd.InstanceSource{Type: "image", Alias: "ubuntu/24.04"}}

	client.instances.On("Create", mock.Anything, web).Return(lxd.Metadata{}, nil)
	client.instances.On("UpdateState", mock.Anything, "db", &lxd.InstanceStatePut{Action: "start", Timeout: -1}).
		Return(lxd.Metadata{}, nil)
	client.instances.On("Get", mock.Anything, "db").Return(&lxd.Instance{Name: "db", Status: "Running", StatusCode: lxd.Running}, nil)
	client.instances.On("Delete", mock.Anything, "old").Return(&lxd.APIError{StatusCode: 404, Message: "Instance not found"})
	client.networks.On("Create", mock.Anything, &lxd.NetworksPost{Name: "lxdbr1"}).Return(nil)

	operations := lxd.NewBatchBuilder().
		AddCreateInstance("create-web", web).
		AddInstanceAction("start-db", "db", "start").
		AddGetInstance("get-db", "db").
		AddDeleteInstance("delete-old", "old").
		AddOperation(lxd.BatchOperation{
			ID:       "create-net",
			Type:     lxd.BatchCreate,
			Resource: lxd.BatchResourceNetwork,
			Data:     &lxd.NetworksPost{Name: "lxdbr1"},
		}).
		Build()

	var callbacks atomic.Int32

	for i := range operations {
		operations[i].Callback = func(*lxd.BatchResult) {
			callbacks.Add(1)
		}
	}

	results, err := lxd.NewBatchExecutor(client, 2).Execute(ctx, operations)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, "create-web", results[0].ID)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	instance, ok := results[2].Data.(*lxd.Instance)
	require.True(t, ok)
	assert.Equal(t, "db", instance.Name)

	assert.False(t, results[3].Success)
	assert.True(t, lxd.IsNotFound(results[3].Error))
	assert.True(t, results[4].Success)

	assert.Equal(t, int32(5), callbacks.Load())

	err = lxd.BatchErrors(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete-old")
	assert.True(t, lxd.IsNotFound(err))

	client.instances.AssertExpectations(t)
	client.networks.AssertExpectations(t)
}

func TestBatchExecutor_Unsupported(t *testing.T) {
	client := newMockClient()

	results, err := lxd.NewBatchExecutor(client, 0).Execute(context.Background(), []lxd.BatchOperation{
		{ID: "profile", Type: lxd.BatchCreate, Resource: "profile"},
		{ID: "rename", Type: "rename", Resource: lxd.BatchResourceInstance, Name: "web"},
		{ID: "bad-data", Type: lxd.BatchCreate, Resource: lxd.BatchResourceInstance, Data: "web"},
	})
	require.NoError(t, err)

	require.ErrorIs(t, results[0].Error, lxd.ErrUnsupportedResourceType)
	require.ErrorIs(t, results[1].Error, lxd.ErrUnsupportedOperationType)
	require.ErrorIs(t, results[2].Error, lxd.ErrInvalidBatchData)
}

func TestBatchExecutor_Timeout(t *testing.T) {
	client := newMockClient()

	client.instances.On("Delete", mock.Anything, "slow").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(context.DeadlineExceeded)

	executor := lxd.NewBatchExecutor(client, 1)
	executor.SetTimeout(20 * time.Millisecond)

	results, err := executor.Execute(context.Background(), lxd.NewBatchBuilder().AddDeleteInstance("slow", "slow").Build())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Error, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, results[0].Duration, 20*time.Millisecond)
}

func TestBatchErrors_NoFailures(t *testing.T) {
	assert.NoError(t, lxd.BatchErrors([]lxd.BatchResult{{ID: "a", Success: true}}))
	assert.NoError(t, lxd.BatchErrors(nil))
}

func TestBatchExecutor_ActionKeepsCallerRequest(t *testing.T) {
	client := newMockClient()
	shared := &lxd.InstanceStatePut{Timeout: 30, Force: true}

	client.instances.On("UpdateState", mock.Anything, "web", &lxd.InstanceStatePut{Action: "stop", Timeout: 30, Force: true}).
		Return(lxd.Metadata{}, nil)
	client.instances.On("UpdateState", mock.Anything, "db", &lxd.InstanceStatePut{Action: "restart", Timeout: 30, Force: true}).
		Return(lxd.Metadata{}, nil)

	operations := []lxd.BatchOperation{
		{ID: "stop-web", Type: "stop", Resource: lxd.BatchResourceInstance, Name: "web", Data: shared},
		{ID: "restart-db", Type: "restart", Resource: lxd.BatchResourceInstance, Name: "db", Data: shared},
	}

	results, err := lxd.NewBatchExecutor(client, 2).Execute(context.Background(), operations)
	require.NoError(t, err)
	require.NoError(t, lxd.BatchErrors(results))

	assert.Empty(t, shared.Action)
	client.instances.AssertExpectations(t)
}
