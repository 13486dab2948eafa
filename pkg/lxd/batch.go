package lxd

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/workpool"
	"github.com/hashicorp/go-multierror"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
)

// Batch resource kinds.
const (
	BatchResourceInstance    = "instance"
	BatchResourceImage       = "image"
	BatchResourceNetwork     = "network"
	BatchResourceStoragePool = "storage_pool"
)

// Batch operation types. Instance operations also accept the state actions
// start, stop, restart, freeze and unfreeze.
const (
	BatchCreate = "create"
	BatchUpdate = "update"
	BatchDelete = "delete"
	BatchGet    = "get"
)

// BatchOperation represents a single operation in a batch.
type BatchOperation struct {
	ID       string
	Type     string
	Resource string
	// Name identifies the target for everything but create.
	Name string
	// Data is the request body: *InstancesPost, *InstancePut,
	// *InstanceStatePut, *NetworksPost, *NetworkPut, *StoragePoolsPost,
	// *StoragePoolPut or *ImagePut depending on Resource and Type.
	Data     interface{}
	Callback func(result *BatchResult)
}

// BatchResult represents the result of a batch operation.
type BatchResult struct {
	ID       string
	Success  bool
	Data     interface{}
	Error    error
	Duration time.Duration
}

type batchHandler func(ctx context.Context, operation BatchOperation) (interface{}, error)

// BatchExecutor runs operations concurrently on one client.
type BatchExecutor struct {
	client      Client
	concurrency int
	timeout     time.Duration
}

// NewBatchExecutor creates a new batch executor.
func NewBatchExecutor(client Client, concurrency int) *BatchExecutor {
	if concurrency <= 0 {
		concurrency = constants.DefaultConcurrencyLimit
	}

	return &BatchExecutor{
		client:      client,
		concurrency: concurrency,
	}
}

// SetTimeout bounds each operation. Zero leaves only the caller's context.
func (b *BatchExecutor) SetTimeout(timeout time.Duration) {
	b.timeout = timeout
}

// Execute runs a batch of operations and returns one result per operation,
// in input order. Individual failures are reported in the results; use
// BatchErrors to collect them.
func (b *BatchExecutor) Execute(ctx context.Context, operations []BatchOperation) ([]BatchResult, error) {
	results := make([]BatchResult, len(operations))
	work := make([]func(), len(operations))

	for index, operation := range operations {
		work[index] = func() {
			opCtx, cancel := b.operationContext(ctx)
			defer cancel()

			start := time.Now()
			result := b.executeOperation(opCtx, operation)
			result.Duration = time.Since(start)
			results[index] = *result

			if operation.Callback != nil {
				operation.Callback(result)
			}
		}
	}

	throttler, err := workpool.NewThrottler(b.concurrency, work)
	if err != nil {
		return nil, fmt.Errorf("creating batch throttler: %w", err)
	}

	throttler.Work()

	return results, nil
}

// BatchErrors combines the errors of failed results, or returns nil.
func BatchErrors(results []BatchResult) error {
	var result *multierror.Error

	for _, res := range results {
		if res.Error != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", res.ID, res.Error))
		}
	}

	return result.ErrorOrNil()
}

func (b *BatchExecutor) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout > 0 {
		return context.WithTimeout(ctx, b.timeout)
	}

	return context.WithCancel(ctx)
}

func (b *BatchExecutor) executeOperation(ctx context.Context, operation BatchOperation) *BatchResult {
	result := &BatchResult{ID: operation.ID}

	var handlers map[string]batchHandler

	switch operation.Resource {
	case BatchResourceInstance:
		handlers = b.instanceHandlers()
	case BatchResourceImage:
		handlers = b.imageHandlers()
	case BatchResourceNetwork:
		handlers = b.networkHandlers()
	case BatchResourceStoragePool:
		handlers = b.storagePoolHandlers()
	default:
		result.Error = fmt.Errorf("%w: %s", ErrUnsupportedResourceType, operation.Resource)

		return result
	}

	handler, ok := handlers[operation.Type]
	if !ok {
		result.Error = fmt.Errorf("%w: %s %s", ErrUnsupportedOperationType, operation.Resource, operation.Type)

		return result
	}

	data, err := handler(ctx, operation)
	result.Success = err == nil
	result.Data = data
	result.Error = err

	return result
}

func (b *BatchExecutor) instanceHandlers() map[string]batchHandler {
	instances := b.client.Instances()

	handlers := map[string]batchHandler{
		BatchCreate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*InstancesPost)
			if !ok {
				return nil, fmt.Errorf("%w: instance create", ErrInvalidBatchData)
			}

			return instances.Create(ctx, req)
		},
		BatchUpdate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*InstancePut)
			if !ok {
				return nil, fmt.Errorf("%w: instance update", ErrInvalidBatchData)
			}

			return nil, instances.Update(ctx, op.Name, req)
		},
		BatchDelete: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return nil, instances.Delete(ctx, op.Name)
		},
		BatchGet: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return instances.Get(ctx, op.Name)
		},
	}

	for _, action := range []string{
		constants.ActionStart, constants.ActionStop, constants.ActionRestart,
		constants.ActionFreeze, constants.ActionUnfreeze,
	} {
		handlers[action] = func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req := &InstanceStatePut{Action: action, Timeout: -1}
			if custom, ok := op.Data.(*InstanceStatePut); ok {
				copied := *custom
				copied.Action = action
				req = &copied
			}

			return instances.UpdateState(ctx, op.Name, req)
		}
	}

	return handlers
}

func (b *BatchExecutor) imageHandlers() map[string]batchHandler {
	images := b.client.Images()

	return map[string]batchHandler{
		BatchUpdate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*ImagePut)
			if !ok {
				return nil, fmt.Errorf("%w: image update", ErrInvalidBatchData)
			}

			return nil, images.Update(ctx, op.Name, req)
		},
		BatchDelete: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return nil, images.Delete(ctx, op.Name)
		},
		BatchGet: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return images.Get(ctx, op.Name)
		},
	}
}

func (b *BatchExecutor) networkHandlers() map[string]batchHandler {
	networks := b.client.Networks()

	return map[string]batchHandler{
		BatchCreate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*NetworksPost)
			if !ok {
				return nil, fmt.Errorf("%w: network create", ErrInvalidBatchData)
			}

			return nil, networks.Create(ctx, req)
		},
		BatchUpdate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*NetworkPut)
			if !ok {
				return nil, fmt.Errorf("%w: network update", ErrInvalidBatchData)
			}

			return nil, networks.Update(ctx, op.Name, req)
		},
		BatchDelete: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return nil, networks.Delete(ctx, op.Name)
		},
		BatchGet: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return networks.Get(ctx, op.Name)
		},
	}
}

func (b *BatchExecutor) storagePoolHandlers() map[string]batchHandler {
	pools := b.client.StoragePools()

	return map[string]batchHandler{
		BatchCreate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*StoragePoolsPost)
			if !ok {
				return nil, fmt.Errorf("%w: storage pool create", ErrInvalidBatchData)
			}

			return nil, pools.Create(ctx, req)
		},
		BatchUpdate: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			req, ok := op.Data.(*StoragePoolPut)
			if !ok {
				return nil, fmt.Errorf("%w: storage pool update", ErrInvalidBatchData)
			}

			return nil, pools.Update(ctx, op.Name, req)
		},
		BatchDelete: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return nil, pools.Delete(ctx, op.Name)
		},
		BatchGet: func(ctx context.Context, op BatchOperation) (interface{}, error) {
			return pools.Get(ctx, op.Name)
		},
	}
}

// BatchBuilder helps build batch operations.
type BatchBuilder struct {
	operations []BatchOperation
}

// NewBatchBuilder creates a new batch builder.
func NewBatchBuilder() *BatchBuilder {
	return &BatchBuilder{}
}

// AddCreateInstance adds an instance creation.
func (b *BatchBuilder) AddCreateInstance(id string, request *InstancesPost) *BatchBuilder {
	return b.AddOperation(BatchOperation{
		ID:       id,
		Type:     BatchCreate,
		Resource: BatchResourceInstance,
		Name:     request.Name,
		Data:     request,
	})
}

// AddInstanceAction adds a state change such as start or stop.
func (b *BatchBuilder) AddInstanceAction(id, name, action string) *BatchBuilder {
	return b.AddOperation(BatchOperation{
		ID:       id,
		Type:     action,
		Resource: BatchResourceInstance,
		Name:     name,
	})
}

// AddDeleteInstance adds an instance deletion.
func (b *BatchBuilder) AddDeleteInstance(id, name string) *BatchBuilder {
	return b.AddOperation(BatchOperation{
		ID:       id,
		Type:     BatchDelete,
		Resource: BatchResourceInstance,
		Name:     name,
	})
}

// AddGetInstance adds an instance lookup.
func (b *BatchBuilder) AddGetInstance(id, name string) *BatchBuilder {
	return b.AddOperation(BatchOperation{
		ID:       id,
		Type:     BatchGet,
		Resource: BatchResourceInstance,
		Name:     name,
	})
}

// AddDeleteImage adds an image deletion.
func (b *BatchBuilder) AddDeleteImage(id, fingerprint string) *BatchBuilder {
	return b.AddOperation(BatchOperation{
		ID:       id,
		Type:     BatchDelete,
		Resource: BatchResourceImage,
		Name:     fingerprint,
	})
}

// AddOperation adds a custom operation.
func (b *BatchBuilder) AddOperation(operation BatchOperation) *BatchBuilder {
	b.operations = append(b.operations, operation)

	return b
}

// Build returns the built operations.
func (b *BatchBuilder) Build() []BatchOperation {
	return b.operations
}
