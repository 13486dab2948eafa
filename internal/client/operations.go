package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"
	"sort"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// OperationsClient implements lxd.OperationsClient.
type OperationsClient struct {
	dispatcher *dispatcher
	tracker    *tracker
}

// NewOperationsClient creates a new operations client.
func NewOperationsClient(dispatcher *dispatcher, tracker *tracker) *OperationsClient {
	return &OperationsClient{
		dispatcher: dispatcher,
		tracker:    tracker,
	}
}

// List implements lxd.OperationsClient.List. The server groups operations
// by status; the result is flattened and ordered by creation time.
func (c *OperationsClient) List(ctx context.Context) ([]lxd.Operation, error) {
	grouped, err := call[map[string][]lxd.Operation](ctx, c.dispatcher, nethttp.MethodGet,
		"/1.0/operations", url.Values{"recursion": {"1"}}, nil)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}

	var operations []lxd.Operation
	for _, group := range *grouped {
		operations = append(operations, group...)
	}

	sort.SliceStable(operations, func(i, j int) bool {
		if operations[i].CreatedAt.Equal(operations[j].CreatedAt) {
			return operations[i].ID < operations[j].ID
		}

		return operations[i].CreatedAt.Before(operations[j].CreatedAt)
	})

	return operations, nil
}

// Get implements lxd.OperationsClient.Get.
func (c *OperationsClient) Get(ctx context.Context, id string) (*lxd.Operation, error) {
	opID, err := OperationID(id)
	if err != nil {
		return nil, err
	}

	op, err := c.dispatcher.fetchOperation(ctx, opID)
	if err != nil {
		return nil, fmt.Errorf("getting operation: %w", err)
	}

	return op, nil
}

// Cancel implements lxd.OperationsClient.Cancel. It only asks the server to
// cancel; use Wait to observe the outcome.
func (c *OperationsClient) Cancel(ctx context.Context, id string) error {
	opID, err := OperationID(id)
	if err != nil {
		return err
	}

	err = c.dispatcher.cancelOperation(ctx, opID)
	if err != nil {
		return fmt.Errorf("cancelling operation: %w", err)
	}

	return nil
}

// Wait implements lxd.OperationsClient.Wait.
func (c *OperationsClient) Wait(ctx context.Context, id string, opts lxd.WaitOptions) (*lxd.Operation, error) {
	select {
	case <-c.dispatcher.closed:
		return nil, lxd.ErrSessionClosed
	default:
	}

	return c.tracker.Wait(ctx, id, opts)
}
