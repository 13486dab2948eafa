package lxd_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func TestStateOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code lxd.StatusCode
		want lxd.OperationState
	}{
		{lxd.OperationCreated, lxd.OperationStatePending},
		{lxd.Pending, lxd.OperationStatePending},
		{lxd.Running, lxd.OperationStateRunning},
		{lxd.Cancelling, lxd.OperationStateRunning},
		{lxd.Success, lxd.OperationStateSuccess},
		{lxd.Failure, lxd.OperationStateFailure},
		{lxd.Cancelled, lxd.OperationStateCancelled},
		{lxd.Stopped, lxd.OperationStateUnknown},
		{lxd.StatusCode(999), lxd.OperationStateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, lxd.StateOf(tt.code))
		})
	}
}

func TestOperationState(t *testing.T) {
	t.Parallel()

	assert.False(t, lxd.OperationStatePending.IsTerminal())
	assert.False(t, lxd.OperationStateRunning.IsTerminal())
	assert.True(t, lxd.OperationStateSuccess.IsTerminal())
	assert.True(t, lxd.OperationStateFailure.IsTerminal())
	assert.True(t, lxd.OperationStateCancelled.IsTerminal())
	assert.False(t, lxd.OperationStateUnknown.IsTerminal())

	assert.Equal(t, "cancelled", lxd.OperationStateCancelled.String())
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Operation created", lxd.OperationCreated.String())
	assert.Equal(t, "Frozen", lxd.Frozen.String())
	assert.True(t, lxd.Ready.Known())
	assert.False(t, lxd.StatusCode(42).Known())
	assert.Equal(t, "Unknown", lxd.StatusCode(42).String())
}

func TestOperation_ErrorDetail(t *testing.T) {
	t.Parallel()

	op := &lxd.Operation{StatusCode: lxd.Failure, Err: "boom"}

	code, message := op.ErrorDetail()
	assert.Equal(t, 400, code)
	assert.Equal(t, "boom", message)

	op.ErrCode = 500
	code, _ = op.ErrorDetail()
	assert.Equal(t, 500, code)

	assert.True(t, op.IsTerminal())
	assert.False(t, op.IsCancelled())
}

func TestServer(t *testing.T) {
	t.Parallel()

	server := &lxd.Server{Auth: "trusted", APIExtensions: []string{"instances", "projects"}}
	assert.True(t, server.Trusted())
	assert.True(t, server.HasExtension("projects"))
	assert.False(t, server.HasExtension("clustering"))

	server.Auth = "untrusted"
	assert.False(t, server.Trusted())
}

func TestCancelSignal(t *testing.T) {
	t.Parallel()

	assert.Nil(t, lxd.CancelSignal(context.Background()))

	signal := make(chan struct{})
	ctx := lxd.WithCancelSignal(context.Background(), signal)

	assert.Equal(t, (<-chan struct{})(signal), lxd.CancelSignal(ctx))
}
