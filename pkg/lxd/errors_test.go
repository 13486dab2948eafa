package lxd_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func TestErrorPredicates(t *testing.T) {
	t.Parallel()

	failed := lxd.NewOperationFailedError(&lxd.Operation{
		ID:         "op1",
		StatusCode: lxd.Failure,
		Err:        "Failed creating instance",
	})

	tests := []struct {
		name      string
		err       error
		predicate func(error) bool
		want      bool
	}{
		{"not found by status", &lxd.APIError{StatusCode: http.StatusNotFound}, lxd.IsNotFound, true},
		{"not found by code", &lxd.APIError{StatusCode: http.StatusInternalServerError, Code: 404}, lxd.IsNotFound, true},
		{"not found wrapped", fmt.Errorf("getting instance: %w", &lxd.APIError{StatusCode: 404}), lxd.IsNotFound, true},
		{"forbidden", &lxd.APIError{StatusCode: http.StatusForbidden}, lxd.IsForbidden, true},
		{"conflict", &lxd.APIError{StatusCode: http.StatusConflict}, lxd.IsConflict, true},
		{"conflict is not not found", &lxd.APIError{StatusCode: http.StatusConflict}, lxd.IsNotFound, false},
		{"plain error", errors.New("boom"), lxd.IsNotFound, false},
		{"connection", &lxd.ConnectionError{Method: "GET", URL: "https://lxd:8443/1.0", Err: syscall.ECONNREFUSED}, lxd.IsConnectionFailure, true},
		{"timeout", &lxd.TimeoutError{Kind: lxd.TimeoutRequest}, lxd.IsTimeout, true},
		{"validation", &lxd.ValidationError{Path: "metadata.id"}, lxd.IsValidation, true},
		{"operation failed", failed, lxd.IsOperationFailed, true},
		{"operation failed wrapped", fmt.Errorf("creating instance: %w", failed), lxd.IsOperationFailed, true},
		{"cancelled", &lxd.OperationCancelled{OperationID: "op1"}, lxd.IsCancelled, true},
		{"cancelled is not failure", &lxd.OperationCancelled{OperationID: "op1"}, lxd.IsOperationFailed, false},
		{"nil", nil, lxd.IsTimeout, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.predicate(tt.err))
		})
	}
}

func TestConnectionError(t *testing.T) {
	t.Parallel()

	err := &lxd.ConnectionError{Method: "GET", URL: "https://lxd:8443/1.0", Err: syscall.ECONNREFUSED}

	assert.Contains(t, err.Error(), "GET https://lxd:8443/1.0: connection failed")
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
}

func TestTimeoutError(t *testing.T) {
	t.Parallel()

	err := &lxd.TimeoutError{Kind: lxd.TimeoutOperation, OperationID: "op1"}
	assert.Equal(t, "operation timeout waiting for operation op1", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = &lxd.TimeoutError{Kind: lxd.TimeoutRequest, Err: context.Canceled}
	assert.Equal(t, "request timeout", err.Error())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOperationFailedError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		op          *lxd.Operation
		wantCode    int
		wantMessage string
	}{
		{
			name:        "explicit error code",
			op:          &lxd.Operation{ID: "op1", StatusCode: lxd.Failure, ErrCode: 404, Err: "not found"},
			wantCode:    404,
			wantMessage: "not found",
		},
		{
			name:        "falls back to status code",
			op:          &lxd.Operation{ID: "op1", StatusCode: lxd.Failure, Err: "Failed to start"},
			wantCode:    400,
			wantMessage: "Failed to start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := lxd.NewOperationFailedError(tt.op)
			assert.Equal(t, "op1", err.OperationID)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Same(t, tt.op, err.Operation)
			assert.Contains(t, err.Error(), tt.wantMessage)
		})
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "invalid payload at metadata.name: required field missing",
		(&lxd.ValidationError{Path: "metadata.name", Reason: "required field missing"}).Error())
	assert.Equal(t, "invalid payload at (root): empty response body",
		(&lxd.ValidationError{Reason: "empty response body"}).Error())
}
