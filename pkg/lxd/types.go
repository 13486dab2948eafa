package lxd

import (
	"encoding/json"
	"time"
)

// ResponseType discriminates the three envelope kinds the server returns.
type ResponseType string

const (
	ResponseTypeSync  ResponseType = "sync"
	ResponseTypeAsync ResponseType = "async"
	ResponseTypeError ResponseType = "error"
)

// StatusCode is a server status code as found in envelopes, operations and
// instances.
type StatusCode int

// Status codes used by the server.
const (
	OperationCreated StatusCode = 100
	Started          StatusCode = 101
	Stopped          StatusCode = 102
	Running          StatusCode = 103
	Cancelling       StatusCode = 104
	Pending          StatusCode = 105
	Starting         StatusCode = 106
	Stopping         StatusCode = 107
	Aborting         StatusCode = 108
	Freezing         StatusCode = 109
	Frozen           StatusCode = 110
	Thawed           StatusCode = 111
	Error            StatusCode = 112
	Ready            StatusCode = 113
	Success          StatusCode = 200
	Failure          StatusCode = 400
	Cancelled        StatusCode = 401
)

var statusNames = map[StatusCode]string{
	OperationCreated: "Operation created",
	Started:          "Started",
	Stopped:          "Stopped",
	Running:          "Running",
	Cancelling:       "Cancelling",
	Pending:          "Pending",
	Starting:         "Starting",
	Stopping:         "Stopping",
	Aborting:         "Aborting",
	Freezing:         "Freezing",
	Frozen:           "Frozen",
	Thawed:           "Thawed",
	Error:            "Error",
	Ready:            "Ready",
	Success:          "Success",
	Failure:          "Failure",
	Cancelled:        "Cancelled",
}

// String returns the server's name for the code.
func (c StatusCode) String() string {
	if name, ok := statusNames[c]; ok {
		return name
	}

	return "Unknown"
}

// Known reports whether the code is one the server defines.
func (c StatusCode) Known() bool {
	_, ok := statusNames[c]

	return ok
}

// OperationClass is the kind of background operation.
type OperationClass string

const (
	OperationClassTask      OperationClass = "task"
	OperationClassToken     OperationClass = "token"
	OperationClassWebsocket OperationClass = "websocket"
)

// OperationState is the client-side lifecycle state of an operation.
type OperationState int

const (
	OperationStateUnknown OperationState = iota
	OperationStatePending
	OperationStateRunning
	OperationStateSuccess
	OperationStateFailure
	OperationStateCancelled
)

func (s OperationState) String() string {
	switch s {
	case OperationStatePending:
		return "pending"
	case OperationStateRunning:
		return "running"
	case OperationStateSuccess:
		return "success"
	case OperationStateFailure:
		return "failure"
	case OperationStateCancelled:
		return "cancelled"
	case OperationStateUnknown:
		return "unknown"
	}

	return "unknown"
}

// IsTerminal reports whether no further transition can happen.
func (s OperationState) IsTerminal() bool {
	return s == OperationStateSuccess || s == OperationStateFailure || s == OperationStateCancelled
}

// ordinal orders states along pending -> running -> terminal. All terminal
// states share the highest ordinal.
func (s OperationState) ordinal() int {
	switch s {
	case OperationStatePending:
		return 0
	case OperationStateRunning:
		return 1
	case OperationStateSuccess, OperationStateFailure, OperationStateCancelled:
		return 2
	case OperationStateUnknown:
		return -1
	}

	return -1
}

// StateOf maps an operation status code to its lifecycle state.
func StateOf(code StatusCode) OperationState {
	switch code {
	case OperationCreated, Pending:
		return OperationStatePending
	case Running, Cancelling:
		return OperationStateRunning
	case Success:
		return OperationStateSuccess
	case Failure:
		return OperationStateFailure
	case Cancelled:
		return OperationStateCancelled
	default:
		return OperationStateUnknown
	}
}

// Envelope is the outer wrapper of every API response.
type Envelope struct {
	Type       ResponseType    `json:"type"                  yaml:"type"`
	Status     string          `json:"status,omitempty"      yaml:"status,omitempty"`
	StatusCode StatusCode      `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Operation  string          `json:"operation,omitempty"   yaml:"operation,omitempty"`
	ErrorCode  int             `json:"error_code,omitempty"  yaml:"error_code,omitempty"`
	Error      string          `json:"error,omitempty"       yaml:"error,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"    yaml:"-"`
}

// Metadata is a free-form JSON object, used for operation results that carry
// no fixed schema.
type Metadata map[string]interface{}

// Operation is a server-side background task.
type Operation struct {
	ID          string              `json:"id"                  yaml:"id"                  validate:"required"`
	Class       OperationClass      `json:"class"               yaml:"class"               validate:"required,oneof=task token websocket"`
	Description string              `json:"description"         yaml:"description"`
	CreatedAt   time.Time           `json:"created_at"          yaml:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"          yaml:"updated_at"`
	Status      string              `json:"status"              yaml:"status"`
	StatusCode  StatusCode          `json:"status_code"         yaml:"status_code"         validate:"required,operation_status"`
	Resources   map[string][]string `json:"resources,omitempty" yaml:"resources,omitempty"`
	Metadata    Metadata            `json:"metadata,omitempty"  yaml:"metadata,omitempty"`
	MayCancel   bool                `json:"may_cancel"          yaml:"may_cancel"`
	Err         string              `json:"err,omitempty"       yaml:"err,omitempty"`
	ErrCode     int                 `json:"err_code,omitempty"  yaml:"err_code,omitempty"`
	Location    string              `json:"location,omitempty"  yaml:"location,omitempty"`
}

// State returns the lifecycle state derived from the status code.
func (o *Operation) State() OperationState {
	return StateOf(o.StatusCode)
}

// IsTerminal reports whether the operation finished.
func (o *Operation) IsTerminal() bool {
	return o.State().IsTerminal()
}

// IsCancelled reports whether the operation ended by cancellation.
func (o *Operation) IsCancelled() bool {
	return o.State() == OperationStateCancelled
}

// ErrorDetail returns the failure code and message. The code falls back to
// the operation status code when the server did not send err_code.
func (o *Operation) ErrorDetail() (int, string) {
	code := o.ErrCode
	if code == 0 {
		code = int(o.StatusCode)
	}

	return code, o.Err
}

// Event types published on the events channel.
const (
	EventTypeOperation = "operation"
	EventTypeLogging   = "logging"
	EventTypeLifecycle = "lifecycle"
)

// Event is one message from the events channel.
type Event struct {
	Type      string          `json:"type"               yaml:"type"               validate:"required"`
	Timestamp time.Time       `json:"timestamp"          yaml:"timestamp"`
	Metadata  json.RawMessage `json:"metadata"           yaml:"-"`
	Location  string          `json:"location,omitempty" yaml:"location,omitempty"`
	Project   string          `json:"project,omitempty"  yaml:"project,omitempty"`
}

// WaitStrategy selects how operation completion is observed.
type WaitStrategy string

const (
	// WaitStrategyAuto subscribes to events when the server allows it and
	// polls otherwise.
	WaitStrategyAuto WaitStrategy = "auto"
	// WaitStrategyPoll never opens the events channel.
	WaitStrategyPoll WaitStrategy = "poll"
)

// WaitOptions bound a single wait on an operation.
type WaitOptions struct {
	// Timeout caps the total wait. Zero falls back to Config.OperationTimeout,
	// and if that is zero too only the context deadline applies.
	Timeout time.Duration
	// Cancel, when closed, asks the server to cancel the operation.
	Cancel <-chan struct{}
	// PollOnly skips the events channel for this wait.
	PollOnly bool
}
