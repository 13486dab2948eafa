package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// API surface.
const (
	// APIVersion is the REST API version this client speaks.
	APIVersion = "1.0"

	// APIRoot is the path prefix of every endpoint.
	APIRoot = "/1.0"

	// OperationsPath is the collection of background operations.
	OperationsPath = APIRoot + "/operations"

	// EventsPath is the websocket push channel.
	EventsPath = APIRoot + "/events"

	// DefaultUserAgent is sent when the caller does not override it.
	DefaultUserAgent = "lxd-client/1.0"

	// DefaultProject is the project LXD uses when none is given.
	DefaultProject = "default"
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations.
	ShortHTTPTimeout = 10 * time.Second

	// WebsocketHandshakeTimeout bounds the events channel upgrade.
	WebsocketHandshakeTimeout = 10 * time.Second
)

// Operation tracking.
const (
	// DefaultPollIntervalMin is the first delay between operation polls.
	DefaultPollIntervalMin = 100 * time.Millisecond

	// DefaultPollIntervalMax caps the poll backoff. While subscribed to
	// events the tracker still refreshes at this interval.
	DefaultPollIntervalMax = 5 * time.Second

	// DefaultCancelGracePeriod bounds the wait for a cancel to be acknowledged.
	DefaultCancelGracePeriod = 10 * time.Second

	// QuickPollInterval is used for fast polling in tests.
	QuickPollInterval = 10 * time.Millisecond
)

// Concurrency and batching limits.
const (
	// DefaultConcurrencyLimit limits concurrent operations.
	DefaultConcurrencyLimit = 3

	// EventBufferSize is the per-subscriber event channel capacity.
	EventBufferSize = 32

	// SmallBufferSize is used for smaller buffers.
	SmallBufferSize = 10
)

// Operation status codes as reported by the server.
const (
	StatusCodeCreated    = 100
	StatusCodeRunning    = 103
	StatusCodeCancelling = 104
	StatusCodePending    = 105
	StatusCodeSuccess    = 200
	StatusCodeFailure    = 400
	StatusCodeCancelled  = 401
)

// Instance state actions.
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionRestart  = "restart"
	ActionFreeze   = "freeze"
	ActionUnfreeze = "unfreeze"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// UI and display constants.
const (
	// NotAvailable is used when information is not available.
	NotAvailable = "N/A"

	// FingerprintDisplayLength is how much of an image fingerprint tables show.
	FingerprintDisplayLength = 12
)

// Boolean string values accepted by config set.
const (
	BooleanTrue = "true"
)
