package lxd

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
)

// Client is the main interface for talking to an LXD server.
type Client interface {
	Instances() InstancesClient
	Images() ImagesClient
	StoragePools() StoragePoolsClient
	Networks() NetworksClient
	Certificates() CertificatesClient
	Operations() OperationsClient
	Events() EventsClient

	// GetServer fetches the server description.
	GetServer(ctx context.Context) (*Server, error)
	// Server returns the description fetched when the session was set up.
	Server() *Server
	// Close ends the session. In-flight waits return ErrSessionClosed.
	Close() error
}

// InstancesClient defines operations for instances.
type InstancesClient interface {
	List(ctx context.Context) ([]Instance, error)
	ListNames(ctx context.Context) ([]string, error)
	Get(ctx context.Context, name string) (*Instance, error)
	Create(ctx context.Context, request *InstancesPost) (Metadata, error)
	Update(ctx context.Context, name string, request *InstancePut) error
	Patch(ctx context.Context, name string, request *InstancePut) error
	Delete(ctx context.Context, name string) error
	GetState(ctx context.Context, name string) (*InstanceState, error)
	UpdateState(ctx context.Context, name string, request *InstanceStatePut) (Metadata, error)
}

// ImagesClient defines operations for images.
type ImagesClient interface {
	List(ctx context.Context) ([]Image, error)
	Get(ctx context.Context, fingerprint string) (*Image, error)
	Update(ctx context.Context, fingerprint string, request *ImagePut) error
	Delete(ctx context.Context, fingerprint string) error
}

// StoragePoolsClient defines operations for storage pools.
type StoragePoolsClient interface {
	List(ctx context.Context) ([]StoragePool, error)
	Get(ctx context.Context, name string) (*StoragePool, error)
	Create(ctx context.Context, request *StoragePoolsPost) error
	Update(ctx context.Context, name string, request *StoragePoolPut) error
	Delete(ctx context.Context, name string) error
}

// NetworksClient defines operations for networks.
type NetworksClient interface {
	List(ctx context.Context) ([]Network, error)
	Get(ctx context.Context, name string) (*Network, error)
	Create(ctx context.Context, request *NetworksPost) error
	Update(ctx context.Context, name string, request *NetworkPut) error
	Delete(ctx context.Context, name string) error
}

// CertificatesClient defines operations on the trust store.
type CertificatesClient interface {
	List(ctx context.Context) ([]Certificate, error)
	Get(ctx context.Context, fingerprint string) (*Certificate, error)
	Add(ctx context.Context, request *CertificatesPost) error
	Delete(ctx context.Context, fingerprint string) error
}

// OperationsClient defines operations on background operations.
type OperationsClient interface {
	List(ctx context.Context) ([]Operation, error)
	Get(ctx context.Context, id string) (*Operation, error)
	Cancel(ctx context.Context, id string) error
	// Wait blocks until the operation reaches a terminal state. A failed
	// operation yields *OperationFailedError; a cancelled one is returned
	// with a nil error and IsCancelled() true.
	Wait(ctx context.Context, id string, opts WaitOptions) (*Operation, error)
}

// EventsClient gives access to the server push channel.
type EventsClient interface {
	// Subscribe delivers events of the given types (all when none are given)
	// until ctx is done or the returned stop function is called. The channel
	// is closed when delivery ends.
	Subscribe(ctx context.Context, types ...string) (<-chan Event, func(), error)
}

// Logger interface for client logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Config holds client configuration.
type Config struct {
	// Endpoint: base URL of the server, e.g. https://10.0.0.1:8443. A missing
	// scheme defaults to https.
	Endpoint string

	// ClientCert and ClientKey: PEM client identity. ClientCertFile and
	// ClientKeyFile may be given instead.
	ClientCert     string
	ClientKey      string
	ClientCertFile string
	ClientKeyFile  string
	// ServerCert: PEM certificate the server must present, used as the only
	// trusted authority. ServerCertFile may be given instead. When both are
	// empty the system roots are used.
	ServerCert     string
	ServerCertFile string
	// SkipTLSVerify: disables server verification. Only honoured when
	// LXD_CLIENT_DEV_MODE is set.
	SkipTLSVerify bool

	// Project: project every request is scoped to. Empty means the server default.
	Project string
	// APIVersion: version the caller expects; negotiation fails if the
	// server reports another. Defaults to "1.0".
	APIVersion string
	// WaitStrategy: how operation completion is observed. Defaults to auto.
	WaitStrategy WaitStrategy

	// RequestTimeout: per-request deadline applied by the transport. Zero
	// leaves requests bounded by the caller's context only.
	RequestTimeout time.Duration
	// OperationTimeout: default bound for operation waits.
	OperationTimeout time.Duration
	// PollIntervalMin and PollIntervalMax: poll backoff range.
	PollIntervalMin time.Duration
	PollIntervalMax time.Duration
	// CancelGracePeriod: how long to wait for a requested cancel to be acknowledged.
	CancelGracePeriod time.Duration

	// Debug: enables verbose HTTP request/response logging when a Logger is provided.
	Debug bool
	// Logger: optional structured logger.
	Logger Logger
	// UserAgent: overrides the default User-Agent header sent by the client.
	UserAgent string
	// RequestsPerSecond: client-side rate limit. Zero disables it.
	RequestsPerSecond float64
	// Metrics: when set, per-endpoint request metrics are collected into it.
	Metrics *MetricsCollector
	// Interceptors: extra request/response hooks.
	Interceptors *InterceptorChain
	// Clock: time source for operation tracking. Defaults to the wall clock.
	Clock clock.Clock
}

type cancelSignalKey struct{}

// WithCancelSignal attaches a cancellation signal to ctx. Facade calls that
// start an operation ask the server to cancel it when ch is closed.
func WithCancelSignal(ctx context.Context, ch <-chan struct{}) context.Context {
	return context.WithValue(ctx, cancelSignalKey{}, ch)
}

// CancelSignal returns the signal attached with WithCancelSignal, or nil.
func CancelSignal(ctx context.Context) <-chan struct{} {
	ch, _ := ctx.Value(cancelSignalKey{}).(<-chan struct{})

	return ch
}
