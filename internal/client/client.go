package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"
	"sync"

	"code.cloudfoundry.org/clock"
	"github.com/hashicorp/go-multierror"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/internal/http"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// Client implements the lxd.Client interface. One Client is one session:
// a pooled TLS transport, an optional events connection and the operation
// tracker shared by every resource client.
type Client struct {
	httpClient *http.Client
	dispatcher *dispatcher
	tracker    *tracker
	events     *eventStream
	logger     lxd.Logger

	mu     sync.RWMutex
	server *lxd.Server

	closed    chan struct{}
	closeOnce sync.Once

	// Resource clients
	instances    *InstancesClient
	images       *ImagesClient
	storagePools *StoragePoolsClient
	networks     *NetworksClient
	certificates *CertificatesClient
	operations   *OperationsClient
	subscriber   *EventsClient
}

var _ lxd.Client = (*Client)(nil)

// createInterceptorChain builds the chain run around every request.
func createInterceptorChain(config *lxd.Config) *lxd.InterceptorChain {
	chain := lxd.NewInterceptorChain()
	chain.AddRequestInterceptor(lxd.RequestIDInterceptor())

	if config.RequestsPerSecond > 0 {
		chain.AddRequestInterceptor(lxd.RateLimitInterceptor(config.RequestsPerSecond))
	}

	if config.Metrics != nil {
		chain.AddRequestInterceptor(lxd.MetricsRequestInterceptor(config.Metrics))
		chain.AddResponseInterceptor(lxd.MetricsResponseInterceptor(config.Metrics))
	}

	if config.Interceptors != nil {
		chain.AddRequestInterceptor(config.Interceptors.ExecuteRequestInterceptors)
		chain.AddResponseInterceptor(config.Interceptors.ExecuteResponseInterceptors)
	}

	return chain
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *lxd.Config, logger lxd.Logger) ([]http.Option, error) {
	tlsConfig, err := lxd.TLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("building TLS configuration: %w", err)
	}

	httpOpts := []http.Option{
		http.WithTLSConfig(tlsConfig),
		http.WithLogger(logger),
		http.WithInterceptors(createInterceptorChain(config)),
	}

	if config.Debug {
		httpOpts = append(httpOpts, http.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, http.WithUserAgent(config.UserAgent))
	}

	if config.RequestTimeout > 0 {
		httpOpts = append(httpOpts, http.WithRequestTimeout(config.RequestTimeout))
	}

	return httpOpts, nil
}

// New creates a session and negotiates with the server: it fetches
// GET /1.0, checks the API version and decides whether operation waits may
// use the events channel.
func New(ctx context.Context, config *lxd.Config) (*Client, error) {
	if config == nil {
		return nil, lxd.ErrConfigRequired
	}

	if config.Endpoint == "" {
		return nil, lxd.ErrEndpointRequired
	}

	var logger lxd.Logger = nopLogger{}
	if config.Logger != nil {
		logger = config.Logger
	}

	httpOpts, err := createHTTPClientOptions(config, logger)
	if err != nil {
		return nil, err
	}

	httpClient := http.NewClient(config.Endpoint, httpOpts...)
	closed := make(chan struct{})

	dispatcher := &dispatcher{
		http:    httpClient,
		project: config.Project,
		closed:  closed,
	}

	events := newEventStream(dialEvents(httpClient, config.Project), logger)

	tracker := &tracker{
		fetch:   dispatcher.fetchOperation,
		cancel:  dispatcher.cancelOperation,
		events:  events,
		clock:   config.Clock,
		logger:  logger,
		closed:  closed,
		pollMin: orDefault(config.PollIntervalMin, constants.DefaultPollIntervalMin),
		pollMax: orDefault(config.PollIntervalMax, constants.DefaultPollIntervalMax),
		grace:   orDefault(config.CancelGracePeriod, constants.DefaultCancelGracePeriod),
		timeout: config.OperationTimeout,
	}

	if tracker.clock == nil {
		tracker.clock = clock.NewClock()
	}

	if tracker.pollMax < tracker.pollMin {
		tracker.pollMax = tracker.pollMin
	}

	dispatcher.tracker = tracker

	client := &Client{
		httpClient: httpClient,
		dispatcher: dispatcher,
		tracker:    tracker,
		events:     events,
		logger:     logger,
		closed:     closed,
	}

	client.initializeResourceClients()

	err = client.negotiate(ctx, config)
	if err != nil {
		_ = client.Close()

		return nil, err
	}

	return client, nil
}

func (c *Client) initializeResourceClients() {
	c.instances = NewInstancesClient(c.dispatcher)
	c.images = NewImagesClient(c.dispatcher)
	c.storagePools = NewStoragePoolsClient(c.dispatcher)
	c.networks = NewNetworksClient(c.dispatcher)
	c.certificates = NewCertificatesClient(c.dispatcher)
	c.operations = NewOperationsClient(c.dispatcher, c.tracker)
	c.subscriber = NewEventsClient(c.events)
}

func (c *Client) negotiate(ctx context.Context, config *lxd.Config) error {
	server, err := c.GetServer(ctx)
	if err != nil {
		return fmt.Errorf("negotiating with %s: %w", c.httpClient.BaseURL(), err)
	}

	expected := config.APIVersion
	if expected == "" {
		expected = constants.APIVersion
	}

	if server.APIVersion != expected {
		return fmt.Errorf("%w: server speaks %s, client expects %s",
			lxd.ErrUnsupportedAPIVersion, server.APIVersion, expected)
	}

	useEvents := config.WaitStrategy != lxd.WaitStrategyPoll && server.Trusted()
	c.tracker.useEvents.Store(useEvents)

	c.logger.Debug("session established", map[string]interface{}{
		"endpoint":    c.httpClient.BaseURL(),
		"api_version": server.APIVersion,
		"auth":        server.Auth,
		"events":      useEvents,
	})

	return nil
}

// GetServer implements lxd.Client.GetServer.
func (c *Client) GetServer(ctx context.Context) (*lxd.Server, error) {
	server, err := call[lxd.Server](ctx, c.dispatcher, nethttp.MethodGet, constants.APIRoot, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting server: %w", err)
	}

	c.mu.Lock()
	c.server = server
	c.mu.Unlock()

	return server, nil
}

// Server implements lxd.Client.Server.
func (c *Client) Server() *lxd.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.server == nil {
		return nil
	}

	server := *c.server

	return &server
}

// Close implements lxd.Client.Close.
func (c *Client) Close() error {
	var result *multierror.Error

	c.closeOnce.Do(func() {
		close(c.closed)

		err := c.events.Close()
		if err != nil {
			result = multierror.Append(result, err)
		}

		c.httpClient.CloseIdleConnections()
	})

	return result.ErrorOrNil()
}

// Resource client accessors

// Instances implements lxd.Client.Instances.
func (c *Client) Instances() lxd.InstancesClient {
	return c.instances
}

// Images implements lxd.Client.Images.
func (c *Client) Images() lxd.ImagesClient {
	return c.images
}

// StoragePools implements lxd.Client.StoragePools.
func (c *Client) StoragePools() lxd.StoragePoolsClient {
	return c.storagePools
}

// Networks implements lxd.Client.Networks.
func (c *Client) Networks() lxd.NetworksClient {
	return c.networks
}

// Certificates implements lxd.Client.Certificates.
func (c *Client) Certificates() lxd.CertificatesClient {
	return c.certificates
}

// Operations implements lxd.Client.Operations.
func (c *Client) Operations() lxd.OperationsClient {
	return c.operations
}

// Events implements lxd.Client.Events.
func (c *Client) Events() lxd.EventsClient {
	return c.subscriber
}

func dialEvents(httpClient *http.Client, project string) eventDialer {
	query := url.Values{"type": {"operation,lifecycle,logging"}}
	if project != "" {
		query.Set("project", project)
	}

	return func(ctx context.Context) (eventConn, error) {
		conn, err := httpClient.DialWebsocket(ctx, constants.EventsPath, query)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}
}

func orDefault[T comparable](value, fallback T) T {
	var zero T
	if value == zero {
		return fallback
	}

	return value
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, fields map[string]interface{}) {}
func (nopLogger) Info(msg string, fields map[string]interface{})  {}
func (nopLogger) Warn(msg string, fields map[string]interface{})  {}
func (nopLogger) Error(msg string, fields map[string]interface{}) {}
