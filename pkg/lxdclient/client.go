package lxdclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/lxd-client/internal/client"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// New creates an LXD client and negotiates the session with the server.
// The config is copied; a missing endpoint scheme defaults to https.
func New(ctx context.Context, config *lxd.Config) (lxd.Client, error) {
	if config == nil {
		return nil, lxd.ErrConfigRequired
	}

	if config.Endpoint == "" {
		return nil, lxd.ErrEndpointRequired
	}

	session := *config
	session.Endpoint = normalizeEndpoint(config.Endpoint)

	c, err := client.New(ctx, &session)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

// NewWithEndpoint creates a client with no client certificate. Such a
// session is usually untrusted and can only add itself to the trust store.
func NewWithEndpoint(ctx context.Context, endpoint string) (lxd.Client, error) {
	return New(ctx, &lxd.Config{Endpoint: endpoint})
}

// NewWithCertificates creates a client authenticated by the key pair in
// certFile and keyFile. serverCertFile pins the server certificate and may
// be empty.
func NewWithCertificates(ctx context.Context, endpoint, certFile, keyFile, serverCertFile string) (lxd.Client, error) {
	return New(ctx, &lxd.Config{
		Endpoint:       endpoint,
		ClientCertFile: certFile,
		ClientKeyFile:  keyFile,
		ServerCertFile: serverCertFile,
	})
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}
