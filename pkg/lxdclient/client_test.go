package lxdclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/lxd-client/internal/lxdtest"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil)
	require.ErrorIs(t, err, lxd.ErrConfigRequired)

	_, err = New(context.Background(), &lxd.Config{})
	require.ErrorIs(t, err, lxd.ErrEndpointRequired)
}

func TestNewWithEndpoint(t *testing.T) {
	t.Parallel()

	server := lxdtest.NewServer()
	t.Cleanup(server.Close)

	client, err := NewWithEndpoint(context.Background(), server.URL+"/")
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "1.0", client.Server().APIVersion)
}

func TestNew_DoesNotModifyConfig(t *testing.T) {
	t.Parallel()

	server := lxdtest.NewServer()
	t.Cleanup(server.Close)

	config := &lxd.Config{Endpoint: server.URL + "/"}

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, server.URL+"/", config.Endpoint)
}

func TestNewWithCertificates_MissingFiles(t *testing.T) {
	t.Parallel()

	_, err := NewWithCertificates(context.Background(), "127.0.0.1:8443", "/nonexistent/client.crt", "/nonexistent/client.key", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading client certificate")
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		want     string
	}{
		{"https://10.0.0.1:8443", "https://10.0.0.1:8443"},
		{"https://10.0.0.1:8443/", "https://10.0.0.1:8443"},
		{"10.0.0.1:8443", "https://10.0.0.1:8443"},
		{" lxd.example.com:8443 ", "https://lxd.example.com:8443"},
		{"http://127.0.0.1:8080", "http://127.0.0.1:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, normalizeEndpoint(tt.endpoint))
		})
	}
}
