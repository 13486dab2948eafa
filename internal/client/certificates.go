package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// CertificatesClient implements lxd.CertificatesClient.
type CertificatesClient struct {
	dispatcher *dispatcher
}

// NewCertificatesClient creates a new certificates client.
func NewCertificatesClient(dispatcher *dispatcher) *CertificatesClient {
	return &CertificatesClient{dispatcher: dispatcher}
}

// List implements lxd.CertificatesClient.List.
func (c *CertificatesClient) List(ctx context.Context) ([]lxd.Certificate, error) {
	certificates, err := list[lxd.Certificate](ctx, c.dispatcher, "/1.0/certificates")
	if err != nil {
		return nil, fmt.Errorf("listing certificates: %w", err)
	}

	return certificates, nil
}

// Get implements lxd.CertificatesClient.Get.
func (c *CertificatesClient) Get(ctx context.Context, fingerprint string) (*lxd.Certificate, error) {
	certificate, err := call[lxd.Certificate](ctx, c.dispatcher, nethttp.MethodGet, certificatePath(fingerprint), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting certificate: %w", err)
	}

	return certificate, nil
}

// Add implements lxd.CertificatesClient.Add. With only a password the
// server trusts the certificate the session authenticates with.
func (c *CertificatesClient) Add(ctx context.Context, request *lxd.CertificatesPost) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPost, "/1.0/certificates", request)
	if err != nil {
		return fmt.Errorf("adding certificate: %w", err)
	}

	return nil
}

// Delete implements lxd.CertificatesClient.Delete.
func (c *CertificatesClient) Delete(ctx context.Context, fingerprint string) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodDelete, certificatePath(fingerprint), nil)
	if err != nil {
		return fmt.Errorf("deleting certificate: %w", err)
	}

	return nil
}

func certificatePath(fingerprint string) string {
	return "/1.0/certificates/" + url.PathEscape(fingerprint)
}
