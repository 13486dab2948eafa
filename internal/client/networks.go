package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// NetworksClient implements lxd.NetworksClient.
type NetworksClient struct {
	dispatcher *dispatcher
}

// NewNetworksClient creates a new networks client.
func NewNetworksClient(dispatcher *dispatcher) *NetworksClient {
	return &NetworksClient{dispatcher: dispatcher}
}

// List implements lxd.NetworksClient.List.
func (c *NetworksClient) List(ctx context.Context) ([]lxd.Network, error) {
	networks, err := list[lxd.Network](ctx, c.dispatcher, "/1.0/networks")
	if err != nil {
		return nil, fmt.Errorf("listing networks: %w", err)
	}

	return networks, nil
}

// Get implements lxd.NetworksClient.Get.
func (c *NetworksClient) Get(ctx context.Context, name string) (*lxd.Network, error) {
	network, err := call[lxd.Network](ctx, c.dispatcher, nethttp.MethodGet, networkPath(name), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting network: %w", err)
	}

	return network, nil
}

// Create implements lxd.NetworksClient.Create.
func (c *NetworksClient) Create(ctx context.Context, request *lxd.NetworksPost) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPost, "/1.0/networks", request)
	if err != nil {
		return fmt.Errorf("creating network: %w", err)
	}

	return nil
}

// Update implements lxd.NetworksClient.Update.
func (c *NetworksClient) Update(ctx context.Context, name string, request *lxd.NetworkPut) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPut, networkPath(name), request)
	if err != nil {
		return fmt.Errorf("updating network: %w", err)
	}

	return nil
}

// Delete implements lxd.NetworksClient.Delete.
func (c *NetworksClient) Delete(ctx context.Context, name string) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodDelete, networkPath(name), nil)
	if err != nil {
		return fmt.Errorf("deleting network: %w", err)
	}

	return nil
}

func networkPath(name string) string {
	return "/1.0/networks/" + url.PathEscape(name)
}
