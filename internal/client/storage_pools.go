package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// StoragePoolsClient implements lxd.StoragePoolsClient.
type StoragePoolsClient struct {
	dispatcher *dispatcher
}

// NewStoragePoolsClient creates a new storage pools client.
func NewStoragePoolsClient(dispatcher *dispatcher) *StoragePoolsClient {
	return &StoragePoolsClient{dispatcher: dispatcher}
}

// List implements lxd.StoragePoolsClient.List.
func (c *StoragePoolsClient) List(ctx context.Context) ([]lxd.StoragePool, error) {
	pools, err := list[lxd.StoragePool](ctx, c.dispatcher, "/1.0/storage-pools")
	if err != nil {
		return nil, fmt.Errorf("listing storage pools: %w", err)
	}

	return pools, nil
}

// Get implements lxd.StoragePoolsClient.Get.
func (c *StoragePoolsClient) Get(ctx context.Context, name string) (*lxd.StoragePool, error) {
	pool, err := call[lxd.StoragePool](ctx, c.dispatcher, nethttp.MethodGet, storagePoolPath(name), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting storage pool: %w", err)
	}

	return pool, nil
}

// Create implements lxd.StoragePoolsClient.Create.
func (c *StoragePoolsClient) Create(ctx context.Context, request *lxd.StoragePoolsPost) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPost, "/1.0/storage-pools", request)
	if err != nil {
		return fmt.Errorf("creating storage pool: %w", err)
	}

	return nil
}

// Update implements lxd.StoragePoolsClient.Update.
func (c *StoragePoolsClient) Update(ctx context.Context, name string, request *lxd.StoragePoolPut) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPut, storagePoolPath(name), request)
	if err != nil {
		return fmt.Errorf("updating storage pool: %w", err)
	}

	return nil
}

// Delete implements lxd.StoragePoolsClient.Delete.
func (c *StoragePoolsClient) Delete(ctx context.Context, name string) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodDelete, storagePoolPath(name), nil)
	if err != nil {
		return fmt.Errorf("deleting storage pool: %w", err)
	}

	return nil
}

func storagePoolPath(name string) string {
	return "/1.0/storage-pools/" + url.PathEscape(name)
}
