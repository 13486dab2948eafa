package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"
	"path"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// InstancesClient implements lxd.InstancesClient.
type InstancesClient struct {
	dispatcher *dispatcher
}

// NewInstancesClient creates a new instances client.
func NewInstancesClient(dispatcher *dispatcher) *InstancesClient {
	return &InstancesClient{dispatcher: dispatcher}
}

// List implements lxd.InstancesClient.List.
func (c *InstancesClient) List(ctx context.Context) ([]lxd.Instance, error) {
	instances, err := list[lxd.Instance](ctx, c.dispatcher, "/1.0/instances")
	if err != nil {
		return nil, fmt.Errorf("listing instances: %w", err)
	}

	return instances, nil
}

// ListNames implements lxd.InstancesClient.ListNames.
func (c *InstancesClient) ListNames(ctx context.Context) ([]string, error) {
	urls, err := call[[]string](ctx, c.dispatcher, nethttp.MethodGet, "/1.0/instances", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("listing instance names: %w", err)
	}

	names := make([]string, 0, len(*urls))
	for _, instanceURL := range *urls {
		names = append(names, lastSegment(instanceURL))
	}

	return names, nil
}

// Get implements lxd.InstancesClient.Get.
func (c *InstancesClient) Get(ctx context.Context, name string) (*lxd.Instance, error) {
	instance, err := call[lxd.Instance](ctx, c.dispatcher, nethttp.MethodGet, instancePath(name), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting instance: %w", err)
	}

	return instance, nil
}

// Create implements lxd.InstancesClient.Create.
func (c *InstancesClient) Create(ctx context.Context, request *lxd.InstancesPost) (lxd.Metadata, error) {
	result, err := c.dispatcher.mutate(ctx, nethttp.MethodPost, "/1.0/instances", request)
	if err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}

	return result, nil
}

// Update implements lxd.InstancesClient.Update.
func (c *InstancesClient) Update(ctx context.Context, name string, request *lxd.InstancePut) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPut, instancePath(name), request)
	if err != nil {
		return fmt.Errorf("updating instance: %w", err)
	}

	return nil
}

// Patch implements lxd.InstancesClient.Patch.
func (c *InstancesClient) Patch(ctx context.Context, name string, request *lxd.InstancePut) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPatch, instancePath(name), request)
	if err != nil {
		return fmt.Errorf("patching instance: %w", err)
	}

	return nil
}

// Delete implements lxd.InstancesClient.Delete.
func (c *InstancesClient) Delete(ctx context.Context, name string) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodDelete, instancePath(name), nil)
	if err != nil {
		return fmt.Errorf("deleting instance: %w", err)
	}

	return nil
}

// GetState implements lxd.InstancesClient.GetState.
func (c *InstancesClient) GetState(ctx context.Context, name string) (*lxd.InstanceState, error) {
	state, err := call[lxd.InstanceState](ctx, c.dispatcher, nethttp.MethodGet, instancePath(name)+"/state", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting instance state: %w", err)
	}

	return state, nil
}

// UpdateState implements lxd.InstancesClient.UpdateState.
func (c *InstancesClient) UpdateState(ctx context.Context, name string, request *lxd.InstanceStatePut) (lxd.Metadata, error) {
	result, err := c.dispatcher.mutate(ctx, nethttp.MethodPut, instancePath(name)+"/state", request)
	if err != nil {
		return nil, fmt.Errorf("changing instance state: %w", err)
	}

	return result, nil
}

func instancePath(name string) string {
	return "/1.0/instances/" + url.PathEscape(name)
}

func lastSegment(resourceURL string) string {
	if parsed, err := url.Parse(resourceURL); err == nil {
		resourceURL = parsed.Path
	}

	name, err := url.PathUnescape(path.Base(resourceURL))
	if err != nil {
		return path.Base(resourceURL)
	}

	return name
}
