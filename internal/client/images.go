package client

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// ImagesClient implements lxd.ImagesClient.
type ImagesClient struct {
	dispatcher *dispatcher
}

// NewImagesClient creates a new images client.
func NewImagesClient(dispatcher *dispatcher) *ImagesClient {
	return &ImagesClient{dispatcher: dispatcher}
}

// List implements lxd.ImagesClient.List.
func (c *ImagesClient) List(ctx context.Context) ([]lxd.Image, error) {
	images, err := list[lxd.Image](ctx, c.dispatcher, "/1.0/images")
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	return images, nil
}

// Get implements lxd.ImagesClient.Get.
func (c *ImagesClient) Get(ctx context.Context, fingerprint string) (*lxd.Image, error) {
	image, err := call[lxd.Image](ctx, c.dispatcher, nethttp.MethodGet, imagePath(fingerprint), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting image: %w", err)
	}

	return image, nil
}

// Update implements lxd.ImagesClient.Update.
func (c *ImagesClient) Update(ctx context.Context, fingerprint string, request *lxd.ImagePut) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodPut, imagePath(fingerprint), request)
	if err != nil {
		return fmt.Errorf("updating image: %w", err)
	}

	return nil
}

// Delete implements lxd.ImagesClient.Delete.
func (c *ImagesClient) Delete(ctx context.Context, fingerprint string) error {
	_, err := c.dispatcher.mutate(ctx, nethttp.MethodDelete, imagePath(fingerprint), nil)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}

	return nil
}

func imagePath(fingerprint string) string {
	return "/1.0/images/" + url.PathEscape(fingerprint)
}
