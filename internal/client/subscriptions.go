package client

import (
	"context"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// EventsClient implements lxd.EventsClient.
type EventsClient struct {
	stream *eventStream
}

// NewEventsClient creates a new events client.
func NewEventsClient(stream *eventStream) *EventsClient {
	return &EventsClient{stream: stream}
}

// Subscribe implements lxd.EventsClient.Subscribe.
func (c *EventsClient) Subscribe(ctx context.Context, types ...string) (<-chan lxd.Event, func(), error) {
	return c.stream.subscribe(ctx, types)
}
