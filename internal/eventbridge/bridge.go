// Package eventbridge republishes LXD events on a message bus. Each event
// goes to "<prefix>.<type>" as its JSON encoding; operation events can also
// be kept as the latest snapshot per operation in a key-value bucket.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "lxd.events"

// Publisher sends a message to a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SnapshotStore keeps the latest value per key. nats.KeyValue satisfies it.
type SnapshotStore interface {
	Put(key string, value []byte) (uint64, error)
}

// Stats counts forwarded events.
type Stats struct {
	Published int64
	Failed    int64
	Snapshots int64
	// Stale counts operation events older than the stored snapshot.
	Stale int64
}

// Bridge forwards events from a subscription to a Publisher.
type Bridge struct {
	publisher Publisher
	store     SnapshotStore
	prefix    string
	logger    lxd.Logger

	mu        sync.Mutex
	observers map[string]*lxd.OperationObserver

	published atomic.Int64
	failed    atomic.Int64
	snapshots atomic.Int64
	stale     atomic.Int64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithSubjectPrefix sets the subject prefix.
func WithSubjectPrefix(prefix string) Option {
	return func(b *Bridge) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithSnapshotStore stores the latest state of every operation seen.
func WithSnapshotStore(store SnapshotStore) Option {
	return func(b *Bridge) {
		b.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger lxd.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bridge publishing to publisher.
func New(publisher Publisher, opts ...Option) *Bridge {
	b := &Bridge{
		publisher: publisher,
		prefix:    DefaultSubjectPrefix,
		logger:    nopLogger{},
		observers: make(map[string]*lxd.OperationObserver),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subject returns the subject an event is published to.
func (b *Bridge) Subject(event lxd.Event) string {
	return b.prefix + "." + event.Type
}

// Run forwards events until the channel is closed or ctx is done. Failed
// publishes are logged and counted, not returned.
func (b *Bridge) Run(ctx context.Context, events <-chan lxd.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}

			err := b.Forward(event)
			if err != nil {
				b.logger.Warn("event forward failed", map[string]interface{}{
					"type":  event.Type,
					"error": err.Error(),
				})
			}
		}
	}
}

// Forward publishes a single event.
func (b *Bridge) Forward(event lxd.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.failed.Add(1)

		return fmt.Errorf("encoding %s event: %w", event.Type, err)
	}

	subject := b.Subject(event)

	err = b.publisher.Publish(subject, data)
	if err != nil {
		b.failed.Add(1)

		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	b.published.Add(1)

	if b.store != nil && event.Type == lxd.EventTypeOperation {
		return b.snapshot(event)
	}

	return nil
}

func (b *Bridge) snapshot(event lxd.Event) error {
	op, err := lxd.Decode[lxd.Operation](event.Metadata, "metadata")
	if err != nil {
		return fmt.Errorf("decoding operation event: %w", err)
	}

	if !b.observer(op.ID).Observe(op) {
		b.stale.Add(1)
		b.logger.Debug("skipping stale operation snapshot", map[string]interface{}{
			"operation": op.ID,
			"status":    op.Status,
		})

		return nil
	}

	_, err = b.store.Put(op.ID, event.Metadata)
	if err != nil {
		return fmt.Errorf("storing operation %s: %w", op.ID, err)
	}

	b.snapshots.Add(1)

	return nil
}

func (b *Bridge) observer(id string) *lxd.OperationObserver {
	b.mu.Lock()
	defer b.mu.Unlock()

	observer, ok := b.observers[id]
	if !ok {
		observer = lxd.NewOperationObserver(id)
		b.observers[id] = observer
	}

	return observer
}

// Stats returns the forwarding counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
		Snapshots: b.snapshots.Load(),
		Stale:     b.stale.Load(),
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, map[string]interface{}) {}
func (nopLogger) Info(string, map[string]interface{})  {}
func (nopLogger) Warn(string, map[string]interface{})  {}
func (nopLogger) Error(string, map[string]interface{}) {}
