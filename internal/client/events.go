package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// eventConn is the read side of the events websocket.
type eventConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

type eventDialer func(ctx context.Context) (eventConn, error)

// operationSubscription receives updates for one operation. Updates are
// dropped when the buffer is full; lost is then signalled so the waiter can
// refresh. done is closed when the connection the subscription was made on
// ends.
type operationSubscription struct {
	id      string
	updates chan lxd.Operation
	lost    chan struct{}
	done    <-chan struct{}
}

type eventSubscription struct {
	types  map[string]bool
	events chan lxd.Event
	once   sync.Once
}

func (s *eventSubscription) close() {
	s.once.Do(func() {
		close(s.events)
	})
}

func (s *eventSubscription) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// eventStream multiplexes one events connection to the operation waiters and
// generic subscribers of a session. It connects on first use and reconnects
// on the next use after the connection drops.
type eventStream struct {
	dial   eventDialer
	logger lxd.Logger

	dialMu sync.Mutex

	mu     sync.Mutex
	conn   eventConn
	done   chan struct{}
	closed bool
	ops    map[string]map[*operationSubscription]struct{}
	subs   map[*eventSubscription]struct{}
}

func newEventStream(dial eventDialer, logger lxd.Logger) *eventStream {
	return &eventStream{
		dial:   dial,
		logger: logger,
		ops:    make(map[string]map[*operationSubscription]struct{}),
		subs:   make(map[*eventSubscription]struct{}),
	}
}

// connect returns the done channel of the live connection, dialing if needed.
func (s *eventStream) connect(ctx context.Context) (<-chan struct{}, error) {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()

		return nil, lxd.ErrSessionClosed
	}

	if s.conn != nil {
		done := s.done
		s.mu.Unlock()

		return done, nil
	}

	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", lxd.ErrEventsUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = conn.Close()

		return nil, lxd.ErrSessionClosed
	}

	done := make(chan struct{})
	s.conn = conn
	s.done = done

	s.logger.Debug("events stream connected", nil)

	go s.read(conn, done)

	return done, nil
}

// watchOperation registers for updates of the operation id.
func (s *eventStream) watchOperation(ctx context.Context, id string) (*operationSubscription, error) {
	done, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	sub := &operationSubscription{
		id:      id,
		updates: make(chan lxd.Operation, constants.SmallBufferSize),
		lost:    make(chan struct{}, 1),
		done:    done,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ops[id] == nil {
		s.ops[id] = make(map[*operationSubscription]struct{})
	}

	s.ops[id][sub] = struct{}{}

	return sub, nil
}

func (s *eventStream) unwatchOperation(sub *operationSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	watchers := s.ops[sub.id]
	delete(watchers, sub)

	if len(watchers) == 0 {
		delete(s.ops, sub.id)
	}
}

// subscribe delivers events of the given types until ctx is done or stop is
// called. A subscriber that cannot keep up, or whose connection drops, has
// its channel closed.
func (s *eventStream) subscribe(ctx context.Context, types []string) (<-chan lxd.Event, func(), error) {
	done, err := s.connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	sub := &eventSubscription{
		types:  make(map[string]bool, len(types)),
		events: make(chan lxd.Event, constants.EventBufferSize),
	}

	for _, eventType := range types {
		sub.types[eventType] = true
	}

	s.mu.Lock()

	// The connection may have dropped since connect returned.
	select {
	case <-done:
		sub.close()
	default:
		if s.closed {
			sub.close()
		} else {
			s.subs[sub] = struct{}{}
		}
	}

	s.mu.Unlock()

	remove := func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()

		sub.close()
	}

	stopAfter := context.AfterFunc(ctx, remove)

	stop := func() {
		stopAfter()
		remove()
	}

	return sub.events, stop, nil
}

func (s *eventStream) read(conn eventConn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.drop(conn, done, err)

			return
		}

		var event lxd.Event

		err = json.Unmarshal(data, &event)
		if err != nil {
			s.logger.Warn("discarding malformed event", map[string]interface{}{"error": err.Error()})

			continue
		}

		s.dispatch(event)
	}
}

func (s *eventStream) dispatch(event lxd.Event) {
	var op *lxd.Operation

	if event.Type == lxd.EventTypeOperation {
		decoded, err := lxd.Decode[lxd.Operation](event.Metadata, "metadata")
		if err != nil {
			s.logger.Warn("discarding invalid operation event", map[string]interface{}{"error": err.Error()})
		} else {
			op = decoded
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subs {
		if !sub.wants(event.Type) {
			continue
		}

		select {
		case sub.events <- event:
		default:
			s.logger.Warn("closing slow event subscriber", nil)
			delete(s.subs, sub)
			sub.close()
		}
	}

	if op == nil {
		return
	}

	for sub := range s.ops[op.ID] {
		select {
		case sub.updates <- *op:
		default:
			select {
			case sub.lost <- struct{}{}:
			default:
			}
		}
	}
}

func (s *eventStream) drop(conn eventConn, done chan struct{}, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == conn {
		s.conn = nil
	}

	close(done)

	for sub := range s.subs {
		delete(s.subs, sub)
		sub.close()
	}

	if !s.closed {
		s.logger.Warn("events stream lost", map[string]interface{}{"error": cause.Error()})
	}
}

// Close ends the connection and every subscription.
func (s *eventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	for sub := range s.subs {
		delete(s.subs, sub)
		sub.close()
	}

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	if err != nil {
		return fmt.Errorf("closing events stream: %w", err)
	}

	return nil
}
