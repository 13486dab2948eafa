package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fivetwenty-io/lxd-client/internal/lxdtest"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

var errConnClosed = errors.New("use of closed connection")

// newTestClient opens a session against the fake server with fast polling.
func newTestClient(t *testing.T, server *lxdtest.Server, mutators ...func(*lxd.Config)) *Client {
	t.Helper()

	config := &lxd.Config{
		Endpoint:          server.URL,
		PollIntervalMin:   5 * time.Millisecond,
		PollIntervalMax:   20 * time.Millisecond,
		CancelGracePeriod: time.Second,
	}

	for _, mutate := range mutators {
		mutate(config)
	}

	client, err := New(context.Background(), config)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func newTestServer(t *testing.T) *lxdtest.Server {
	t.Helper()

	server := lxdtest.NewServer()
	t.Cleanup(server.Close)

	return server
}

func testInstance(name string, code lxd.StatusCode) lxd.Instance {
	return lxd.Instance{
		Name:       name,
		Type:       "container",
		Status:     code.String(),
		StatusCode: code,
		Config:     map[string]string{},
		Devices:    lxd.Devices{},
		Profiles:   []string{"default"},
	}
}

func testOperation(id string, code lxd.StatusCode, updatedAt time.Time) *lxd.Operation {
	return &lxd.Operation{
		ID:          id,
		Class:       lxd.OperationClassTask,
		Description: "test operation",
		CreatedAt:   updatedAt,
		UpdatedAt:   updatedAt,
		Status:      code.String(),
		StatusCode:  code,
		MayCancel:   true,
	}
}

// fetchScript serves a fixed sequence of operation states, repeating the
// last one.
type fetchScript struct {
	mu    sync.Mutex
	ops   []*lxd.Operation
	err   error
	calls int
}

func (f *fetchScript) fetch(ctx context.Context, id string) (*lxd.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	index := min(f.calls, len(f.ops)-1)
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	op := *f.ops[index]

	return &op, nil
}

func (f *fetchScript) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *fetchScript) set(ops ...*lxd.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ops = ops
	f.calls = 0
}

func newTestTracker(fetch operationFetcher) (*tracker, chan struct{}) {
	closed := make(chan struct{})

	return &tracker{
		fetch: fetch,
		cancel: func(ctx context.Context, id string) error {
			return nil
		},
		clock:   clock.NewClock(),
		logger:  nopLogger{},
		closed:  closed,
		pollMin: time.Millisecond,
		pollMax: 5 * time.Millisecond,
		grace:   time.Second,
	}, closed
}

// fakeConn is an in-memory events connection.
type fakeConn struct {
	messages chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		messages: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case message := <-c.messages:
		return websocket.TextMessage, message, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})

	return nil
}

func (c *fakeConn) send(t *testing.T, event interface{}) {
	t.Helper()

	data, err := json.Marshal(event)
	require.NoError(t, err)

	c.messages <- data
}

func operationEvent(op *lxd.Operation) map[string]interface{} {
	return map[string]interface{}{
		"type":      lxd.EventTypeOperation,
		"timestamp": op.UpdatedAt,
		"metadata":  op,
		"location":  "none",
		"project":   "default",
	}
}

// fakeDialer hands out fakeConns and counts dials.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error

	// dropped hands out connections that are already closed.
	dropped bool
}

func (d *fakeDialer) dial(ctx context.Context) (eventConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	conn := newFakeConn()
	d.conns = append(d.conns, conn)

	if d.dropped {
		_ = conn.Close()
	}

	return conn, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.conns) == 0 {
		return nil
	}

	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.conns)
}
