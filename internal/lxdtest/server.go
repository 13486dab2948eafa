// Package lxdtest provides an in-memory LXD server for tests. It serves the
// REST endpoints the client uses, runs background operations from scripted
// status sequences, and publishes operation events over /1.0/events.
package lxdtest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// DefaultOperationDelay is how long an unscripted operation runs.
const DefaultOperationDelay = 20 * time.Millisecond

// Step is one status transition of a scripted operation.
type Step struct {
	// After is the delay since the previous step. Leading steps with no
	// delay are applied before the async response is sent.
	After      time.Duration
	StatusCode lxd.StatusCode
	Err        string
	ErrCode    int
	Metadata   lxd.Metadata
	// Silent updates the stored operation without publishing an event.
	Silent bool
}

// Succeed is the script of an operation that finishes after delay.
func Succeed(delay time.Duration) []Step {
	return []Step{{After: delay, StatusCode: lxd.Success}}
}

// Fail is the script of an operation that fails after delay.
func Fail(delay time.Duration, code int, message string) []Step {
	return []Step{{After: delay, StatusCode: lxd.Failure, ErrCode: code, Err: message}}
}

// Server is a fake LXD server.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	info         lxd.Server
	instances    map[string]*lxd.Instance
	images       map[string]*lxd.Image
	networks     map[string]*lxd.Network
	pools        map[string]*lxd.StoragePool
	certificates map[string]*lxd.Certificate
	operations   map[string]*lxd.Operation
	effects      map[string]func()
	scripts      [][]Step
	overrides    map[string]http.HandlerFunc
	requests     map[string]int
	trustPass    string
	ignoreCancel bool
	eventsOff    bool

	upgrader websocket.Upgrader
	connMu   sync.Mutex
	conns    map[*websocket.Conn]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer starts a fake server with an empty inventory.
func NewServer() *Server {
	s := &Server{
		info: lxd.Server{
			APIVersion:    "1.0",
			APIExtensions: []string{"instances", "projects", "operation_metadata"},
			APIStatus:     "stable",
			Auth:          "trusted",
			AuthMethods:   []string{"tls"},
			Environment: lxd.ServerEnvironment{
				Architectures: []string{"x86_64"},
				Driver:        "lxc | qemu",
				Kernel:        "Linux",
				Server:        "lxd",
				ServerName:    "fake",
				ServerVersion: "5.21",
				Project:       "default",
			},
		},
		instances:    make(map[string]*lxd.Instance),
		images:       make(map[string]*lxd.Image),
		networks:     make(map[string]*lxd.Network),
		pools:        make(map[string]*lxd.StoragePool),
		certificates: make(map[string]*lxd.Certificate),
		operations:   make(map[string]*lxd.Operation),
		effects:      make(map[string]func()),
		overrides:    make(map[string]http.HandlerFunc),
		requests:     make(map[string]int),
		conns:        make(map[*websocket.Conn]struct{}),
		done:         make(chan struct{}),
	}

	s.Server = httptest.NewServer(s.routes())

	return s
}

// Close stops background operations, drops event connections and shuts the
// server down.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.DropEventConnections()
		s.Server.Close()
	})
}

// Handle overrides the handler for an exact method and path.
func (s *Server) Handle(method, path string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[method+" "+path] = handler
}

// ScriptNextOperation sets the status sequence of the next operation the
// server starts. Scripts queue up in call order.
func (s *Server) ScriptNextOperation(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scripts = append(s.scripts, steps)
}

// SetAuth sets the trust state reported by GET /1.0.
func (s *Server) SetAuth(auth string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.Auth = auth
}

// SetAPIVersion sets the version reported by GET /1.0.
func (s *Server) SetAPIVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.APIVersion = version
}

// SetTrustPassword sets the password accepted by POST /1.0/certificates.
func (s *Server) SetTrustPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trustPass = password
}

// IgnoreCancel makes DELETE /1.0/operations/{id} succeed without stopping
// the operation.
func (s *Server) IgnoreCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ignoreCancel = true
}

// DisableEvents makes the events endpoint refuse upgrades.
func (s *Server) DisableEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventsOff = true
}

// AddInstance stores an instance.
func (s *Server) AddInstance(instance lxd.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.instances[instance.Name] = &instance
}

// Instance returns a stored instance.
func (s *Server) Instance(name string) (lxd.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	instance, ok := s.instances[name]
	if !ok {
		return lxd.Instance{}, false
	}

	return *instance, true
}

// AddImage stores an image.
func (s *Server) AddImage(image lxd.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.images[image.Fingerprint] = &image
}

// AddNetwork stores a network.
func (s *Server) AddNetwork(network lxd.Network) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.networks[network.Name] = &network
}

// AddStoragePool stores a storage pool.
func (s *Server) AddStoragePool(pool lxd.StoragePool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pools[pool.Name] = &pool
}

// AddCertificate stores a trusted certificate.
func (s *Server) AddCertificate(cert lxd.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.certificates[cert.Fingerprint] = &cert
}

// Certificates returns the fingerprints in the trust store.
func (s *Server) Certificates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return sortedKeys(s.certificates)
}

// RequestCount returns how many requests hit method and path.
func (s *Server) RequestCount(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.requests[method+" "+path]
}

// Operation returns a stored operation.
func (s *Server) Operation(id string) (lxd.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.operations[id]
	if !ok {
		return lxd.Operation{}, false
	}

	return *op, true
}

// StartOperation creates a background operation. Without steps the next
// queued script is used, or the operation succeeds after
// DefaultOperationDelay.
func (s *Server) StartOperation(description string, resources map[string][]string, steps ...Step) lxd.Operation {
	return s.start(description, resources, nil, steps)
}

// start creates an operation; effect runs once if it succeeds.
func (s *Server) start(description string, resources map[string][]string, effect func(), steps []Step) lxd.Operation {
	now := time.Now().UTC()
	op := &lxd.Operation{
		ID:          uuid.NewString(),
		Class:       lxd.OperationClassTask,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
		Status:      lxd.Running.String(),
		StatusCode:  lxd.Running,
		Resources:   resources,
		Metadata:    lxd.Metadata{},
		MayCancel:   true,
		Location:    "none",
	}

	s.mu.Lock()

	if len(steps) == 0 && len(s.scripts) > 0 {
		steps = s.scripts[0]
		s.scripts = s.scripts[1:]
	}

	if len(steps) == 0 {
		steps = Succeed(DefaultOperationDelay)
	}

	for len(steps) > 0 && steps[0].After == 0 && !op.IsTerminal() {
		applyStep(op, steps[0])
		steps = steps[1:]
	}

	s.operations[op.ID] = op
	snapshot := *op

	if !op.IsTerminal() && effect != nil {
		s.effects[op.ID] = effect
	}

	s.mu.Unlock()

	if snapshot.State() == lxd.OperationStateSuccess && effect != nil {
		effect()
	}

	if !snapshot.IsTerminal() && len(steps) > 0 {
		go s.run(op.ID, steps)
	}

	return snapshot
}

// UpdateOperation applies a step to a stored operation right away.
func (s *Server) UpdateOperation(id string, step Step) {
	s.apply(id, step)
}

// PublishOperation sends an operation event without touching the stored
// operation.
func (s *Server) PublishOperation(op lxd.Operation) {
	s.publish(op)
}

// EventConnections returns the number of connected event listeners.
func (s *Server) EventConnections() int {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	return len(s.conns)
}

// DropEventConnections closes every event listener.
func (s *Server) DropEventConnections() {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}

func (s *Server) run(id string, steps []Step) {
	for _, step := range steps {
		timer := time.NewTimer(step.After)

		select {
		case <-s.done:
			timer.Stop()

			return
		case <-timer.C:
		}

		if s.apply(id, step) {
			return
		}
	}
}

// apply records a step and reports whether the operation is now terminal.
func (s *Server) apply(id string, step Step) bool {
	s.mu.Lock()

	op, ok := s.operations[id]
	if !ok || op.IsTerminal() {
		s.mu.Unlock()

		return true
	}

	applyStep(op, step)
	snapshot := *op

	var effect func()

	if op.IsTerminal() {
		if op.State() == lxd.OperationStateSuccess {
			effect = s.effects[id]
		}

		delete(s.effects, id)
	}

	s.mu.Unlock()

	if effect != nil {
		effect()
	}

	if !step.Silent {
		s.publish(snapshot)
	}

	return snapshot.IsTerminal()
}

func applyStep(op *lxd.Operation, step Step) {
	op.StatusCode = step.StatusCode
	op.Status = step.StatusCode.String()
	op.UpdatedAt = time.Now().UTC()

	if step.Err != "" {
		op.Err = step.Err
		op.ErrCode = step.ErrCode
	}

	if step.Metadata != nil {
		op.Metadata = step.Metadata
	}
}

type eventMessage struct {
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Metadata  lxd.Operation `json:"metadata"`
	Location  string        `json:"location"`
	Project   string        `json:"project"`
}

func (s *Server) publish(op lxd.Operation) {
	message := eventMessage{
		Type:      lxd.EventTypeOperation,
		Timestamp: time.Now().UTC(),
		Metadata:  op,
		Location:  "none",
		Project:   "default",
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()

	for conn := range s.conns {
		err := conn.WriteJSON(message)
		if err != nil {
			_ = conn.Close()
			delete(s.conns, conn)
		}
	}
}

// WriteSync writes a sync envelope.
func WriteSync(writer http.ResponseWriter, metadata interface{}) {
	writeJSON(writer, http.StatusOK, map[string]interface{}{
		"type":        lxd.ResponseTypeSync,
		"status":      lxd.Success.String(),
		"status_code": lxd.Success,
		"metadata":    metadata,
	})
}

// WriteAsync writes an async envelope for op.
func WriteAsync(writer http.ResponseWriter, op lxd.Operation) {
	writeJSON(writer, http.StatusAccepted, map[string]interface{}{
		"type":        lxd.ResponseTypeAsync,
		"status":      lxd.OperationCreated.String(),
		"status_code": lxd.OperationCreated,
		"operation":   "/1.0/operations/" + op.ID,
		"metadata":    op,
	})
}

// WriteError writes an error envelope.
func WriteError(writer http.ResponseWriter, code int, message string) {
	writeJSON(writer, code, map[string]interface{}{
		"type":       lxd.ResponseTypeError,
		"error":      message,
		"error_code": code,
	})
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(body)
}

func fingerprint(data string) string {
	sum := sha256.Sum256([]byte(data))

	return hex.EncodeToString(sum[:])
}

func sortedKeys[T any](items map[string]*T) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// listing renders a collection as URLs, or as full objects with recursion=1.
func listing[T any](request *http.Request, items map[string]*T, prefix string) interface{} {
	keys := sortedKeys(items)

	if request.URL.Query().Get("recursion") == "1" {
		objects := make([]T, 0, len(keys))
		for _, key := range keys {
			objects = append(objects, *items[key])
		}

		return objects
	}

	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		urls = append(urls, prefix+"/"+key)
	}

	return urls
}

func decodeBody(writer http.ResponseWriter, request *http.Request, target interface{}) bool {
	err := json.NewDecoder(request.Body).Decode(target)
	if err != nil {
		WriteError(writer, http.StatusBadRequest, "invalid request body: "+err.Error())

		return false
	}

	return true
}

func operationsByStatus(operations map[string]*lxd.Operation) map[string][]lxd.Operation {
	result := make(map[string][]lxd.Operation)

	for _, key := range sortedKeys(operations) {
		op := operations[key]
		status := strings.ToLower(op.Status)
		result[status] = append(result[status], *op)
	}

	return result
}
