package lxd

import "sync"

// OperationObserver holds the most advanced view seen of one operation.
// Updates may arrive out of order from polls and events; an update is kept
// only if it moves the lifecycle forward, or stays at the same stage with a
// timestamp no older than the current one. Nothing changes after a terminal
// state has been observed.
type OperationObserver struct {
	mu      sync.Mutex
	id      string
	current *Operation
}

// NewOperationObserver creates an observer for the operation with the given id.
func NewOperationObserver(id string) *OperationObserver {
	return &OperationObserver{id: id}
}

// Observe offers an update and reports whether it was accepted.
func (o *OperationObserver) Observe(op *Operation) bool {
	if op == nil || op.ID != o.id {
		return false
	}

	incoming := op.State()
	if incoming == OperationStateUnknown {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		known := o.current.State()
		if known.IsTerminal() {
			return false
		}

		if incoming.ordinal() < known.ordinal() {
			return false
		}

		if incoming.ordinal() == known.ordinal() && op.UpdatedAt.Before(o.current.UpdatedAt) {
			return false
		}
	}

	snapshot := *op
	o.current = &snapshot

	return true
}

// Current returns the latest accepted update, or nil.
func (o *OperationObserver) Current() *Operation {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current == nil {
		return nil
	}

	snapshot := *o.current

	return &snapshot
}

// State returns the state of the latest accepted update.
func (o *OperationObserver) State() OperationState {
	current := o.Current()
	if current == nil {
		return OperationStateUnknown
	}

	return current.State()
}
