package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

type operationFetcher func(ctx context.Context, id string) (*lxd.Operation, error)

type operationCanceller func(ctx context.Context, id string) error

// tracker waits for background operations. It listens on the events stream
// when the session may, and polls GET /1.0/operations/{id} otherwise or when
// the stream is lost. Every observation goes through an OperationObserver,
// so a late poll never undoes a newer event.
type tracker struct {
	fetch     operationFetcher
	cancel    operationCanceller
	events    *eventStream
	useEvents atomic.Bool

	clock   clock.Clock
	logger  lxd.Logger
	closed  <-chan struct{}
	pollMin time.Duration
	pollMax time.Duration
	grace   time.Duration
	timeout time.Duration
}

// OperationID extracts the operation id from a reference such as
// "/1.0/operations/<id>", a full URL, or a bare id.
func OperationID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)

	if parsed, err := url.Parse(ref); err == nil {
		ref = parsed.Path
	}

	ref = strings.TrimSuffix(ref, "/")
	ref = strings.TrimPrefix(ref, constants.OperationsPath+"/")

	if ref == "" || strings.Contains(ref, "/") {
		return "", fmt.Errorf("%w: %q", lxd.ErrInvalidOperationRef, ref)
	}

	return ref, nil
}

// Wait blocks until the operation referenced by ref is terminal and returns
// it. A failed operation comes with *lxd.OperationFailedError; a cancelled
// one with a nil error.
func (t *tracker) Wait(ctx context.Context, ref string, opts lxd.WaitOptions) (*lxd.Operation, error) {
	id, err := OperationID(ref)
	if err != nil {
		return nil, err
	}

	waitCtx, stopWait := context.WithCancel(ctx)
	defer stopWait()

	go func() {
		select {
		case <-t.closed:
			stopWait()
		case <-waitCtx.Done():
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = t.timeout
	}

	var deadline <-chan time.Time

	if timeout > 0 {
		timer := t.clock.NewTimer(timeout)
		defer timer.Stop()

		deadline = timer.C()
	}

	w := &waiter{
		tracker:  t,
		ctx:      waitCtx,
		id:       id,
		observer: lxd.NewOperationObserver(id),
	}

	if !opts.PollOnly && t.useEvents.Load() && t.events != nil {
		sub, err := t.events.watchOperation(waitCtx, id)
		if err != nil {
			t.logger.Warn("events unavailable, polling operation", map[string]interface{}{
				"operation": id,
				"error":     err.Error(),
			})
		} else {
			w.sub = sub
			defer t.events.unwatchOperation(sub)
		}
	}

	// The operation may have finished before the subscription existed, so
	// one fetch always happens.
	err = w.refresh()
	if err != nil {
		return w.observer.Current(), w.interrupted(err)
	}

	cancelSignal := opts.Cancel

	var (
		attempt   int
		grace     clock.Timer
		graceC    <-chan time.Time
		cancelErr error
	)

	defer func() {
		if grace != nil {
			grace.Stop()
		}
	}()

	for {
		current := w.observer.Current()
		if current != nil && current.IsTerminal() {
			return outcome(current)
		}

		interval := t.pollMax
		if w.sub == nil {
			interval = retryablehttp.DefaultBackoff(t.pollMin, t.pollMax, attempt, nil)
		}

		var updates <-chan lxd.Operation

		var lost, streamDone <-chan struct{}

		if w.sub != nil {
			updates = w.sub.updates
			lost = w.sub.lost
			streamDone = w.sub.done
		}

		timer := t.clock.NewTimer(interval)

		select {
		case <-waitCtx.Done():
			timer.Stop()

			return current, w.interrupted(waitCtx.Err())

		case <-deadline:
			timer.Stop()

			return current, &lxd.TimeoutError{Kind: lxd.TimeoutOperation, OperationID: id}

		case <-cancelSignal:
			timer.Stop()

			cancelSignal = nil

			// A rejected cancel usually means the operation already finished;
			// the wait carries on until the grace period runs out.
			cancelErr = t.cancel(waitCtx, id)
			if cancelErr != nil {
				t.logger.Warn("operation cancel rejected", map[string]interface{}{
					"operation": id,
					"error":     cancelErr.Error(),
				})
			} else {
				t.logger.Info("operation cancel requested", map[string]interface{}{"operation": id})
			}

			grace = t.clock.NewTimer(t.grace)
			graceC = grace.C()

			err = w.refresh()

		case <-graceC:
			timer.Stop()

			if cancelErr != nil {
				return current, w.interrupted(fmt.Errorf("cancelling operation %s: %w", id, cancelErr))
			}

			return current, &lxd.TimeoutError{Kind: lxd.TimeoutOperation, OperationID: id}

		case op := <-updates:
			timer.Stop()
			w.observer.Observe(&op)

		case <-lost:
			timer.Stop()

			err = w.refresh()

		case <-streamDone:
			timer.Stop()

			t.logger.Warn("events stream lost, polling operation", map[string]interface{}{"operation": id})
			t.events.unwatchOperation(w.sub)
			w.sub = nil
			attempt = 0

			err = w.refresh()

		case <-timer.C():
			timer.Stop()

			attempt++

			err = w.refresh()
		}

		if err != nil {
			return w.observer.Current(), w.interrupted(err)
		}
	}
}

type waiter struct {
	tracker  *tracker
	ctx      context.Context
	id       string
	observer *lxd.OperationObserver
	sub      *operationSubscription
}

func (w *waiter) refresh() error {
	op, err := w.tracker.fetch(w.ctx, w.id)
	if err != nil {
		return fmt.Errorf("refreshing operation %s: %w", w.id, err)
	}

	if !w.observer.Observe(op) {
		w.tracker.logger.Debug("ignoring stale operation update", map[string]interface{}{
			"operation": w.id,
			"status":    op.Status,
		})
	}

	return nil
}

// interrupted maps an error seen while waiting, reporting a closed session
// ahead of whatever the aborted request returned.
func (w *waiter) interrupted(err error) error {
	select {
	case <-w.tracker.closed:
		return lxd.ErrSessionClosed
	default:
	}

	ctxErr := w.ctx.Err()

	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return &lxd.TimeoutError{Kind: lxd.TimeoutOperation, OperationID: w.id, Err: ctxErr}
	}

	if ctxErr != nil && (err == ctxErr || !errors.Is(err, ctxErr)) {
		return fmt.Errorf("waiting for operation %s: %w", w.id, ctxErr)
	}

	return err
}

func outcome(op *lxd.Operation) (*lxd.Operation, error) {
	if op.State() == lxd.OperationStateFailure {
		return op, lxd.NewOperationFailedError(op)
	}

	return op, nil
}
