package client

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/fivetwenty-io/lxd-client/internal/http"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// dispatcher sends requests, decodes envelopes and, for async responses,
// waits on the tracker so callers only ever see final results.
type dispatcher struct {
	http    *http.Client
	tracker *tracker
	project string
	closed  <-chan struct{}
}

// send performs one round trip and returns the decoded envelope. Error
// envelopes come back as *lxd.APIError.
func (d *dispatcher) send(ctx context.Context, method, path string, query url.Values, body interface{}) (*lxd.Envelope, error) {
	select {
	case <-d.closed:
		return nil, lxd.ErrSessionClosed
	default:
	}

	if body != nil {
		err := lxd.Validate(body, "body")
		if err != nil {
			return nil, err
		}
	}

	if d.project != "" {
		scoped := url.Values{}
		for key, values := range query {
			scoped[key] = values
		}

		scoped.Set("project", d.project)
		query = scoped
	}

	resp, err := d.http.Do(ctx, &http.Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	env, err := lxd.DecodeEnvelope(resp.Body)
	if err != nil && resp.StatusCode >= nethttp.StatusInternalServerError {
		// Proxies in front of LXD answer with their own error pages.
		return nil, &lxd.APIError{
			StatusCode: resp.StatusCode,
			Code:       resp.StatusCode,
			Message:    nethttp.StatusText(resp.StatusCode),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if env.Type == lxd.ResponseTypeError {
		return nil, env.APIError(resp.StatusCode)
	}

	return env, nil
}

// call performs a request and decodes its final result as T. For an async
// response that is the metadata of the finished operation.
func call[T any](ctx context.Context, d *dispatcher, method, path string, query url.Values, body interface{}) (*T, error) {
	env, err := d.send(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	if env.Type == lxd.ResponseTypeSync {
		return lxd.Decode[T](env.Metadata, "metadata")
	}

	op, err := d.tracker.Wait(ctx, env.Operation, lxd.WaitOptions{Cancel: lxd.CancelSignal(ctx)})
	if err != nil {
		return nil, err
	}

	if op.IsCancelled() {
		return nil, &lxd.OperationCancelled{OperationID: op.ID, Operation: op}
	}

	raw, err := json.Marshal(op.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding operation metadata: %w", err)
	}

	return lxd.Decode[T](raw, "operation.metadata")
}

// list decodes a collection fetched with recursion=1.
func list[T any](ctx context.Context, d *dispatcher, path string) ([]T, error) {
	env, err := d.send(ctx, nethttp.MethodGet, path, url.Values{"recursion": {"1"}}, nil)
	if err != nil {
		return nil, err
	}

	if env.Type != lxd.ResponseTypeSync {
		return nil, fmt.Errorf("%w: %s for GET %s", lxd.ErrUnexpectedResponseType, env.Type, path)
	}

	return lxd.DecodeList[T](env.Metadata, "metadata")
}

// mutate performs a request whose result has no schema. A null result is
// returned as an empty map.
func (d *dispatcher) mutate(ctx context.Context, method, path string, body interface{}) (lxd.Metadata, error) {
	result, err := call[lxd.Metadata](ctx, d, method, path, nil, body)
	if err != nil {
		return nil, err
	}

	if *result == nil {
		return lxd.Metadata{}, nil
	}

	return *result, nil
}

func (d *dispatcher) fetchOperation(ctx context.Context, id string) (*lxd.Operation, error) {
	path := operationPath(id)

	env, err := d.send(ctx, nethttp.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	if env.Type != lxd.ResponseTypeSync {
		return nil, fmt.Errorf("%w: %s for GET %s", lxd.ErrUnexpectedResponseType, env.Type, path)
	}

	return lxd.Decode[lxd.Operation](env.Metadata, "metadata")
}

func (d *dispatcher) cancelOperation(ctx context.Context, id string) error {
	_, err := d.send(ctx, nethttp.MethodDelete, operationPath(id), nil, nil)

	return err
}

func operationPath(id string) string {
	return "/1.0/operations/" + url.PathEscape(id)
}
