package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chainsignal/core/store"
)

// adapter performs the transport-specific half of a dispatch: build and
// send the request, return the raw engine-native body. Error
// classification into ErrorCode happens one layer up, in Dispatcher,
// since it is identical across adapters except for the proxy's
// connection-refused special case.
type adapter interface {
	do(ctx context.Context, slot *store.Slot, task *store.Task, client *http.Client) (map[string]interface{}, error)
}

// remoteWorkerAdapter calls baseUrl + endpoint directly.
type remoteWorkerAdapter struct{}

func (remoteWorkerAdapter) do(ctx context.Context, slot *store.Slot, task *store.Task, client *http.Client) (map[string]interface{}, error) {
	path, err := endpointFor(task.Type, task.Payload)
	if err != nil {
		return nil, err
	}
	return getJSON(ctx, client, slot.BaseURL+path, task.Payload, task.ID)
}

// localParserAdapter calls a local parser over HTTP, carrying a
// system-scoped session credential out of band via a header rather
// than a query parameter.
type localParserAdapter struct {
	baseURL       string
	sessionSource func() string
}

func (a localParserAdapter) do(ctx context.Context, slot *store.Slot, task *store.Task, client *http.Client) (map[string]interface{}, error) {
	path, err := endpointFor(task.Type, task.Payload)
	if err != nil {
		return nil, err
	}
	base := a.baseURL
	if base == "" {
		base = "http://localhost:5001"
	}

	req, err := newGETRequest(ctx, base+path, task.Payload, task.ID)
	if err != nil {
		return nil, err
	}
	if a.sessionSource != nil {
		if session := a.sessionSource(); session != "" {
			req.Header.Set("X-Session-Token", session)
		}
	}
	return doJSON(client, req)
}

// proxyAdapter routes through proxyUrl. A connection-refused error
// against the proxy target is reported as errProxyTargetUnreachable so
// the caller can map it to proxy_not_implemented rather than
// remote_error.
type proxyAdapter struct{}

var errProxyTargetUnreachable = errors.New("dispatch: proxy target unreachable")

func (proxyAdapter) do(ctx context.Context, slot *store.Slot, task *store.Task, client *http.Client) (map[string]interface{}, error) {
	path, err := endpointFor(task.Type, task.Payload)
	if err != nil {
		return nil, err
	}
	result, err := getJSON(ctx, client, slot.ProxyURL+path, task.Payload, task.ID)
	if err != nil && isConnRefused(err) {
		return nil, errProxyTargetUnreachable
	}
	return result, err
}

func isConnRefused(err error) bool {
	if err == nil {
		return false
	}
	return containsSubstring(err.Error(), "connection refused")
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func newGETRequest(ctx context.Context, rawURL string, payload map[string]string, taskID string) (*http.Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("dispatch: invalid target url: %w", err)
	}
	q := u.Query()
	for k, v := range payload {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Task-ID", taskID)
	return req, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, payload map[string]string, taskID string) (map[string]interface{}, error) {
	req, err := newGETRequest(ctx, rawURL, payload, taskID)
	if err != nil {
		return nil, err
	}
	return doJSON(client, req)
}

func doJSON(client *http.Client, req *http.Request) (map[string]interface{}, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("dispatch: runtime returned status %d", resp.StatusCode)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("dispatch: decoding runtime response: %w", err)
	}
	return body, nil
}

var errRateLimited = errors.New("dispatch: runtime returned 429")
