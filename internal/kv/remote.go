package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cms-go/internal/cms"
)

// maxRemoteBody caps how much of a remote response is read.
const maxRemoteBody = 4 << 20

// RemoteStore talks to a managed key/value HTTP service.
//
// Reads are GET <readURL>/item/<key>; a 404 or a JSON null means absent.
// Writes are a PATCH of an operation batch to writeURL:
//
//	{"items":[{"operation":"upsert","key":"k","value":{...}}]}
//
// Values must be JSON documents. The service has no conditional write and
// is eventually consistent: a Set may not be visible to the next Get, even
// from this process.
type RemoteStore struct {
	readURL    string
	readToken  string
	writeURL   string
	writeToken string
	client     *http.Client
	limiter    *rate.Limiter
}

// RemoteOption configures a RemoteStore.
type RemoteOption func(*RemoteStore)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *RemoteStore) { r.client = c }
}

// WithTimeout sets the per-request timeout of the HTTP client.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *RemoteStore) { r.client.Timeout = d }
}

// WithRequestRate throttles outbound requests to rps with the given burst.
// A non-positive rps disables throttling.
func WithRequestRate(rps float64, burst int) RemoteOption {
	return func(r *RemoteStore) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewRemoteStore creates a client for the remote key/value service.
func NewRemoteStore(readURL, readToken, writeURL, writeToken string, opts ...RemoteOption) *RemoteStore {
	r := &RemoteStore{
		readURL:    strings.TrimRight(readURL, "/"),
		readToken:  readToken,
		writeURL:   writeURL,
		writeToken: writeToken,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// remoteItem is one entry of a PATCH batch.
type remoteItem struct {
	Operation string          `json:"operation"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
}

type remotePatch struct {
	Items []remoteItem `json:"items"`
}

func (r *RemoteStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.readURL+"/item/"+url.PathEscape(key), nil)
	if err != nil {
		return nil, fmt.Errorf("building read request: %w", err)
	}
	if r.readToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.readToken)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading remote key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, cms.ErrNotFound
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return nil, fmt.Errorf("reading remote response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote read returned %s", resp.Status)
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, fmt.Errorf("remote read returned malformed JSON")
	}
	if bytes.Equal(body, []byte("null")) {
		return nil, cms.ErrNotFound
	}
	return body, nil
}

func (r *RemoteStore) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("remote store only accepts JSON values")
	}
	return r.patch(ctx, remoteItem{Operation: "upsert", Key: key, Value: json.RawMessage(value)})
}

func (r *RemoteStore) Delete(ctx context.Context, key string) error {
	return r.patch(ctx, remoteItem{Operation: "delete", Key: key})
}

func (r *RemoteStore) patch(ctx context.Context, item remoteItem) error {
	if err := r.wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(remotePatch{Items: []remoteItem{item}})
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, r.writeURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.writeToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("writing remote key: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote %s of %q returned %s", item.Operation, item.Key, resp.Status)
	}
	return nil
}

func (r *RemoteStore) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for remote request slot: %w", err)
	}
	return nil
}

func (r *RemoteStore) Shared() bool { return true }
func (r *RemoteStore) Name() string { return "remote" }
func (r *RemoteStore) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

var _ cms.Store = (*RemoteStore)(nil)
