// Package peer implements the sync adapter for a hosted punch peer
// reachable over HTTP, plus the server half that exposes any record store
// as such a peer.
//
// Requests carrying id or punch lists are batched into fixed-size chunks
// so payloads stay bounded; chunking is internal to this adapter and not
// part of the sync contract.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/punchlog/punch/internal/config"
	"github.com/punchlog/punch/internal/punch"
	"github.com/punchlog/punch/internal/sync"
)

// chunkSize bounds the number of ids or punches per request.
const chunkSize = 100

func init() {
	sync.Register(config.KindPeer, func(backend config.Backend, logger *zap.Logger) (sync.Adapter, error) {
		return New(backend.Label, backend.Peer.URL, backend.Peer.Token, logger), nil
	})
}

// wire shapes shared by client and server
type punchesPayload struct {
	Punches []*punch.Punch `json:"punches"`
}

type idsPayload struct {
	IDs []string `json:"ids"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Adapter is the client half of the peer protocol.
type Adapter struct {
	label   string
	baseURL string
	token   string
	client  *http.Client
	log     *zap.Logger
}

var _ sync.Adapter = (*Adapter)(nil)

// New creates a peer adapter for the given base URL. An empty token
// disables authentication. A nil logger disables logging.
func New(label, baseURL, token string, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		label:   label,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// Label implements sync.Adapter.
func (a *Adapter) Label() string { return a.label }

// GetManifest implements sync.Adapter.
func (a *Adapter) GetManifest(ctx context.Context) (sync.Manifest, error) {
	var m sync.Manifest
	if err := a.do(ctx, http.MethodGet, "/api/v1/manifest", nil, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = sync.Manifest{}
	}
	return m, nil
}

// Upload implements sync.Adapter. The peer maintains its own manifest, so
// the snapshot argument is not resent.
func (a *Adapter) Upload(ctx context.Context, punches []*punch.Punch, _ sync.Manifest) ([]*punch.Punch, error) {
	var stored []*punch.Punch
	for chunk := range chunks(punches) {
		var resp punchesPayload
		if err := a.do(ctx, http.MethodPost, "/api/v1/punches", punchesPayload{Punches: chunk}, &resp); err != nil {
			return nil, err
		}
		stored = append(stored, resp.Punches...)
	}
	return stored, nil
}

// Download implements sync.Adapter.
func (a *Adapter) Download(ctx context.Context, ids []string) ([]*punch.Punch, error) {
	var punches []*punch.Punch
	for chunk := range chunks(ids) {
		var resp punchesPayload
		if err := a.do(ctx, http.MethodPost, "/api/v1/punches/fetch", idsPayload{IDs: chunk}, &resp); err != nil {
			return nil, err
		}
		punches = append(punches, resp.Punches...)
	}
	return punches, nil
}

// Delete implements sync.Adapter.
func (a *Adapter) Delete(ctx context.Context, ids []string) ([]string, error) {
	var deleted []string
	for chunk := range chunks(ids) {
		var resp idsPayload
		if err := a.do(ctx, http.MethodPost, "/api/v1/punches/delete", idsPayload{IDs: chunk}, &resp); err != nil {
			return nil, err
		}
		deleted = append(deleted, resp.IDs...)
	}
	return deleted, nil
}

// do executes one JSON request against the peer and decodes the response
// into out (when non-nil).
func (a *Adapter) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("peer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e errorPayload
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
			return fmt.Errorf("peer returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("peer returned %d for %s", resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode peer response: %w", err)
	}
	return nil
}

// chunks yields fixed-size slices of items, preserving order.
func chunks[T any](items []T) func(yield func([]T) bool) {
	return func(yield func([]T) bool) {
		for start := 0; start < len(items); start += chunkSize {
			end := start + chunkSize
			if end > len(items) {
				end = len(items)
			}
			if !yield(items[start:end]) {
				return
			}
		}
	}
}
