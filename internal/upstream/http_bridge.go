package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/input-output-hk/cardano-txindexer/pkg/logging"
)

// HTTPBridge fetches chain data from a bridge server reachable over plain
// HTTP, matching the {base}tip / {base}block/{hash} / {base}epoch/{id}
// endpoints.
type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	log        *logging.Logger
}

// NewHTTPBridge creates a bridge client rooted at baseURL (a trailing
// slash is added if missing).
func NewHTTPBridge(baseURL string) *HTTPBridge {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &HTTPBridge{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        logging.GetDefault().Component("upstream"),
	}
}

var _ Upstream = (*HTTPBridge)(nil)

// Tip fetches and decodes the current chain tip header.
func (b *HTTPBridge) Tip(ctx context.Context) (*BlockHeader, error) {
	raw, err := b.get(ctx, "tip")
	if err != nil {
		return nil, err
	}
	var wire struct {
		Hash  string  `json:"hash"`
		Epoch uint64  `json:"epoch"`
		Slot  *uint64 `json:"slot"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("upstream: decode tip: %w", err)
	}
	return &BlockHeader{Hash: wire.Hash, Epoch: wire.Epoch, Slot: wire.Slot}, nil
}

// Block fetches the raw bytes for a single block.
func (b *HTTPBridge) Block(ctx context.Context, hash string) ([]byte, error) {
	return b.get(ctx, "block/"+hash)
}

// Epoch fetches the raw packed bytes for a whole epoch.
func (b *HTTPBridge) Epoch(ctx context.Context, id uint64) ([]byte, error) {
	return b.get(ctx, "epoch/"+strconv.FormatUint(id, 10))
}

// get performs a GET request against the bridge and returns the raw
// response body, mapping well-known status codes to the package's typed
// errors.
func (b *HTTPBridge) get(ctx context.Context, path string) ([]byte, error) {
	reqID := uuid.NewString()
	l := b.log.With("request_id", reqID, "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	l.Debug("fetching")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		l.Warn("request failed", "err", err)
		return nil, fmt.Errorf("upstream: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("upstream: %s: unexpected status %d: %s", path, resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
