package assetstore

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

	"github.com/eringen/pubcover/publish"
)

// MetaHeaderPrefix prefixes every metadata header on uploads.
const MetaHeaderPrefix = "X-Asset-Meta-"

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// AssetInfo is the JSON body of GET /api/assets/:id.
type AssetInfo struct {
	ID          string            `json:"id"`
	Metadata    map[string]string `json:"metadata"`
	ContentType string            `json:"content_type,omitempty"`
	Size        int64             `json:"size"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// HTTPDoer describes the HTTP client used by HTTPStore.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: asset server returned %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: asset server returned %d: %s", e.Op, e.Code, e.Body)
}

// HTTPStore talks to a pubcover asset server.
type HTTPStore struct {
	baseURL string
	token   string
	timeout time.Duration
	client  HTTPDoer
}

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithToken sets the bearer token sent on uploads.
func WithToken(token string) HTTPOption {
	return func(s *HTTPStore) { s.token = strings.TrimSpace(token) }
}

// WithTimeout bounds each request. Zero leaves deadlines to the caller's
// context.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPStore) { s.timeout = d }
}

// WithClient replaces http.DefaultClient.
func WithClient(c HTTPDoer) HTTPOption {
	return func(s *HTTPStore) { s.client = c }
}

// NewHTTPStore returns a store rooted at baseURL, for example
// "https://assets.example.com".
func NewHTTPStore(baseURL string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *HTTPStore) assetURL(id string) string {
	return s.baseURL + "/api/assets/" + url.PathEscape(id)
}

func (s *HTTPStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Get fetches the metadata of id.
func (s *HTTPStore) Get(ctx context.Context, id string) (publish.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.assetURL(id), nil)
	if err != nil {
		return publish.Record{}, fmt.Errorf("build asset request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return publish.Record{}, fmt.Errorf("get asset %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return publish.Record{}, fmt.Errorf("get asset %s: %w", id, publish.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return publish.Record{}, statusError("get asset", resp)
	}

	var info AssetInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return publish.Record{}, fmt.Errorf("decode asset %s: %w", id, err)
	}
	return publish.Record{
		ID:        info.ID,
		Metadata:  publish.Metadata(info.Metadata),
		Size:      info.Size,
		UpdatedAt: info.UpdatedAt,
	}, nil
}

// Put uploads data to id, replacing whatever was there.
func (s *HTTPStore) Put(ctx context.Context, id string, data []byte, meta publish.Metadata) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.assetURL(id), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	contentType := meta[publish.MetaContentType]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	SetMetadataHeaders(req.Header, meta)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload asset %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return statusError("upload asset", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SetMetadataHeaders writes meta as X-Asset-Meta-* headers.
func SetMetadataHeaders(h http.Header, meta publish.Metadata) {
	for k, v := range meta {
		h.Set(MetaHeaderPrefix+k, v)
	}
}

// MetadataFromHeader collects X-Asset-Meta-* headers. Keys are lowercased.
func MetadataFromHeader(h http.Header) publish.Metadata {
	meta := publish.Metadata{}
	for k, vals := range h {
		if len(vals) == 0 || len(k) <= len(MetaHeaderPrefix) {
			continue
		}
		if !strings.EqualFold(k[:len(MetaHeaderPrefix)], MetaHeaderPrefix) {
			continue
		}
		meta[strings.ToLower(k[len(MetaHeaderPrefix):])] = vals[0]
	}
	return meta
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
