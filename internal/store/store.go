// Package store uploads image bytes to the object store and returns their
// durable URL. The store contract is minimal: POST raw bytes, receive
// {"url": "..."}.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/config"

	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	. "github.com/Usernode-Labs/usernode-dapp-starter/internal/metrics"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxDownload    = 20 << 20 // bytes accepted when re-hosting
)

// UploadError is a failed upload or download.
type UploadError struct {
	Status int // 0 when no response was received
	Err    error
}

func (e *UploadError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("store: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("store: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Client talks to the object store. The zero endpoint means unconfigured.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New creates a store client. An empty endpoint yields an unconfigured client.
func New(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

// NewFromConfig creates a store client from the store section of cfg.
func NewFromConfig(cfg *config.Config) *Client {
	return New(cfg.Store.URL, cfg.Store.APIKey, cfg.StoreTimeout())
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Upload stores data and returns its URL. An empty contentType is sniffed
// from the bytes.
func (c *Client) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if !c.Configured() {
		return "", &config.ConfigurationError{Feature: "object store", Missing: "store.url"}
	}
	if len(data) == 0 {
		return "", &UploadError{Err: fmt.Errorf("empty payload")}
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return "", &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	MetricDuration("store", "upload", time.Since(start))
	if err != nil {
		MetricFailWithReason("store", "upload", "request")
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		MetricFailWithReason("store", "upload", "read")
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		MetricFailWithReason("store", "upload", fmt.Sprintf("http_%d", resp.StatusCode))
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(Preview(string(body), 200)))}
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &out); err != nil || strings.TrimSpace(out.URL) == "" {
		MetricFailWithReason("store", "upload", "bad_response")
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("response has no url")}
	}

	MetricSuccess("store", "upload")
	L_debug("store: uploaded", "bytes", len(data), "contentType", contentType, "url", out.URL)
	return out.URL, nil
}

// Rehost downloads a temporary URL and uploads its bytes, returning the
// durable URL.
func (c *Client) Rehost(ctx context.Context, tempURL string) (string, error) {
	if !c.Configured() {
		return "", &config.ConfigurationError{Feature: "object store", Missing: "store.url"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tempURL, nil)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("download: %w", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("download failed: %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownload))
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("download: %w", err)}
	}

	// Prefer the bytes over the header; some CDNs send octet-stream.
	contentType := mimetype.Detect(data).String()
	if !strings.HasPrefix(contentType, "image/") {
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "image/") {
			contentType = ct
		}
	}
	return c.Upload(ctx, data, contentType)
}
