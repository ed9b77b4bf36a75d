// Package snapshot is the HTTP client for the snapshot agent: the external
// collaborator that runs beside the live feed document and serves serialized
// DOM snapshots plus per-element frame captures.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/feedscan/models"
)

// DefaultBaseURL is the default snapshot agent endpoint
const DefaultBaseURL = "http://localhost:8750"

// Config contains snapshot agent client configuration
type Config struct {
	BaseURL       string
	HTTPTimeout   time.Duration
	FrameTimeout  time.Duration // timeout for individual frame captures
	MaxFrameBytes int64         // maximum frame size to download (bytes)
}

// DefaultConfig returns default snapshot client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		HTTPTimeout:   10 * time.Second,
		FrameTimeout:  5 * time.Second,
		MaxFrameBytes: 10 * 1024 * 1024, // 10MB max frame size
	}
}

// Client talks to the snapshot agent
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new snapshot agent client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultConfig().HTTPTimeout
	}
	if config.FrameTimeout <= 0 {
		config.FrameTimeout = DefaultConfig().FrameTimeout
	}
	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = DefaultConfig().MaxFrameBytes
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Snapshot fetches one serialized view of the live document.
func (c *Client) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.config.BaseURL+"/snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &snap, nil
}

// Frame captures the current visual frame of an element as PNG bytes, with
// size and timeout limits.
func (c *Client) Frame(ctx context.Context, captureID string) ([]byte, error) {
	if captureID == "" {
		return nil, fmt.Errorf("capture id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.FrameTimeout)
	defer cancel()

	frameURL := c.config.BaseURL + "/frame/" + url.PathEscape(captureID)
	req, err := http.NewRequestWithContext(ctx, "GET", frameURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, fmt.Errorf("element has no renderable frame")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > c.config.MaxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d bytes (max: %d)", resp.ContentLength, c.config.MaxFrameBytes)
	}

	limitedReader := io.LimitReader(resp.Body, c.config.MaxFrameBytes+1)
	frame, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}

	if int64(len(frame)) > c.config.MaxFrameBytes {
		return nil, fmt.Errorf("frame too large: exceeds %d bytes", c.config.MaxFrameBytes)
	}

	return frame, nil
}
