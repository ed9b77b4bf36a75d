// Package classifier is the HTTP client for the external face/attribute
// classifier. The classifier exposes a one-time load operation that fetches
// its runnable form and data assets from a configured location, and a
// per-frame detect operation returning category/confidence detections.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/zombar/feedscan/models"
)

// DefaultBaseURL is the default classifier service endpoint
const DefaultBaseURL = "http://localhost:8790"

// Config contains classifier client configuration
type Config struct {
	BaseURL     string
	ModelURL    string        // location of the runnable model form
	AssetsURL   string        // location of the supporting data assets
	HTTPTimeout time.Duration // timeout for detect calls
	LoadTimeout time.Duration // timeout for the one-time load
}

// DefaultConfig returns default classifier client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		HTTPTimeout: 15 * time.Second,
		LoadTimeout: 2 * time.Minute,
	}
}

// Client talks to the classifier service. Load is lazy, memoized on success,
// and deduplicated across concurrent callers.
type Client struct {
	config     Config
	httpClient *http.Client

	mu      sync.Mutex
	loaded  bool
	loading chan struct{} // non-nil while a load is in flight
}

// NewClient creates a new classifier client
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultConfig().HTTPTimeout
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultConfig().LoadTimeout
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type loadRequest struct {
	Model  string `json:"model,omitempty"`
	Assets string `json:"assets,omitempty"`
}

type detectRequest struct {
	Image string `json:"image"` // base64 encoded PNG
}

type detectResponse struct {
	Detections []models.Detection `json:"detections"`
}

// Load initializes the classifier capability. A successful load is memoized
// for the client's lifetime; concurrent callers before readiness share one
// in-flight load instead of triggering duplicates. A failed load leaves the
// capability unloaded so a later call can retry.
func (c *Client) Load(ctx context.Context) error {
	c.mu.Lock()
	for c.loading != nil {
		ch := c.loading
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	c.loading = ch
	c.mu.Unlock()

	err := c.doLoad(ctx)

	c.mu.Lock()
	c.loading = nil
	if err == nil {
		c.loaded = true
	}
	c.mu.Unlock()
	close(ch)

	return err
}

func (c *Client) doLoad(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	defer cancel()

	body, err := json.Marshal(loadRequest{
		Model:  c.config.ModelURL,
		Assets: c.config.AssetsURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal load request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/load", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// the load can exceed the per-detect client timeout
	client := &http.Client{Transport: c.httpClient.Transport}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	return nil
}

// Ready reports whether the capability finished a successful load.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Detect submits a PNG frame and returns the classifier's detections.
func (c *Client) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(frame),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}

	return decoded.Detections, nil
}
