package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trialscope/internal/resilience"
)

// ObjectStore is a durable key→blob mapping with deterministic URL
// resolution. Implementations hide the transport entirely.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	URL(key string) string
}

// Client talks to a Google Cloud Storage bucket over its JSON/XML APIs.
type Client struct {
	bucket  string
	apiBase string
	urlBase string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides both API and public-URL bases (for tests and
// emulators).
func WithEndpoint(base string) Option {
	return func(c *Client) {
		c.apiBase = base
		c.urlBase = base
	}
}

// WithToken sets a bearer token for authenticated requests.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the given bucket.
func NewClient(bucket string, opts ...Option) *Client {
	c := &Client{
		bucket:  bucket,
		apiBase: "https://storage.googleapis.com",
		urlBase: "https://storage.googleapis.com",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenFromFile reads a bearer token from a credentials file.
func TokenFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "gcs: read credentials")
	}
	return strings.TrimSpace(string(data)), nil
}

// Upload writes an object via the XML API simple upload.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(key), bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "gcs: create upload request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "gcs: upload"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := eris.Errorf("gcs: upload %s: status %d: %s", key, resp.StatusCode, string(body))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(err, resp.StatusCode)
		}
		return err
	}
	return nil
}

// List returns object keys under prefix via the JSON API.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	listURL := fmt.Sprintf("%s/storage/v1/b/%s/o?prefix=%s",
		c.apiBase, url.PathEscape(c.bucket), url.QueryEscape(prefix))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "gcs: create list request")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "gcs: list")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("gcs: list %s: status %d", prefix, resp.StatusCode)
	}

	var out struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "gcs: decode list")
	}

	keys := make([]string, 0, len(out.Items))
	for _, it := range out.Items {
		keys = append(keys, it.Name)
	}
	return keys, nil
}

// URL returns the public URL for an object key.
func (c *Client) URL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.urlBase, c.bucket, key)
}

func (c *Client) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.apiBase, c.bucket, key)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
