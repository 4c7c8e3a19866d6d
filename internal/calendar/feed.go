package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const maxFeedBytes = 8 << 20

// FetchError is a network, HTTP or decode failure of the whole feed.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FeedClient downloads the feed's JSON array. It remembers ETag and
// Last-Modified so an unchanged feed costs a 304.
type FeedClient struct {
	client    *http.Client
	url       string
	userAgent string

	mu           sync.Mutex
	etag         string
	lastModified string
	lastRecords  []json.RawMessage
}

func NewFeedClient(url, userAgent string, timeout time.Duration) *FeedClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FeedClient{
		client:    &http.Client{Timeout: timeout},
		url:       url,
		userAgent: userAgent,
	}
}

// Fetch returns the raw records. Each element is decoded later on its own so
// one malformed record cannot fail the batch.
func (c *FeedClient) Fetch(ctx context.Context) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	c.mu.Lock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	if c.lastModified != "" {
		req.Header.Set("If-Modified-Since", c.lastModified)
	}
	c.mu.Unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified:
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastRecords != nil {
			return c.lastRecords, nil
		}
		return nil, &FetchError{URL: c.url, Status: resp.StatusCode}
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: c.url, Status: resp.StatusCode}
	}

	var records []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&records); err != nil {
		return nil, &FetchError{URL: c.url, Err: fmt.Errorf("decode: %w", err)}
	}

	c.mu.Lock()
	c.etag = resp.Header.Get("ETag")
	c.lastModified = resp.Header.Get("Last-Modified")
	c.lastRecords = records
	c.mu.Unlock()
	return records, nil
}
