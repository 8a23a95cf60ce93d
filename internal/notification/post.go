package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	sendTimeout = 10 * time.Second
	retryDelay  = 500 * time.Millisecond
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}

// postJSON posts body to url. A 5xx answer or a transport error is retried
// once; any other non-2xx status is returned as an error.
func postJSON(ctx context.Context, c *http.Client, url string, body []byte, header http.Header) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		var retry bool
		retry, err = postOnce(ctx, c, url, body, header)
		if err == nil || !retry {
			return err
		}
	}
	return err
}

func postOnce(ctx context.Context, c *http.Client, url string, body []byte, header http.Header) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return false, nil
}
