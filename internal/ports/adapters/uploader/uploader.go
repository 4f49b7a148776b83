package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Client pushes a finished artifact to the media store. The remote name is
// the artifact's base name, so a retried upload overwrites instead of
// duplicating.
type Client struct {
	endpoint   string
	retries    int
	retryDelay time.Duration
	maxElapsed time.Duration
	backoff    string // fixed | exponential
	client     *http.Client
	log        zerolog.Logger
}

type Options struct {
	Endpoint   string
	Retries    int
	RetryDelay time.Duration
	MaxElapsed time.Duration
	Backoff    string
	Logger     zerolog.Logger
}

func New(opts Options) *Client {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Minute
	}
	if opts.Backoff == "" {
		opts.Backoff = "fixed"
	}
	return &Client{
		endpoint:   opts.Endpoint,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		maxElapsed: opts.MaxElapsed,
		backoff:    opts.Backoff,
		client:     &http.Client{Timeout: 15 * time.Minute},
		log:        opts.Logger,
	}
}

// Upload delivers the file with bounded retries. Attempts are capped both
// by count and by total wall time.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	deadline := time.Now().Add(c.maxElapsed)

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		url, err := c.attempt(ctx, path)
		if err == nil {
			c.log.Info().Str("file", filepath.Base(path)).Int("attempt", attempt).Msg("upload succeeded")
			return url, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Str("file", filepath.Base(path)).
			Int("attempt", attempt).Int("max", c.retries).Msg("upload attempt failed")

		if attempt == c.retries {
			break
		}
		delay := c.retryDelay
		if c.backoff == "exponential" {
			delay = c.retryDelay << (attempt - 1)
		}
		if time.Now().Add(delay).After(deadline) {
			lastErr = fmt.Errorf("upload wall-time budget exhausted: %w", lastErr)
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("upload failed after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) attempt(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?isSave=true", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("accept", "*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rb, &out); err == nil {
		if out.Data.URL != "" {
			return out.Data.URL, nil
		}
		if out.URL != "" {
			return out.URL, nil
		}
	}
	return "", nil
}
