package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client asks an OpenAI-compatible chat endpoint to generate an image and
// extracts the bytes from the data-URL shapes those endpoints return.
type Client struct {
	endpoint string
	key      string
	model    string
	client   *http.Client
}

const requestTimeout = 3 * time.Minute

func New(endpoint, apiKey, model string) *Client {
	return &Client{
		endpoint: endpoint,
		key:      apiKey,
		model:    model,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

type message struct {
	Content json.RawMessage `json:"content"`
	Images  []struct {
		Type     string `json:"type"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	} `json:"images"`
}

func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	payload := map[string]any{
		"stream":     false,
		"model":      c.model,
		"max_tokens": 4096,
		"messages": []map[string]any{
			{
				"role":    "system",
				"content": "You are an AI that generates images. When asked to create an image, generate it and return the image.",
			},
			{
				"role":    "user",
				"content": "Create a high-quality image: " + prompt,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal image request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("accept", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image generation request: %w", err)
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image generation: unexpected status %s", resp.Status)
	}

	var out struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rb, &out); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("image generation: empty response")
	}
	return extractImage(out.Choices[0].Message)
}

// extractImage handles the response shapes seen in the wild: an images
// array of data URLs, a content string that is itself a data URL, or a
// content array with image_url entries.
func extractImage(m message) ([]byte, error) {
	for _, img := range m.Images {
		if b, ok := decodeDataURL(img.ImageURL.URL); ok {
			return b, nil
		}
	}

	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		if b, ok := decodeDataURL(s); ok {
			return b, nil
		}
	}

	var parts []struct {
		Type     string `json:"type"`
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal(m.Content, &parts); err == nil {
		for _, p := range parts {
			if b, ok := decodeDataURL(p.ImageURL.URL); ok {
				return b, nil
			}
		}
	}

	return nil, fmt.Errorf("image generation: no image in response")
}

func decodeDataURL(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, "data:image") {
		return nil, false
	}
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(s[i+1:])
	if err != nil {
		return nil, false
	}
	return b, true
}
