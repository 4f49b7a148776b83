package scriptapi

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

	"github.com/podvid/podvid/internal/types"
)

// Client talks to the script-manager backend: ordered dialogue lines,
// audio bytes by path, and the post-render status callback.
type Client struct {
	baseURL string
	key     string
	client  *http.Client
}

func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     apiKey,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

type lineDTO struct {
	ID            string          `json:"id"`
	ScriptID      string          `json:"scriptId"`
	Character     types.Character `json:"character"`
	Content       string          `json:"content"`
	VisualContext string          `json:"visualContext"`
	AudioPath     string          `json:"audioPath"`
}

func (c *Client) Lines(ctx context.Context, scriptID string, limit int) ([]types.Line, error) {
	u := fmt.Sprintf("%s/manager/lesson-manager/scripts/%s/all-lines", c.baseURL, url.PathEscape(scriptID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch script lines: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch script lines: unexpected status %s", resp.Status)
	}

	var body struct {
		Data []lineDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode script lines: %w", err)
	}

	lines := make([]types.Line, 0, len(body.Data))
	for i, d := range body.Data {
		if limit > 0 && i >= limit {
			break
		}
		lines = append(lines, types.Line{
			Index:     i,
			ID:        d.ID,
			Character: d.Character,
			Text:      d.Content,
			AudioRef:  d.AudioPath,
		})
	}
	return lines, nil
}

func (c *Client) DownloadAudio(ctx context.Context, audioRef string) ([]byte, error) {
	u := fmt.Sprintf("%s/manager/media/download-by-path?filePath=%s&view=false",
		c.baseURL, url.QueryEscape(audioRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio %s: %w", audioRef, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio %s: unexpected status %s", audioRef, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download audio %s: %w", audioRef, err)
	}
	return b, nil
}

func (c *Client) UpdateStatus(ctx context.Context, scriptID, videoURL string) error {
	u := fmt.Sprintf("%s/manager/lesson-manager/scripts/%s", c.baseURL, url.PathEscape(scriptID))
	payload, err := json.Marshal(map[string]string{
		"videoUrl": videoURL,
		"status":   "WAIT_FOR_REVIEW",
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("update script status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update script status: unexpected status %s", resp.Status)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	req.Header.Set("accept", "*/*")
	if c.key != "" {
		req.Header.Set("Authorization", "Apikey "+c.key)
	}
}
