package mediastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-transcriber/internal/types"
)

// Filter narrows a listing by filename prefix and/or suffix.
type Filter struct {
	Prefix string `json:"prefix,omitempty"`
	Suffix string `json:"suffix,omitempty"`
}

// Client talks to the remote file store that holds the raw media. It lists
// videos, downloads them to local temp storage and resolves per-video
// metadata.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a file store client. timeout bounds each request,
// including full download transfers.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Filters *Filter `json:"filters,omitempty"`
}

type queryResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Videos  []struct {
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
		URL      string `json:"url"`
	} `json:"videos"`
}

// ListVideos fetches the video listing, optionally filtered. Ids are
// derived from filenames by stripping the extension; relative URLs are
// joined against the store's base URL.
func (c *Client) ListVideos(ctx context.Context, filter Filter) ([]types.VideoFile, error) {
	reqBody := queryRequest{}
	if filter != (Filter{}) {
		reqBody.Filters = &filter
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/videos/query", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("video listing failed: HTTP %d: %s", resp.StatusCode, body)
	}

	var list queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode video listing: %w", err)
	}
	if !list.Success {
		return nil, fmt.Errorf("video listing rejected: %s", list.Error)
	}

	videos := make([]types.VideoFile, 0, len(list.Videos))
	for _, v := range list.Videos {
		if v.Filename == "" {
			continue
		}
		url := v.URL
		if url != "" && !strings.HasPrefix(url, "http") {
			url = c.baseURL + url
		}
		videos = append(videos, types.VideoFile{
			ID:       strings.TrimSuffix(v.Filename, filepath.Ext(v.Filename)),
			Filename: v.Filename,
			Size:     v.Size,
			URL:      url,
		})
	}

	log.Printf("Listed %d videos from file store", len(videos))
	return videos, nil
}

// Download fetches the raw video for id into destDir and returns the local
// path. A partially written file is removed on any failure.
func (c *Client) Download(ctx context.Context, id, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	url := fmt.Sprintf("%s/api/videos/%s/download", c.baseURL, id)
	outPath := filepath.Join(destDir, id+".mp4")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", outPath, err)
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	log.Printf("Downloaded %s (%.2f MB)", outPath, float64(written)/(1024*1024))
	return outPath, nil
}

type metadataResponse struct {
	Success bool             `json:"success"`
	Video   *types.VideoMeta `json:"video"`
}

// ResolveMetadata fetches title/author metadata for a video. A missing
// video reports (nil, nil): absence is a normal outcome, not an error.
func (c *Client) ResolveMetadata(ctx context.Context, id string) (*types.VideoMeta, error) {
	url := fmt.Sprintf("%s/api/videos/%s/metadata", c.baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata lookup failed: HTTP %d", resp.StatusCode)
	}

	var meta metadataResponse
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if !meta.Success || meta.Video == nil {
		return nil, nil
	}
	return meta.Video, nil
}
