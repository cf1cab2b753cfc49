package mediastore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListVideos(t *testing.T) {
	t.Run("parses listing and derives ids", func(t *testing.T) {
		var gotFilters map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/videos/query", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotFilters, _ = body["filters"].(map[string]any)

			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"videos": []map[string]any{
					{"filename": "abc123.mp4", "size": 1024, "url": "/files/abc123.mp4"},
					{"filename": "def456.mp4", "size": 2048, "url": "http://cdn.example.com/def456.mp4"},
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, 5*time.Second)
		videos, err := c.ListVideos(context.Background(), Filter{Suffix: ".mp4"})
		require.NoError(t, err)
		require.Len(t, videos, 2)

		assert.Equal(t, ".mp4", gotFilters["suffix"])
		assert.Equal(t, "abc123", videos[0].ID)
		assert.Equal(t, server.URL+"/files/abc123.mp4", videos[0].URL)
		assert.Equal(t, "def456", videos[1].ID)
		assert.Equal(t, "http://cdn.example.com/def456.mp4", videos[1].URL)
	})

	t.Run("store-level rejection becomes an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "scan in progress"})
		}))
		defer server.Close()

		c := NewClient(server.URL, 5*time.Second)
		_, err := c.ListVideos(context.Background(), Filter{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scan in progress")
	})

	t.Run("empty listing is not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"success": true, "videos": []any{}})
		}))
		defer server.Close()

		c := NewClient(server.URL, 5*time.Second)
		videos, err := c.ListVideos(context.Background(), Filter{})
		require.NoError(t, err)
		assert.Empty(t, videos)
	})
}

func TestDownload(t *testing.T) {
	t.Run("writes file to dest dir", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/videos/abc123/download", r.URL.Path)
			w.Write([]byte("fake video bytes"))
		}))
		defer server.Close()

		dest := t.TempDir()
		c := NewClient(server.URL, 5*time.Second)
		path, err := c.Download(context.Background(), "abc123", dest)
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dest, "abc123.mp4"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "fake video bytes", string(data))
	})

	t.Run("non-200 leaves no file behind", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		dest := t.TempDir()
		c := NewClient(server.URL, 5*time.Second)
		_, err := c.Download(context.Background(), "abc123", dest)
		require.Error(t, err)

		entries, err := os.ReadDir(dest)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestResolveMetadata(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/videos/abc123/metadata", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"video": map[string]any{
					"title":      "Cooking demo",
					"author":     "chef_wang",
					"is_product": true,
				},
			})
		}))
		defer server.Close()

		c := NewClient(server.URL, 5*time.Second)
		meta, err := c.ResolveMetadata(context.Background(), "abc123")
		require.NoError(t, err)
		require.NotNil(t, meta)
		assert.Equal(t, "Cooking demo", meta.Title)
		assert.Equal(t, "chef_wang", meta.Author)
		assert.True(t, meta.IsProduct)
	})

	t.Run("absent reports nil without error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, 5*time.Second)
		meta, err := c.ResolveMetadata(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, meta)
	})
}
