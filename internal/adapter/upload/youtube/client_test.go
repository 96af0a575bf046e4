package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta() port.UploadMeta {
	return port.UploadMeta{
		Title:       "Evening Beat",
		Description: "lo-fi",
		Category:    "10",
		Tags:        []string{"lofi", "beats"},
		Privacy:     domain.PrivacyUnlisted,
		Embeddable:  true,
		License:     "youtube",
	}
}

func writeVideo(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.mp4")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// resumableServer fakes the videos.insert resumable protocol: the initiate
// POST hands out a session URI, chunk PUTs answer 308 until the last byte
// arrives, then the final JSON carries the video id.
func resumableServer(t *testing.T, total int64) (*httptest.Server, *[][2]int64) {
	t.Helper()
	var received int64
	var ranges [][2]int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "resumable", r.URL.Query().Get("uploadType"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var res videoResource
		require.NoError(t, json.NewDecoder(r.Body).Decode(&res))
		assert.Equal(t, "Evening Beat", res.Snippet.Title)
		assert.Equal(t, []string{"lofi", "beats"}, res.Snippet.Tags)
		assert.Equal(t, "unlisted", res.Status.PrivacyStatus)

		w.Header().Set("Location", "http://"+r.Host+"/session/abc")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /session/abc", func(w http.ResponseWriter, r *http.Request) {
		var first, last, size int64
		_, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &first, &last, &size)
		require.NoError(t, err)
		ranges = append(ranges, [2]int64{first, last})

		n, _ := io.Copy(io.Discard, r.Body)
		received += n

		if received < total {
			w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", received-1))
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		_, _ = w.Write([]byte(`{"id":"vid-123"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &ranges
}

func TestUpload_SingleChunk(t *testing.T) {
	srv, ranges := resumableServer(t, 100)

	c := NewClient(1 << 20)
	c.uploadURL = srv.URL + "/upload"

	id, err := c.Upload(context.Background(), domain.Credentials{AccessToken: "tok"}, writeVideo(t, 100), testMeta())
	require.NoError(t, err)
	assert.Equal(t, "vid-123", id)
	assert.Equal(t, [][2]int64{{0, 99}}, *ranges)
}

func TestUpload_ChunkedWith308(t *testing.T) {
	srv, ranges := resumableServer(t, 250)

	c := NewClient(100)
	c.uploadURL = srv.URL + "/upload"

	id, err := c.Upload(context.Background(), domain.Credentials{AccessToken: "tok"}, writeVideo(t, 250), testMeta())
	require.NoError(t, err)
	assert.Equal(t, "vid-123", id)
	assert.Equal(t, [][2]int64{{0, 99}, {100, 199}, {200, 249}}, *ranges)
}

func TestUpload_ChunkRejectionIsFinal(t *testing.T) {
	var chunkPuts int

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/session/abc")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /session/abc", func(w http.ResponseWriter, r *http.Request) {
		// Status probes (no body, Content-Range "bytes */N") report no
		// progress; actual chunk PUTs are rejected outright.
		if strings.HasPrefix(r.Header.Get("Content-Range"), "bytes */") {
			w.WriteHeader(http.StatusPermanentRedirect)
			return
		}
		chunkPuts++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(1 << 20)
	c.uploadURL = srv.URL + "/upload"

	_, err := c.Upload(context.Background(), domain.Credentials{AccessToken: "tok"}, writeVideo(t, 100), testMeta())

	var upErr *domain.UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
	assert.Equal(t, "quotaExceeded", upErr.Message)
	assert.Equal(t, 1, chunkPuts, "a provider rejection must not be re-sent")
}

func TestUpload_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(0)
	c.uploadURL = srv.URL + "/upload"

	_, err := c.Upload(context.Background(), domain.Credentials{AccessToken: "tok"}, writeVideo(t, 10), testMeta())
	var uerr *domain.UploadError
	require.True(t, errors.As(err, &uerr), "expected UploadError, got %v", err)
	assert.Equal(t, http.StatusForbidden, uerr.StatusCode)
	assert.Equal(t, "quotaExceeded", uerr.Message)
}

func TestUpload_MissingSessionURI(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK) // no Location header
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := NewClient(0)
	c.uploadURL = srv.URL + "/upload"

	_, err := c.Upload(context.Background(), domain.Credentials{AccessToken: "tok"}, writeVideo(t, 10), testMeta())
	var uerr *domain.UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Contains(t, uerr.Message, "session")
}

func TestParseRangeEnd(t *testing.T) {
	end, ok := parseRangeEnd("bytes=0-12345")
	assert.True(t, ok)
	assert.Equal(t, int64(12345), end)

	_, ok = parseRangeEnd("garbage")
	assert.False(t, ok)
}
