// Package youtube implements the resumable upload protocol of the YouTube
// Data API v3 videos.insert endpoint.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
)

const (
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3/videos"
	defaultChunkSize = 8 << 20 // must stay a multiple of 256 KiB per the API

	resumeAttempts = 5
)

type Client struct {
	uploadURL  string
	chunkSize  int64
	httpClient *http.Client
}

func NewClient(chunkSize int64) *Client {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Client{
		uploadURL: defaultUploadURL,
		chunkSize: chunkSize,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
	Embeddable    bool   `json:"embeddable"`
	License       string `json:"license,omitempty"`
}

type videoResource struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

type insertResponse struct {
	ID string `json:"id"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Upload runs the resumable upload loop: initiate a session with the video
// metadata, then send chunks until the API returns the final response with
// the remote video id.
func (c *Client) Upload(ctx context.Context, creds domain.Credentials, videoPath string, meta port.UploadMeta) (string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}
	size := info.Size()

	sessionURI, err := c.initiate(ctx, creds.AccessToken, meta, size)
	if err != nil {
		return "", err
	}

	var offset int64
	for offset < size {
		end := offset + c.chunkSize
		if end > size {
			end = size
		}
		chunk := io.NewSectionReader(f, offset, end-offset)

		next, videoID, err := c.sendChunk(ctx, creds.AccessToken, sessionURI, chunk, offset, end-1, size)
		if err != nil {
			// An API-level rejection (quota, revoked auth) is final for this
			// attempt: re-sending the same chunk can only produce the same
			// answer, so it must never enter the resume loop.
			var apiErr *domain.UploadError
			if errors.As(err, &apiErr) {
				return "", err
			}
			// The connection dropped mid-chunk. Ask the session where it left
			// off before giving up; transient failures are worth a few probes.
			next, videoID, err = c.resume(ctx, creds.AccessToken, sessionURI, size)
			if err != nil {
				return "", err
			}
		}
		if videoID != "" {
			return videoID, nil
		}
		offset = next
		logger.Info.Printf("upload progress %s: %d/%d bytes (%.0f%%)", meta.Title, offset, size, float64(offset)/float64(size)*100)
	}

	return "", &domain.UploadError{Message: "session ended without a video id"}
}

// initiate opens a resumable session and returns its URI.
func (c *Client) initiate(ctx context.Context, accessToken string, meta port.UploadMeta, size int64) (string, error) {
	payload := videoResource{
		Snippet: videoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryID:  meta.Category,
		},
		Status: videoStatus{
			PrivacyStatus: string(meta.Privacy),
			Embeddable:    meta.Embeddable,
			License:       meta.License,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"?uploadType=resumable&part=snippet,status", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/mp4")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("initiate upload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	sessionURI := resp.Header.Get("Location")
	if sessionURI == "" {
		return "", &domain.UploadError{StatusCode: resp.StatusCode, Message: "missing session location"}
	}
	return sessionURI, nil
}

// sendChunk PUTs one byte range. It returns the next offset to send (on 308)
// or the final video id (on 200/201).
func (c *Client) sendChunk(ctx context.Context, accessToken, sessionURI string, chunk io.Reader, first, last, total int64) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, chunk)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.ContentLength = last - first + 1
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, total))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("send chunk: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	return c.handleSessionResponse(resp, last+1)
}

// resume probes the session for the confirmed offset with bounded exponential
// backoff, so a dropped connection does not immediately fail the whole job.
func (c *Client) resume(ctx context.Context, accessToken, sessionURI string, total int64) (int64, string, error) {
	var next int64
	var videoID string

	backoff := retry.WithMaxRetries(resumeAttempts, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURI, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", total))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(readAPIError(resp))
		}
		next, videoID, err = c.handleSessionResponse(resp, 0)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	return next, videoID, nil
}

// handleSessionResponse interprets a resumable-session response. fallback is
// the next offset to assume when a 308 carries no Range header.
func (c *Client) handleSessionResponse(resp *http.Response, fallback int64) (int64, string, error) {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var final insertResponse
		if err := json.NewDecoder(resp.Body).Decode(&final); err != nil || final.ID == "" {
			return 0, "", &domain.UploadError{StatusCode: resp.StatusCode, Message: "final response missing video id"}
		}
		return 0, final.ID, nil
	case http.StatusPermanentRedirect: // 308 Resume Incomplete
		if r := resp.Header.Get("Range"); r != "" {
			if confirmed, ok := parseRangeEnd(r); ok {
				return confirmed + 1, "", nil
			}
		}
		return fallback, "", nil
	default:
		return 0, "", readAPIError(resp)
	}
}

// parseRangeEnd extracts the last confirmed byte from a "bytes=0-N" header.
func parseRangeEnd(header string) (int64, bool) {
	idx := strings.LastIndex(header, "-")
	if idx < 0 {
		return 0, false
	}
	end, err := strconv.ParseInt(header[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return end, true
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &domain.UploadError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}
	return &domain.UploadError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

var _ port.Uploader = (*Client)(nil)
