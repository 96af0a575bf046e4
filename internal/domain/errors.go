package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrAlreadyExecuted = errors.New("tune already executed")
	ErrDirMissing      = errors.New("tune directory missing on disk")
)

// ValidationError reports a rejected field before any side effect happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ReauthRequiredError signals a revoked or absent refresh token. It is distinct
// from a transient upstream failure: callers must redirect the user through the
// consent flow instead of retrying.
type ReauthRequiredError struct {
	UserID     int64
	ConsentURL string
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("user %d must re-authorize video platform access", e.UserID)
}

// RenderError wraps a non-zero exit from the transcoding tool, keeping the
// captured tool output for diagnostics.
type RenderError struct {
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// UploadError is a provider-level failure from the video platform API.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: status %d: %s", e.StatusCode, e.Message)
}
