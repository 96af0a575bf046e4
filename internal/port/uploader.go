package port

import (
	"context"

	"github.com/bnema/tunecast/internal/domain"
)

type UploadMeta struct {
	Title       string
	Description string
	Category    string
	Tags        []string
	Privacy     domain.PrivacyStatus
	Embeddable  bool
	License     string
}

type Uploader interface {
	// Upload pushes a finished video plus metadata to the platform and returns
	// the remote video id. The caller guarantees the credentials are fresh.
	Upload(ctx context.Context, creds domain.Credentials, videoPath string, meta UploadMeta) (string, error)
}
