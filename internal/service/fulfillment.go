package service

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/semaphore"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
)

// Fulfiller runs one tune through render → upload → mark-executed. The
// semaphore bounds simultaneous uploads against the platform's rate limits;
// it is shared by every caller, scheduled or on-demand.
type Fulfiller struct {
	tunes     port.TuneStore
	renderer  port.Renderer
	uploader  port.Uploader
	uploadSem *semaphore.Weighted
}

func NewFulfiller(tunes port.TuneStore, renderer port.Renderer, uploader port.Uploader, maxConcurrentUploads int64) *Fulfiller {
	if maxConcurrentUploads < 1 {
		maxConcurrentUploads = 1
	}
	return &Fulfiller{
		tunes:     tunes,
		renderer:  renderer,
		uploader:  uploader,
		uploadSem: semaphore.NewWeighted(maxConcurrentUploads),
	}
}

// FulfillOne processes a single tune with pre-validated credentials. Any
// failure removes the rendered artifact (a partial video can run to hundreds
// of MB) and returns the error for the caller to log; the tune stays pending
// and is retried on the next sweep.
func (f *Fulfiller) FulfillOne(ctx context.Context, tune *domain.Tune, creds domain.Credentials) error {
	audioPath := tune.AudioPath()
	imagePath := tune.ImagePath()
	outputPath := tune.OutputPath()

	// The store claims these files exist; a missing one is a prior
	// inconsistency, not a transient condition.
	if _, err := os.Stat(audioPath); err != nil {
		return fmt.Errorf("tune %d: audio artifact missing: %w", tune.ID, err)
	}
	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("tune %d: image artifact missing: %w", tune.ID, err)
	}

	logger.Info.Printf("tune %d: rendering %q", tune.ID, tune.Title)
	if _, err := f.renderer.Render(ctx, audioPath, imagePath, outputPath); err != nil {
		f.removeArtifact(outputPath)
		return fmt.Errorf("tune %d: %w", tune.ID, err)
	}

	if err := f.uploadSem.Acquire(ctx, 1); err != nil {
		f.removeArtifact(outputPath)
		return fmt.Errorf("tune %d: acquire upload slot: %w", tune.ID, err)
	}
	videoID, err := f.uploader.Upload(ctx, creds, outputPath, uploadMeta(tune))
	f.uploadSem.Release(1)
	if err != nil {
		f.removeArtifact(outputPath)
		return fmt.Errorf("tune %d: %w", tune.ID, err)
	}

	if _, err := f.tunes.MarkExecuted(ctx, tune.ID); err != nil {
		f.removeArtifact(outputPath)
		return fmt.Errorf("tune %d: mark executed: %w", tune.ID, err)
	}
	tune.Executed = true

	logger.Info.Printf("tune %d: uploaded as video %s", tune.ID, videoID)
	return nil
}

func (f *Fulfiller) removeArtifact(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Error.Printf("failed to remove artifact %s: %v", path, err)
	}
}

func uploadMeta(t *domain.Tune) port.UploadMeta {
	return port.UploadMeta{
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Tags:        t.Tags,
		Privacy:     t.Privacy,
		Embeddable:  t.Embeddable,
		License:     t.License,
	}
}
