package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/infrastructure/logger"
	"github.com/bnema/tunecast/internal/port"
)

// IncomingFile is one decoded artifact from the intake surface.
type IncomingFile struct {
	Name string
	Data []byte
}

// NewTune is the intake shape for one scheduled (or run-immediately) upload.
type NewTune struct {
	DueAt       *time.Time
	Title       string
	Description string
	Category    string
	Tags        []string
	Privacy     domain.PrivacyStatus
	Embeddable  bool
	License     string
	Audio       IncomingFile
	Image       IncomingFile
}

// TuneService owns tune intake and CRUD, including artifact placement on
// disk. The invariant for intake is strict ordering: stage files, commit the
// batch insert, only then move files to their final location. A crash between
// commit and move leaves recoverable staging files, never rows pointing at
// nothing that ever existed elsewhere.
type TuneService struct {
	store   port.TuneStore
	dataDir string
	now     func() time.Time
}

func NewTuneService(store port.TuneStore, dataDir string) *TuneService {
	return &TuneService{
		store:   store,
		dataDir: dataDir,
		now:     time.Now,
	}
}

// CreateBatch validates and persists a batch of tunes atomically: either all
// rows and all artifact pairs land, or none do.
func (s *TuneService) CreateBatch(ctx context.Context, userID int64, items []NewTune) ([]*domain.Tune, error) {
	if len(items) == 0 {
		return nil, &domain.ValidationError{Field: "tunes", Message: "batch must not be empty"}
	}

	now := s.now().UTC()
	tunes := make([]*domain.Tune, len(items))
	for i, item := range items {
		t, err := s.buildTune(userID, item, now)
		if err != nil {
			return nil, err
		}
		tunes[i] = t
	}

	stagingRoot := filepath.Join(s.dataDir, "staging", uuid.NewString())
	stagingDirs := make([]string, len(items))
	for i, item := range items {
		dir := filepath.Join(stagingRoot, fmt.Sprintf("%d", i))
		if err := stageArtifacts(dir, item); err != nil {
			_ = os.RemoveAll(stagingRoot)
			return nil, err
		}
		stagingDirs[i] = dir
	}

	created, err := s.store.InsertBatch(ctx, tunes)
	if err != nil {
		_ = os.RemoveAll(stagingRoot)
		return nil, fmt.Errorf("insert batch: %w", err)
	}

	// Rows are committed; move artifacts into their referenced locations.
	// Staging is only discarded once every move landed: a staged pair is the
	// sole copy of the artifacts its committed row references, so a failed
	// move must leave it behind for recovery.
	moveFailed := false
	for i, t := range created {
		if err := os.MkdirAll(filepath.Dir(t.BaseDir), 0755); err != nil {
			logger.Error.Printf("tune %d: create parent dir: %v", t.ID, err)
			moveFailed = true
			continue
		}
		if err := os.Rename(stagingDirs[i], t.BaseDir); err != nil {
			logger.Error.Printf("tune %d: move artifacts into place: %v", t.ID, err)
			moveFailed = true
		}
	}
	if moveFailed {
		logger.Error.Printf("staging files kept at %s for recovery", stagingRoot)
	} else {
		_ = os.RemoveAll(stagingRoot)
	}

	logger.Info.Printf("created %d tunes for user %d", len(created), userID)
	return created, nil
}

func (s *TuneService) buildTune(userID int64, item NewTune, now time.Time) (*domain.Tune, error) {
	audioType, err := domain.AudioExt(item.Audio.Name)
	if err != nil {
		return nil, err
	}
	imageType, err := domain.ImageExt(item.Image.Name)
	if err != nil {
		return nil, err
	}
	if len(item.Audio.Data) == 0 {
		return nil, &domain.ValidationError{Field: "audio_file", Message: "must not be empty"}
	}
	if len(item.Image.Data) == 0 {
		return nil, &domain.ValidationError{Field: "image_file", Message: "must not be empty"}
	}

	t := &domain.Tune{
		UserID:      userID,
		CreatedAt:   now,
		DueAt:       item.DueAt,
		Title:       item.Title,
		Description: item.Description,
		Category:    item.Category,
		Tags:        item.Tags,
		Privacy:     item.Privacy,
		Embeddable:  item.Embeddable,
		License:     item.License,
		BaseDir:     filepath.Join(s.dataDir, "tunes", uuid.NewString()),
		ImageName:   filepath.Base(item.Image.Name),
		ImageType:   imageType,
		AudioName:   filepath.Base(item.Audio.Name),
		AudioType:   audioType,
	}
	if t.License == "" {
		t.License = "youtube"
	}
	if err := t.Validate(now); err != nil {
		return nil, err
	}
	return t, nil
}

func stageArtifacts(dir string, item NewTune) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.Base(item.Audio.Name)), item.Audio.Data, 0644); err != nil {
		return fmt.Errorf("stage audio: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filepath.Base(item.Image.Name)), item.Image.Data, 0644); err != nil {
		return fmt.Errorf("stage image: %w", err)
	}
	return nil
}

func (s *TuneService) Get(ctx context.Context, id int64) (*domain.Tune, error) {
	return s.store.Get(ctx, id)
}

func (s *TuneService) List(ctx context.Context, filter port.TuneFilter) ([]*domain.Tune, int, error) {
	return s.store.List(ctx, filter)
}

// Update rewrites a tune's metadata. Artifacts are immutable: new media means
// a new tune. Executed tunes stay editable only by convention of not being
// shown for editing; the store enforces the artifact rule.
func (s *TuneService) Update(ctx context.Context, id int64, item NewTune) (*domain.Tune, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Executed {
		return nil, domain.ErrAlreadyExecuted
	}

	existing.DueAt = item.DueAt
	existing.Title = item.Title
	existing.Description = item.Description
	existing.Category = item.Category
	existing.Tags = item.Tags
	existing.Privacy = item.Privacy
	existing.Embeddable = item.Embeddable
	if item.License != "" {
		existing.License = item.License
	}
	if err := existing.Validate(s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateFields(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// Delete removes the row and the tune's whole base directory. A directory
// that is already gone is a prior inconsistency and fails loudly instead of
// silently no-opping.
func (s *TuneService) Delete(ctx context.Context, id int64) error {
	tune, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := os.Stat(tune.BaseDir); err != nil {
		logger.Error.Printf("tune %d: base dir %s missing before delete", id, tune.BaseDir)
		return fmt.Errorf("tune %d: %w", id, domain.ErrDirMissing)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if err := os.RemoveAll(tune.BaseDir); err != nil {
		return fmt.Errorf("tune %d: remove artifacts: %w", id, err)
	}
	logger.Info.Printf("deleted tune %d and %s", id, tune.BaseDir)
	return nil
}
