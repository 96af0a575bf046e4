package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

type fakeTuneStore struct {
	mu        sync.Mutex
	tunes     map[int64]*domain.Tune
	nextID    int64
	insertErr error
	markErr   error
	markCalls []int64
}

func newFakeTuneStore() *fakeTuneStore {
	return &fakeTuneStore{tunes: make(map[int64]*domain.Tune), nextID: 1}
}

func (s *fakeTuneStore) add(t *domain.Tune) *domain.Tune {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.nextID
	s.nextID++
	s.tunes[t.ID] = t
	return t
}

func (s *fakeTuneStore) List(ctx context.Context, filter port.TuneFilter) ([]*domain.Tune, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Tune
	for id := int64(1); id < s.nextID; id++ {
		t, ok := s.tunes[id]
		if !ok {
			continue
		}
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if filter.Executed != nil && t.Executed != *filter.Executed {
			continue
		}
		if filter.Before != nil && t.DueAt != nil && !t.DueAt.Before(*filter.Before) {
			continue
		}
		out = append(out, t)
	}
	return out, len(out), nil
}

func (s *fakeTuneStore) Get(ctx context.Context, id int64) (*domain.Tune, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tunes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *fakeTuneStore) InsertBatch(ctx context.Context, tunes []*domain.Tune) ([]*domain.Tune, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	for _, t := range tunes {
		s.add(t)
	}
	return tunes, nil
}

func (s *fakeTuneStore) MarkExecuted(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls = append(s.markCalls, id)
	if s.markErr != nil {
		return false, s.markErr
	}
	t, ok := s.tunes[id]
	if !ok || t.Executed {
		return false, nil
	}
	t.Executed = true
	return true, nil
}

func (s *fakeTuneStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tunes[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.tunes, id)
	return nil
}

func (s *fakeTuneStore) UpdateFields(ctx context.Context, t *domain.Tune) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tunes[t.ID]; !ok {
		return domain.ErrNotFound
	}
	s.tunes[t.ID] = t
	return nil
}

type fakeUserStore struct {
	mu          sync.Mutex
	users       map[int64]*domain.User
	updateCalls int
	updateErr   error
}

func newFakeUserStore(users ...*domain.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[int64]*domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetUser(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeUserStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &domain.User{
		ID:           int64(len(s.users) + 1),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeUserStore) UpdateCredentials(ctx context.Context, userID int64, creds domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	u, ok := s.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Credentials = creds
	return nil
}

type fakeExchanger struct {
	mu             sync.Mutex
	refreshCalls   int
	refreshResult  domain.Credentials
	refreshErr     error
	exchangeErr    error
	exchangeResult domain.Credentials
}

func (e *fakeExchanger) Refresh(ctx context.Context, refreshToken string) (domain.Credentials, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshCalls++
	if e.refreshErr != nil {
		return domain.Credentials{}, e.refreshErr
	}
	return e.refreshResult, nil
}

func (e *fakeExchanger) Exchange(ctx context.Context, code string) (domain.Credentials, error) {
	if e.exchangeErr != nil {
		return domain.Credentials{}, e.exchangeErr
	}
	return e.exchangeResult, nil
}

func (e *fakeExchanger) ConsentURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

// fakeRenderer writes a placeholder video file so artifact cleanup is
// observable on disk.
type fakeRenderer struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{failFor: make(map[string]error)}
}

func (r *fakeRenderer) Render(ctx context.Context, audioPath, imagePath, outputPath string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, outputPath)
	if err := r.failFor[outputPath]; err != nil {
		return "", err
	}
	if err := os.WriteFile(outputPath, []byte("video"), 0644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	uploads  []string
	failFor  map[string]error
	inFlight int
	maxSeen  int
	delay    time.Duration
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{failFor: make(map[string]error)}
}

func (u *fakeUploader) Upload(ctx context.Context, creds domain.Credentials, videoPath string, meta port.UploadMeta) (string, error) {
	u.mu.Lock()
	u.inFlight++
	if u.inFlight > u.maxSeen {
		u.maxSeen = u.inFlight
	}
	failErr := u.failFor[videoPath]
	delay := u.delay
	u.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	u.mu.Lock()
	u.inFlight--
	if failErr == nil {
		u.uploads = append(u.uploads, videoPath)
	}
	u.mu.Unlock()

	if failErr != nil {
		return "", failErr
	}
	return fmt.Sprintf("vid-%s", meta.Title), nil
}

var _ port.TuneStore = (*fakeTuneStore)(nil)
var _ port.UserStore = (*fakeUserStore)(nil)
var _ port.TokenExchanger = (*fakeExchanger)(nil)
var _ port.Renderer = (*fakeRenderer)(nil)
var _ port.Uploader = (*fakeUploader)(nil)

// testTuneOnDisk creates a tune whose audio and image artifacts exist under a
// temp base dir, matching what intake would have produced.
func testTuneOnDisk(t *testing.T, store *fakeTuneStore, userID int64, title string) *domain.Tune {
	t.Helper()
	base := t.TempDir()
	tune := &domain.Tune{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		Title:     title,
		Privacy:   domain.PrivacyPrivate,
		License:   "youtube",
		BaseDir:   base,
		AudioName: "track.mp3",
		AudioType: "mp3",
		ImageName: "cover.png",
		ImageType: "png",
	}
	if err := os.WriteFile(filepath.Join(base, "track.mp3"), []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "cover.png"), []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}
	return store.add(tune)
}
