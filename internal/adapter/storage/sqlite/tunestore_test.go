package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) (*TuneStore, *UserStore) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewTuneStore(store), NewUserStore(store)
}

func newTestUser(t *testing.T, users *UserStore) *domain.User {
	t.Helper()
	u, err := users.CreateUser(context.Background(), "pope", "hash")
	require.NoError(t, err)
	return u
}

func testTune(userID int64, title string, dueAt *time.Time) *domain.Tune {
	return &domain.Tune{
		UserID:     userID,
		DueAt:      dueAt,
		Title:      title,
		Privacy:    domain.PrivacyPrivate,
		Embeddable: true,
		License:    "youtube",
		Tags:       []string{"lofi", "beats"},
		BaseDir:    "/data/tunes/" + title,
		ImageName:  "cover.png",
		ImageType:  "png",
		AudioName:  "beat.mp3",
		AudioType:  "mp3",
	}
}

func ptr[T any](v T) *T { return &v }

func TestInsertBatchAndGet(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	created, err := tunes.InsertBatch(ctx, []*domain.Tune{testTune(u.ID, "one", &due)})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.NotZero(t, created[0].ID)

	got, err := tunes.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Title)
	assert.Equal(t, []string{"lofi", "beats"}, got.Tags, "tag order must survive the round trip")
	require.NotNil(t, got.DueAt)
	assert.True(t, got.DueAt.Equal(due))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())
	assert.False(t, got.Executed)
}

func TestInsertBatchRollsBackOnFailure(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	// Second row violates the users foreign key, so the whole batch must
	// roll back.
	batch := []*domain.Tune{
		testTune(u.ID, "good", nil),
		testTune(99999, "orphan", nil),
	}
	_, err := tunes.InsertBatch(ctx, batch)
	require.Error(t, err)

	_, total, err := tunes.List(ctx, port.TuneFilter{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total, "no partial rows may survive a failed batch")
}

func TestListOrdering(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	batch := []*domain.Tune{
		testTune(u.ID, "t-plus-1", ptr(base.Add(1*time.Hour))),
		testTune(u.ID, "t-plus-3", ptr(base.Add(3*time.Hour))),
		testTune(u.ID, "t-minus-1", ptr(base.Add(-1*time.Hour))),
		testTune(u.ID, "t-plus-2", ptr(base.Add(2*time.Hour))),
	}
	created, err := tunes.InsertBatch(ctx, batch)
	require.NoError(t, err)

	// Execute the earliest tune; it must sort behind all pending ones.
	written, err := tunes.MarkExecuted(ctx, created[2].ID)
	require.NoError(t, err)
	assert.True(t, written)

	list, total, err := tunes.List(ctx, port.TuneFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	var titles []string
	for _, tn := range list {
		titles = append(titles, tn.Title)
	}
	assert.Equal(t, []string{"t-plus-1", "t-plus-2", "t-plus-3", "t-minus-1"}, titles)
}

func TestListDueFilter(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	created, err := tunes.InsertBatch(ctx, []*domain.Tune{
		testTune(u.ID, "overdue", ptr(now.Add(-time.Hour))),
		testTune(u.ID, "immediate", nil),
		testTune(u.ID, "future", ptr(now.Add(time.Hour))),
		testTune(u.ID, "done", ptr(now.Add(-2*time.Hour))),
	})
	require.NoError(t, err)

	_, err = tunes.MarkExecuted(ctx, created[3].ID)
	require.NoError(t, err)

	list, total, err := tunes.List(ctx, port.TuneFilter{
		Before:   &now,
		Executed: ptr(false),
		Limit:    100,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	var titles []string
	for _, tn := range list {
		titles = append(titles, tn.Title)
	}
	// NULL due date sorts first: run-immediately work is the soonest due.
	assert.Equal(t, []string{"immediate", "overdue"}, titles)
}

func TestListPagination(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	var batch []*domain.Tune
	for i := 0; i < 5; i++ {
		batch = append(batch, testTune(u.ID, string(rune('a'+i)), ptr(base.Add(time.Duration(i)*time.Hour))))
	}
	_, err := tunes.InsertBatch(ctx, batch)
	require.NoError(t, err)

	page2, total, err := tunes.List(ctx, port.TuneFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page2, 2)
	assert.Equal(t, "c", page2[0].Title)
	assert.Equal(t, "d", page2[1].Title)
}

func TestMarkExecutedIdempotent(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	created, err := tunes.InsertBatch(ctx, []*domain.Tune{testTune(u.ID, "one", nil)})
	require.NoError(t, err)
	id := created[0].ID

	written, err := tunes.MarkExecuted(ctx, id)
	require.NoError(t, err)
	assert.True(t, written)

	// Second flip is a logical success with no write.
	written, err = tunes.MarkExecuted(ctx, id)
	require.NoError(t, err)
	assert.False(t, written)

	got, err := tunes.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Executed)

	// An executed tune is never returned by a pending-work query.
	now := time.Now().UTC()
	list, total, err := tunes.List(ctx, port.TuneFilter{Before: &now, Executed: ptr(false), Limit: 100})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)

	written, err = tunes.MarkExecuted(ctx, 42424242)
	require.NoError(t, err)
	assert.False(t, written, "absent tune reports no write, not an error")
}

func TestDelete(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	created, err := tunes.InsertBatch(ctx, []*domain.Tune{testTune(u.ID, "one", nil)})
	require.NoError(t, err)

	require.NoError(t, tunes.Delete(ctx, created[0].ID))

	_, err = tunes.Get(ctx, created[0].ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, tunes.Delete(ctx, created[0].ID), domain.ErrNotFound)
}

func TestUpdateFieldsLeavesArtifactsAlone(t *testing.T) {
	tunes, users := newTestStores(t)
	u := newTestUser(t, users)
	ctx := context.Background()

	created, err := tunes.InsertBatch(ctx, []*domain.Tune{testTune(u.ID, "one", nil)})
	require.NoError(t, err)

	updated := *created[0]
	updated.Title = "renamed"
	updated.Tags = []string{"only-one"}
	updated.Privacy = domain.PrivacyPublic
	updated.DueAt = ptr(time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	// Attempted artifact swaps must be ignored by the store.
	updated.BaseDir = "/tmp/elsewhere"
	updated.AudioName = "other.mp3"

	require.NoError(t, tunes.UpdateFields(ctx, &updated))

	got, err := tunes.Get(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, []string{"only-one"}, got.Tags)
	assert.Equal(t, domain.PrivacyPublic, got.Privacy)
	assert.Equal(t, created[0].BaseDir, got.BaseDir)
	assert.Equal(t, "beat.mp3", got.AudioName)

	assert.ErrorIs(t, tunes.UpdateFields(ctx, &domain.Tune{ID: 555, Privacy: domain.PrivacyPrivate}), domain.ErrNotFound)
}

func TestTagsCodec(t *testing.T) {
	encoded, err := encodeTags([]string{"with,comma", "plain"})
	require.NoError(t, err)
	decoded, err := decodeTags(encoded)
	require.NoError(t, err)
	assert.Equal(t, []string{"with,comma", "plain"}, decoded)

	empty, err := encodeTags(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	none, err := decodeTags("[]")
	require.NoError(t, err)
	assert.Nil(t, none)
}
