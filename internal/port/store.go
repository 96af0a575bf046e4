package port

import (
	"context"
	"time"

	"github.com/bnema/tunecast/internal/domain"
)

// TuneFilter narrows and pages List results. Nil pointer fields are ignored.
type TuneFilter struct {
	UserID   *int64
	Before   *time.Time
	Executed *bool
	Page     int
	Limit    int
}

type TuneStore interface {
	// List returns a page of tunes plus the total count for the filter.
	// Ordering: unexecuted before executed, then ascending due date with
	// run-immediately (nil due) tunes first.
	List(ctx context.Context, filter TuneFilter) ([]*domain.Tune, int, error)
	Get(ctx context.Context, id int64) (*domain.Tune, error)
	// InsertBatch persists all tunes in one transaction, all-or-nothing.
	InsertBatch(ctx context.Context, tunes []*domain.Tune) ([]*domain.Tune, error)
	// MarkExecuted flips the one-way executed flag. The bool reports whether a
	// write happened; an absent or already-executed tune returns false, nil.
	MarkExecuted(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	// UpdateFields rewrites everything except the artifact columns.
	UpdateFields(ctx context.Context, t *domain.Tune) error
}

type UserStore interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error)
	// UpdateCredentials overwrites access token and expiry, but keeps the
	// stored refresh token when the new one is empty.
	UpdateCredentials(ctx context.Context, userID int64, creds domain.Credentials) error
}
