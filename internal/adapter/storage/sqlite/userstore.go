package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(store *Store) *UserStore {
	return &UserStore{db: store.db}
}

const userColumns = "id, username, password_hash, access_token, refresh_token, token_expiry, created_at"

func (s *UserStore) GetUser(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

func (s *UserStore) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (s *UserStore) CreateUser(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)",
		username, passwordHash, now)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.User{ID: id, Username: username, PasswordHash: passwordHash, CreatedAt: now}, nil
}

// UpdateCredentials always overwrites access token and expiry. The refresh
// token only changes when the new value is non-empty, so a provider response
// that omitted rotation cannot erase the stored token.
func (s *UserStore) UpdateCredentials(ctx context.Context, userID int64, creds domain.Credentials) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET
		access_token = ?,
		token_expiry = ?,
		refresh_token = CASE WHEN ? != '' THEN ? ELSE refresh_token END
		WHERE id = ?`,
		creds.AccessToken, creds.Expiry.UTC(), creds.RefreshToken, creds.RefreshToken, userID)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var expiry sql.NullTime
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Credentials.AccessToken,
		&u.Credentials.RefreshToken, &expiry, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if expiry.Valid {
		u.Credentials.Expiry = expiry.Time.UTC()
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

var _ port.UserStore = (*UserStore)(nil)
