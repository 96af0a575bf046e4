package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/tunecast/internal/domain"
	"github.com/bnema/tunecast/internal/port"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 1000
)

type TuneStore struct {
	db *sql.DB
}

func NewTuneStore(store *Store) *TuneStore {
	return &TuneStore{db: store.db}
}

const tuneColumns = `id, user_id, created_at, due_at, executed, title, description,
	category, tags, privacy, embeddable, license, base_dir, image_name, image_type,
	audio_name, audio_type`

// List returns one page of tunes plus the total count for the filter.
// Unexecuted tunes sort before executed ones; within each group ascending by
// due date, with run-immediately (NULL due) tunes first.
func (s *TuneStore) List(ctx context.Context, f port.TuneFilter) ([]*domain.Tune, int, error) {
	var conds []string
	var args []any
	if f.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *f.UserID)
	}
	if f.Before != nil {
		conds = append(conds, "(due_at IS NULL OR due_at <= ?)")
		args = append(args, f.Before.UTC())
	}
	if f.Executed != nil {
		conds = append(conds, "executed = ?")
		args = append(args, *f.Executed)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tunes"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tunes: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	page := f.Page
	if page < 1 {
		page = 1
	}

	query := "SELECT " + tuneColumns + " FROM tunes" + where +
		" ORDER BY executed ASC, due_at ASC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tunes: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var tunes []*domain.Tune
	for rows.Next() {
		t, err := scanTune(rows)
		if err != nil {
			return nil, 0, err
		}
		tunes = append(tunes, t)
	}
	return tunes, total, rows.Err()
}

func (s *TuneStore) Get(ctx context.Context, id int64) (*domain.Tune, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tuneColumns+" FROM tunes WHERE id = ?", id)
	t, err := scanTune(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// InsertBatch persists all tunes in a single transaction. On any row failure
// the whole batch rolls back; no partial set of rows survives.
func (s *TuneStore) InsertBatch(ctx context.Context, tunes []*domain.Tune) ([]*domain.Tune, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, t := range tunes {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		tags, err := encodeTags(t.Tags)
		if err != nil {
			return nil, err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO tunes
			(user_id, created_at, due_at, executed, title, description, category,
			 tags, privacy, embeddable, license, base_dir, image_name, image_type,
			 audio_name, audio_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.UserID, t.CreatedAt, nullableTime(t.DueAt), t.Executed, t.Title,
			t.Description, t.Category, tags, string(t.Privacy), t.Embeddable,
			t.License, t.BaseDir, t.ImageName, t.ImageType, t.AudioName, t.AudioType)
		if err != nil {
			return nil, fmt.Errorf("insert tune %q: %w", t.Title, err)
		}
		t.ID, err = res.LastInsertId()
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit batch insert: %w", err)
	}
	return tunes, nil
}

// MarkExecuted flips the one-way executed flag. The predicate makes the write
// idempotent: a second call (or a call for an absent tune) affects zero rows
// and reports false without an error.
func (s *TuneStore) MarkExecuted(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE tunes SET executed = 1 WHERE id = ? AND executed = 0", id)
	if err != nil {
		return false, fmt.Errorf("mark executed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *TuneStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tunes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete tune: %w", err)
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

// UpdateFields rewrites everything except the artifact columns: base dir and
// file names are immutable after creation, and executed only moves through
// MarkExecuted.
func (s *TuneStore) UpdateFields(ctx context.Context, t *domain.Tune) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE tunes SET
		due_at = ?, title = ?, description = ?, category = ?, tags = ?,
		privacy = ?, embeddable = ?, license = ?
		WHERE id = ?`,
		nullableTime(t.DueAt), t.Title, t.Description, t.Category, tags,
		string(t.Privacy), t.Embeddable, t.License, t.ID)
	if err != nil {
		return fmt.Errorf("update tune: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTune(row rowScanner) (*domain.Tune, error) {
	var t domain.Tune
	var dueAt sql.NullTime
	var tags, privacy string
	if err := row.Scan(&t.ID, &t.UserID, &t.CreatedAt, &dueAt, &t.Executed,
		&t.Title, &t.Description, &t.Category, &tags, &privacy, &t.Embeddable,
		&t.License, &t.BaseDir, &t.ImageName, &t.ImageType, &t.AudioName,
		&t.AudioType); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	if dueAt.Valid {
		utc := dueAt.Time.UTC()
		t.DueAt = &utc
	}
	t.Privacy = domain.PrivacyStatus(privacy)
	decoded, err := decodeTags(tags)
	if err != nil {
		return nil, fmt.Errorf("tune %d: %w", t.ID, err)
	}
	t.Tags = decoded
	return &t, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Tags live in a single TEXT column. The JSON round-trip preserves order and
// stays confined to this mapping layer; everything above sees []string.
func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func decodeTags(encoded string) ([]string, error) {
	if encoded == "" || encoded == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

var _ port.TuneStore = (*TuneStore)(nil)
