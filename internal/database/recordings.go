package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const recordingColumns = `id, album_id, stored_path, mime_type, size, public_token, created_at`

func scanRecording(row interface{ Scan(...interface{}) error }) (*Recording, error) {
	var r Recording
	var createdAt int64
	err := row.Scan(&r.ID, &r.AlbumID, &r.StoredPath, &r.MimeType, &r.Size, &r.PublicToken, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

// InsertRecording stores a new recording row and fills in its ID.
func (d *Database) InsertRecording(ctx context.Context, r *Recording) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO recordings (album_id, stored_path, mime_type, size, public_token)
		VALUES (?, ?, ?, ?, ?)`,
		r.AlbumID, r.StoredPath, r.MimeType, r.Size, r.PublicToken)
	recordQuery("insert_recording", start, err)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted recording id: %w", err)
	}
	r.ID = id
	return nil
}

// GetRecording retrieves a recording by ID.
func (d *Database) GetRecording(ctx context.Context, id int64) (*Recording, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		"SELECT "+recordingColumns+" FROM recordings WHERE id = ?", id)
	r, err := scanRecording(row)
	recordQuery("get_recording", start, ignoreNotFound(err))
	return r, err
}

// GetRecordingByToken retrieves a recording by its public token.
func (d *Database) GetRecordingByToken(ctx context.Context, token string) (*Recording, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		"SELECT "+recordingColumns+" FROM recordings WHERE public_token = ?", token)
	r, err := scanRecording(row)
	recordQuery("get_recording", start, ignoreNotFound(err))
	return r, err
}

// ListAlbumRecordings returns an album's recordings, newest first.
func (d *Database) ListAlbumRecordings(ctx context.Context, albumID int64) ([]*Recording, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+recordingColumns+" FROM recordings WHERE album_id = ? ORDER BY created_at DESC, id DESC", albumID)
	recordQuery("get_recording", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var out []*Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording row.
func (d *Database) DeleteRecording(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM recordings WHERE id = ?", id)
	recordQuery("insert_recording", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
