package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gallery-server/internal/logging"
	"gallery-server/internal/mediatypes"
	"gallery-server/internal/metrics"
)

const assetColumns = `id, album_id, type, original_name, stored_path, mime_type, size, checksum, content_id,
	width, height, duration, orientation, rotation, content_generation, public_token,
	display_order, derivatives_ready, web_video_ready, taken_at, created_at, updated_at`

func scanAsset(row interface{ Scan(...interface{}) error }) (*Asset, error) {
	var a Asset
	var takenAt sql.NullInt64
	var createdAt, updatedAt int64
	var fileType string

	err := row.Scan(
		&a.ID, &a.AlbumID, &fileType, &a.OriginalName, &a.StoredPath, &a.MimeType, &a.Size, &a.Checksum, &a.ContentID,
		&a.Width, &a.Height, &a.Duration, &a.Orientation, &a.Rotation, &a.ContentGeneration, &a.PublicToken,
		&a.DisplayOrder, &a.DerivativesReady, &a.WebVideoReady, &takenAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Type = mediatypes.FileType(fileType)
	if takenAt.Valid {
		t := time.Unix(takenAt.Int64, 0)
		a.TakenAt = &t
	}
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

// InsertAsset stores a new asset and fills in its ID and DisplayOrder.
// A checksum collision within the album returns ErrDuplicate.
func (d *Database) InsertAsset(ctx context.Context, a *Asset) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var takenAt interface{}
	if a.TakenAt != nil {
		takenAt = a.TakenAt.Unix()
	}

	// display_order is assigned inside the insert so competing uploads
	// cannot pick the same slot.
	query := `
	INSERT INTO assets (album_id, type, original_name, stored_path, mime_type, size, checksum, content_id,
		width, height, duration, orientation, rotation, content_generation, public_token,
		display_order, derivatives_ready, web_video_ready, taken_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 1, ?,
		(SELECT COALESCE(MAX(display_order), 0) + 1 FROM assets WHERE album_id = ?), 0, 0, ?)
	`

	res, err := d.db.ExecContext(ctx, query,
		a.AlbumID, string(a.Type), a.OriginalName, a.StoredPath, a.MimeType, a.Size, a.Checksum, a.ContentID,
		a.Width, a.Height, a.Duration, a.Orientation, a.PublicToken,
		a.AlbumID, takenAt,
	)
	recordQuery("insert_asset", start, err)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted asset id: %w", err)
	}
	a.ID = id
	a.ContentGeneration = 1
	a.Rotation = 0

	row := d.db.QueryRowContext(ctx, "SELECT display_order FROM assets WHERE id = ?", id)
	if err := row.Scan(&a.DisplayOrder); err != nil {
		logging.Warn("Failed to read display order for asset %d: %v", id, err)
	}
	return nil
}

// GetAsset retrieves an asset by ID.
func (d *Database) GetAsset(ctx context.Context, id int64) (*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id)
	a, err := scanAsset(row)
	recordQuery("get_asset", start, ignoreNotFound(err))
	return a, err
}

// GetAssetByToken retrieves an asset by its current public token.
func (d *Database) GetAssetByToken(ctx context.Context, token string) (*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE public_token = ?", token)
	a, err := scanAsset(row)
	recordQuery("get_asset", start, ignoreNotFound(err))
	return a, err
}

// FindDuplicate looks for existing content matching the upload. A
// client content ID match within the album wins, then a checksum match
// in the same album; otherwise the oldest asset with the same bytes
// anywhere is returned, to report cross-album duplication. Returns
// ErrNotFound when the content is new.
func (d *Database) FindDuplicate(ctx context.Context, checksum, contentID string, albumID int64) (*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if contentID != "" {
		row := d.db.QueryRowContext(ctx,
			"SELECT "+assetColumns+" FROM assets WHERE content_id = ? AND album_id = ? ORDER BY id LIMIT 1",
			contentID, albumID)
		a, err := scanAsset(row)
		if err == nil {
			recordQuery("find_duplicate", start, nil)
			return a, nil
		}
		if !errors.Is(err, ErrNotFound) {
			recordQuery("find_duplicate", start, err)
			return nil, err
		}
	}

	row := d.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE checksum = ? AND album_id = ? ORDER BY id LIMIT 1",
		checksum, albumID)
	a, err := scanAsset(row)
	if err == nil {
		recordQuery("find_duplicate", start, nil)
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		recordQuery("find_duplicate", start, err)
		return nil, err
	}

	var count int
	if err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM assets WHERE checksum = ?", checksum).Scan(&count); err != nil {
		recordQuery("find_duplicate", start, err)
		return nil, err
	}
	if count == 0 {
		recordQuery("find_duplicate", start, nil)
		return nil, ErrNotFound
	}
	if count > 1 {
		logging.Warn("Checksum %s matches %d assets; using the oldest", checksum, count)
	}

	row = d.db.QueryRowContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE checksum = ? ORDER BY id LIMIT 1", checksum)
	a, err = scanAsset(row)
	recordQuery("find_duplicate", start, ignoreNotFound(err))
	return a, err
}

// UpdateAssetMedia records probed dimensions, duration and EXIF data after
// processing.
func (d *Database) UpdateAssetMedia(ctx context.Context, id int64, width, height int, duration float64, orientation int, takenAt *time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var taken interface{}
	if takenAt != nil {
		taken = takenAt.Unix()
	}

	_, err := d.db.ExecContext(ctx, `
		UPDATE assets SET width = ?, height = ?, duration = ?, orientation = ?, taken_at = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		width, height, duration, orientation, taken, id)
	recordQuery("update_asset", start, err)
	if err != nil {
		return fmt.Errorf("failed to update asset media info: %w", err)
	}
	return nil
}

// ReplaceStoredPath swaps the stored file identity of an asset, used when
// HEIC conversion or audio re-encoding rewrites the bytes on disk. The
// public token moves with it because token derivation covers the stored
// path. The checksum stays untouched: dedup identity is the uploaded
// bytes, so re-submitting the same file matches the converted copy.
func (d *Database) ReplaceStoredPath(ctx context.Context, id int64, storedPath, mimeType string, size int64, newToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		UPDATE assets SET stored_path = ?, mime_type = ?, size = ?, public_token = ?,
			updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		storedPath, mimeType, size, newToken, id)
	recordQuery("update_asset", start, err)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to replace stored path: %w", err)
	}
	return nil
}

// SetDerivativesReady flags whether an asset's derivatives exist on disk.
func (d *Database) SetDerivativesReady(ctx context.Context, id int64, ready bool) error {
	return d.setFlag(ctx, id, "derivatives_ready", ready)
}

// SetWebVideoReady flags whether an asset's web MP4 rendition exists.
func (d *Database) SetWebVideoReady(ctx context.Context, id int64, ready bool) error {
	return d.setFlag(ctx, id, "web_video_ready", ready)
}

func (d *Database) setFlag(ctx context.Context, id int64, column string, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	v := 0
	if value {
		v = 1
	}
	_, err := d.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE assets SET %s = ?, updated_at = strftime('%%s', 'now') WHERE id = ?", column),
		v, id)
	recordQuery("update_asset", start, err)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

// BumpGeneration records a content change: dimensions, orientation and
// user rotation move, the generation counter advances and the public token
// is replaced. Derivatives are marked stale at the same time.
func (d *Database) BumpGeneration(ctx context.Context, id int64, width, height, orientation, rotation int, newToken string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		UPDATE assets SET width = ?, height = ?, orientation = ?, rotation = ?,
			content_generation = content_generation + 1,
			public_token = ?, derivatives_ready = 0,
			updated_at = strftime('%s', 'now')
		WHERE id = ?`,
		width, height, orientation, rotation, newToken, id)
	recordQuery("update_asset", start, err)
	if err != nil {
		return fmt.Errorf("failed to bump asset generation: %w", err)
	}
	return nil
}

// DeleteAsset removes an asset row. The caller is responsible for removing
// files.
func (d *Database) DeleteAsset(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
	recordQuery("delete_asset", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAlbumAssets returns an album's assets in display order.
func (d *Database) ListAlbumAssets(ctx context.Context, albumID int64) ([]*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE album_id = ? ORDER BY display_order, id", albumID)
	recordQuery("get_asset", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list album assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssetsMissingDerivatives returns assets whose derivatives need to be
// (re)generated, oldest first.
func (d *Database) ListAssetsMissingDerivatives(ctx context.Context, limit int) ([]*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+assetColumns+" FROM assets WHERE derivatives_ready = 0 ORDER BY id LIMIT ?", limit)
	recordQuery("get_asset", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAssetsBatch returns assets regardless of derivative state, oldest
// first. Used by overwrite backfill passes.
func (d *Database) ListAssetsBatch(ctx context.Context, limit int) ([]*Asset, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx,
		"SELECT "+assetColumns+" FROM assets ORDER BY id LIMIT ?", limit)
	recordQuery("get_asset", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var out []*Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetStats returns library statistics for the metrics collector.
func (d *Database) GetStats() metrics.Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	rows, err := d.db.QueryContext(ctx, "SELECT type, COUNT(*), COALESCE(SUM(size), 0) FROM assets GROUP BY type")
	recordQuery("stats", start, err)
	if err != nil {
		logging.Warn("Failed to collect library stats: %v", err)
		return stats
	}
	defer rows.Close()

	for rows.Next() {
		var t string
		var count int
		var bytes int64
		if err := rows.Scan(&t, &count, &bytes); err != nil {
			continue
		}
		switch mediatypes.FileType(t) {
		case mediatypes.FileTypeImage:
			stats.TotalImages = count
		case mediatypes.FileTypeVideo:
			stats.TotalVideos = count
		case mediatypes.FileTypeAudio:
			stats.TotalAudio = count
		}
		stats.TotalBytes += bytes
	}

	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings").Scan(&stats.TotalRecordings); err != nil {
		logging.Debug("Failed to count recordings: %v", err)
	}
	return stats
}

// ignoreNotFound keeps expected misses out of the error-rate metrics.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
