package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gallery-server/internal/database"
	"gallery-server/internal/logging"
	"gallery-server/internal/mediatypes"
	"gallery-server/internal/storage"
)

// ServeFile points the HTTP layer at the bytes behind a public token.
type ServeFile struct {
	AbsPath  string
	MimeType string
	Filename string
}

// Size selectors accepted by ResolveAsset.
const (
	SizeOriginal  = "original"
	SizeThumbnail = "thumbnail"
	SizeMedium    = "medium"
	SizeLarge     = "large"
	SizeWeb       = "web"
)

// ResolveAsset maps a public token and size selector to a file on disk.
// Missing derivatives fall back to the original rather than erroring, so a
// backfill gap never 404s a gallery page.
func (p *Pipeline) ResolveAsset(ctx context.Context, token, size string) (*ServeFile, error) {
	asset, err := p.db.GetAssetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch normalizeSize(size) {
	case "", SizeOriginal:
		return p.serveOriginal(asset)
	case SizeThumbnail:
		return p.serveDerivative(asset, storage.PrefixThumbnail)
	case SizeMedium:
		return p.serveDerivative(asset, storage.PrefixMedium)
	case SizeLarge:
		return p.serveDerivative(asset, storage.PrefixLarge)
	case SizeWeb:
		if asset.Type != mediatypes.FileTypeVideo {
			return p.serveOriginal(asset)
		}
		return p.serveWebVideo(asset)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown size %q", size)}
	}
}

func (p *Pipeline) serveOriginal(asset *database.Asset) (*ServeFile, error) {
	abs, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, ErrNotFound
	}
	return &ServeFile{AbsPath: abs, MimeType: asset.MimeType, Filename: asset.OriginalName}, nil
}

func (p *Pipeline) serveDerivative(asset *database.Asset, prefix string) (*ServeFile, error) {
	if asset.Type != mediatypes.FileTypeImage && prefix != storage.PrefixThumbnail {
		return p.serveOriginal(asset)
	}

	rel := storage.SiblingPath(asset.StoredPath, storage.DerivativeName(prefix, asset.StoredPath))
	abs, err := p.layout.Resolve(rel)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		logging.Debug("Derivative %s missing, serving original", rel)
		return p.serveOriginal(asset)
	}
	return &ServeFile{AbsPath: abs, MimeType: "image/jpeg", Filename: storage.BaseName(asset.StoredPath) + ".jpg"}, nil
}

func (p *Pipeline) serveWebVideo(asset *database.Asset) (*ServeFile, error) {
	rel := storage.SiblingPath(asset.StoredPath, storage.WebVideoName(asset.StoredPath))
	abs, err := p.layout.Resolve(rel)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		logging.Debug("Web rendition of asset %d missing, serving original", asset.ID)
		return p.serveOriginal(asset)
	}
	return &ServeFile{AbsPath: abs, MimeType: "video/mp4", Filename: storage.BaseName(asset.StoredPath) + ".mp4"}, nil
}

// ResolveRecording maps a recording token to its file.
func (p *Pipeline) ResolveRecording(ctx context.Context, token string) (*ServeFile, error) {
	rec, err := p.db.GetRecordingByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	abs, err := p.layout.Resolve(rec.StoredPath)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, ErrNotFound
	}
	return &ServeFile{AbsPath: abs, MimeType: rec.MimeType, Filename: storage.BaseName(rec.StoredPath) + filepath.Ext(rec.StoredPath)}, nil
}

// GetAsset exposes asset lookup to the HTTP layer.
func (p *Pipeline) GetAsset(ctx context.Context, id int64) (*database.Asset, error) {
	return p.db.GetAsset(ctx, id)
}

// ListAlbumAssets exposes album listing to the HTTP layer.
func (p *Pipeline) ListAlbumAssets(ctx context.Context, albumID int64) ([]*database.Asset, error) {
	return p.db.ListAlbumAssets(ctx, albumID)
}

// ListAlbumRecordings exposes recording listing to the HTTP layer.
func (p *Pipeline) ListAlbumRecordings(ctx context.Context, albumID int64) ([]*database.Recording, error) {
	return p.db.ListAlbumRecordings(ctx, albumID)
}
