// Package pipeline orchestrates the life of a media asset: ingest with
// content-addressed dedup, permit-bounded processing into derivatives,
// rotation, deletion and resolution of public tokens for serving.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gallery-server/internal/codec"
	"gallery-server/internal/database"
	"gallery-server/internal/logging"
	"gallery-server/internal/media"
	"gallery-server/internal/mediatypes"
	"gallery-server/internal/metrics"
	"gallery-server/internal/scheduler"
	"gallery-server/internal/storage"
)

// Pipeline wires storage, codecs, the database and the permit pool into
// the operations the HTTP layer exposes.
type Pipeline struct {
	db          *database.Database
	layout      *storage.Layout
	runner      *codec.Runner
	pool        *scheduler.Pool
	signer      *TokenSigner
	maxFileSize int64
}

// New creates a Pipeline. maxFileSize bounds a single upload in bytes.
func New(db *database.Database, layout *storage.Layout, runner *codec.Runner, pool *scheduler.Pool, signer *TokenSigner, maxFileSize int64) *Pipeline {
	return &Pipeline{
		db:          db,
		layout:      layout,
		runner:      runner,
		pool:        pool,
		signer:      signer,
		maxFileSize: maxFileSize,
	}
}

// IngestRequest describes one uploaded file. ContentID is an optional
// client-side identifier for the source media (a photo library asset ID);
// re-uploads carrying the same ID deduplicate even if the bytes differ,
// e.g. after the client re-exported the photo.
type IngestRequest struct {
	AlbumID   int64
	Filename  string
	MimeType  string
	ContentID string
	Content   io.Reader
}

// IngestResult is the outcome of an upload. Duplicate means the bytes were
// already in the library and Asset points at the existing copy.
type IngestResult struct {
	Asset     *database.Asset
	Duplicate bool
}

// Ingest stores an upload, deduplicates it by checksum and runs type-
// specific processing under a permit. Fatal processing failures discard
// the upload entirely.
func (p *Pipeline) Ingest(ctx context.Context, req *IngestRequest) (*IngestResult, error) {
	fileType := mediatypes.TypeFromMime(req.MimeType, req.Filename)
	if fileType == mediatypes.FileTypeOther {
		metrics.UploadsTotal.WithLabelValues("other", "rejected").Inc()
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported media type %q for %q", req.MimeType, req.Filename)}
	}
	label := string(fileType)

	name := storage.UniqueName(req.Filename)
	abs, err := p.layout.Resolve(name)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}

	written, checksum, err := p.writeAndHash(abs, req.Content)
	if err != nil {
		_ = os.Remove(abs)
		if IsValidation(err) {
			metrics.UploadsTotal.WithLabelValues(label, "rejected").Inc()
			return nil, err
		}
		metrics.UploadsTotal.WithLabelValues(label, "failed").Inc()
		return nil, &StorageError{Op: "write", Err: err}
	}
	metrics.UploadBytes.Add(float64(written))

	// Advisory pre-check. The real guarantee is the uniqueness constraint
	// on insert; this just avoids processing bytes we are about to drop.
	if existing, err := p.db.FindDuplicate(ctx, checksum, req.ContentID, req.AlbumID); err == nil {
		_ = os.Remove(abs)
		metrics.UploadsTotal.WithLabelValues(label, "duplicate").Inc()
		logging.Info("Upload %q deduplicated against asset %d", req.Filename, existing.ID)
		return &IngestResult{Asset: existing, Duplicate: true}, nil
	} else if !errors.Is(err, ErrNotFound) {
		_ = os.Remove(abs)
		return nil, &StorageError{Op: "dedup lookup", Err: err}
	}

	// Browsers send application/octet-stream for anything they don't
	// recognize; the extension is more truthful then.
	mimeType := req.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mediatypes.GetMimeType(mediatypes.Ext(req.Filename))
	}

	asset := &database.Asset{
		AlbumID:      req.AlbumID,
		Type:         fileType,
		OriginalName: filepath.Base(req.Filename),
		StoredPath:   name,
		MimeType:     mimeType,
		Size:         written,
		Checksum:     checksum,
		ContentID:    req.ContentID,
		Orientation:  media.OrientationNormal,
		PublicToken:  p.signer.AssetToken(req.AlbumID, name, 1),
	}

	if err := p.db.InsertAsset(ctx, asset); err != nil {
		_ = os.Remove(abs)
		if errors.Is(err, database.ErrDuplicate) {
			// A racing upload of the same bytes won the constraint.
			if existing, ferr := p.db.FindDuplicate(ctx, checksum, req.ContentID, req.AlbumID); ferr == nil {
				metrics.UploadsTotal.WithLabelValues(label, "duplicate").Inc()
				return &IngestResult{Asset: existing, Duplicate: true}, nil
			}
			return nil, &StorageError{Op: "dedup race lookup", Err: err}
		}
		metrics.UploadsTotal.WithLabelValues(label, "failed").Inc()
		return nil, &StorageError{Op: "insert", Err: err}
	}

	start := time.Now()
	procErr := p.pool.Do(ctx, asset.StoredPath, func(ctx context.Context) error {
		return p.process(ctx, asset)
	})
	metrics.ProcessingJobDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	if procErr != nil {
		switch {
		case errors.Is(procErr, ErrInterrupted) || errors.Is(procErr, context.Canceled):
			// Shutdown mid-job: keep the original, backfill finishes the
			// derivatives on the next run.
			metrics.ProcessingJobsTotal.WithLabelValues(label, "interrupted").Inc()
			logging.Warn("Processing of asset %d interrupted; derivatives deferred", asset.ID)
		case IsFatalProcessing(procErr):
			metrics.ProcessingJobsTotal.WithLabelValues(label, "error").Inc()
			metrics.UploadsTotal.WithLabelValues(label, "failed").Inc()
			p.discard(context.WithoutCancel(ctx), asset)
			return nil, procErr
		default:
			// Recoverable: asset stays, derivatives missing.
			metrics.ProcessingJobsTotal.WithLabelValues(label, "error").Inc()
			logging.Error("Processing of asset %d failed: %v", asset.ID, procErr)
		}
	} else {
		metrics.ProcessingJobsTotal.WithLabelValues(label, "success").Inc()
	}

	metrics.UploadsTotal.WithLabelValues(label, "stored").Inc()

	final, err := p.db.GetAsset(ctx, asset.ID)
	if err != nil {
		return nil, &StorageError{Op: "reload", Err: err}
	}
	return &IngestResult{Asset: final}, nil
}

// writeAndHash streams content to disk while computing its SHA-256,
// enforcing the size limit as bytes arrive.
func (p *Pipeline) writeAndHash(abs string, content io.Reader) (int64, string, error) {
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, "", err
	}

	limited := content
	if p.maxFileSize > 0 {
		limited = io.LimitReader(content, p.maxFileSize+1)
	}

	written, checksum, err := media.ChecksumCopy(f, limited)
	closeErr := f.Close()
	if err != nil {
		return written, "", err
	}
	if closeErr != nil {
		return written, "", closeErr
	}
	if p.maxFileSize > 0 && written > p.maxFileSize {
		return written, "", &ValidationError{Reason: fmt.Sprintf("file exceeds maximum size of %d bytes", p.maxFileSize)}
	}
	return written, checksum, nil
}

func (p *Pipeline) process(ctx context.Context, asset *database.Asset) error {
	switch asset.Type {
	case mediatypes.FileTypeImage:
		return p.processImage(ctx, asset)
	case mediatypes.FileTypeVideo:
		return p.processVideo(ctx, asset)
	case mediatypes.FileTypeAudio:
		return p.processAudio(ctx, asset)
	default:
		return &ValidationError{Reason: "unknown asset type " + string(asset.Type)}
	}
}

func (p *Pipeline) processImage(ctx context.Context, asset *database.Asset) error {
	if mediatypes.IsHeic(asset.StoredPath) {
		if err := p.convertHeic(ctx, asset); err != nil {
			return err
		}
	}

	abs, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}

	meta := media.ReadExif(abs)
	if w, h, err := media.ImageDimensions(abs); err == nil {
		dw, dh := media.DisplayDimensions(w, h, meta.Orientation)
		if err := p.db.UpdateAssetMedia(ctx, asset.ID, dw, dh, 0, meta.Orientation, meta.TakenAt); err != nil {
			logging.Warn("Failed to store dimensions for asset %d: %v", asset.ID, err)
		}
	} else {
		logging.Debug("Could not read dimensions of %s: %v", asset.StoredPath, err)
	}

	if err := media.GenerateImageDerivatives(ctx, p.runner, p.layout, asset.StoredPath, meta.Orientation); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return &ProcessingError{Stage: "image derivatives", Err: err}
	}
	return p.db.SetDerivativesReady(ctx, asset.ID, true)
}

// convertHeic replaces a HEIC original with a browser-displayable JPEG.
// Failure here is fatal: without the conversion nothing can be served.
func (p *Pipeline) convertHeic(ctx context.Context, asset *database.Asset) error {
	newRel := storage.SiblingPath(asset.StoredPath, storage.BaseName(asset.StoredPath)+".jpg")
	absSrc, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}
	absDst, err := p.layout.Resolve(newRel)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}

	if err := media.ConvertHeicToJpeg(ctx, p.runner, absSrc, absDst); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return &ProcessingError{Stage: "heic conversion", Fatal: true, Err: err}
	}

	fi, err := os.Stat(absDst)
	if err != nil {
		_ = os.Remove(absDst)
		return &ProcessingError{Stage: "heic conversion", Fatal: true, Err: err}
	}

	// The checksum column keeps the uploaded HEIC's digest so an identical
	// re-upload still dedups against this asset.
	newToken := p.signer.AssetToken(asset.AlbumID, newRel, asset.ContentGeneration)
	if err := p.db.ReplaceStoredPath(ctx, asset.ID, newRel, "image/jpeg", fi.Size(), newToken); err != nil {
		_ = os.Remove(absDst)
		return &ProcessingError{Stage: "heic conversion", Fatal: true, Err: err}
	}

	if err := os.Remove(absSrc); err != nil {
		logging.Warn("Failed to remove converted HEIC original %s: %v", asset.StoredPath, err)
	}

	asset.StoredPath = newRel
	asset.MimeType = "image/jpeg"
	asset.Size = fi.Size()
	asset.PublicToken = newToken
	metrics.ProcessingJobsTotal.WithLabelValues("heic", "success").Inc()
	return nil
}

func (p *Pipeline) processVideo(ctx context.Context, asset *database.Asset) error {
	abs, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}

	if info, err := media.Probe(ctx, p.runner, abs); err == nil {
		if err := p.db.UpdateAssetMedia(ctx, asset.ID, info.Width, info.Height, info.Duration, media.OrientationNormal, nil); err != nil {
			logging.Warn("Failed to store video info for asset %d: %v", asset.ID, err)
		}
	} else {
		logging.Warn("ffprobe failed for asset %d: %v", asset.ID, err)
	}

	// Poster frame and web rendition are both best-effort: the original
	// still serves, and backfill retries what is missing.
	thumbRel := storage.SiblingPath(asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, asset.StoredPath))
	absThumb, err := p.layout.Resolve(thumbRel)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}
	thumbErr := media.VideoThumbnail(ctx, p.runner, abs, absThumb)
	if thumbErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, thumbErr)
		}
		logging.Error("Video thumbnail failed for asset %d: %v", asset.ID, thumbErr)
	}

	webRel := storage.SiblingPath(asset.StoredPath, storage.WebVideoName(asset.StoredPath))
	absWeb, err := p.layout.Resolve(webRel)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}
	if err := media.TranscodeWebVideo(ctx, p.runner, abs, absWeb); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		logging.Error("Web transcode failed for asset %d: %v", asset.ID, err)
	} else if err := p.db.SetWebVideoReady(ctx, asset.ID, true); err != nil {
		logging.Warn("Failed to flag web video for asset %d: %v", asset.ID, err)
	}

	if thumbErr == nil {
		return p.db.SetDerivativesReady(ctx, asset.ID, true)
	}
	return &ProcessingError{Stage: "video thumbnail", Err: thumbErr}
}

// processAudio re-encodes uploads to Opus. Browsers record audio with
// unreliable timestamps; serving the raw capture breaks seeking. Uploads
// in containers that cannot carry Opus (mp3, m4a, wav, flac) move to an
// Ogg container, the same way HEIC images move to JPEG.
func (p *Pipeline) processAudio(ctx context.Context, asset *database.Asset) error {
	absSrc, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}
	newRel := storage.SiblingPath(asset.StoredPath, storage.OpusAudioName(asset.StoredPath))
	absDst, err := p.layout.Resolve(newRel)
	if err != nil {
		return &StorageError{Op: "resolve", Err: err}
	}

	if err := media.ReencodeOpus(ctx, p.runner, absSrc, absDst); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		return &ProcessingError{Stage: "audio re-encode", Fatal: true, Err: err}
	}

	fi, err := os.Stat(absDst)
	if err != nil {
		return &ProcessingError{Stage: "audio re-encode", Fatal: true, Err: err}
	}

	if newRel != asset.StoredPath {
		// The checksum keeps the uploaded file's digest for dedup.
		newToken := p.signer.AssetToken(asset.AlbumID, newRel, asset.ContentGeneration)
		if err := p.db.ReplaceStoredPath(ctx, asset.ID, newRel, "audio/ogg", fi.Size(), newToken); err != nil {
			_ = os.Remove(absDst)
			return &ProcessingError{Stage: "audio re-encode", Fatal: true, Err: err}
		}
		if err := os.Remove(absSrc); err != nil {
			logging.Warn("Failed to remove re-encoded audio original %s: %v", asset.StoredPath, err)
		}
		asset.StoredPath = newRel
		asset.MimeType = "audio/ogg"
		asset.Size = fi.Size()
		asset.PublicToken = newToken
	} else {
		// Path is unchanged, so the token stays stable.
		if err := p.db.ReplaceStoredPath(ctx, asset.ID, asset.StoredPath, asset.MimeType, fi.Size(), asset.PublicToken); err != nil {
			return &StorageError{Op: "update", Err: err}
		}
		asset.Size = fi.Size()
	}

	if info, err := media.Probe(ctx, p.runner, absDst); err == nil {
		if err := p.db.UpdateAssetMedia(ctx, asset.ID, 0, 0, info.Duration, media.OrientationNormal, nil); err != nil {
			logging.Warn("Failed to store audio duration for asset %d: %v", asset.ID, err)
		}
	}

	return p.db.SetDerivativesReady(ctx, asset.ID, true)
}

// RotateLeft turns an image asset 90 degrees counter-clockwise. The pixels
// are rewritten, derivatives are regenerated and the public token changes
// so cached URLs cannot serve the stale orientation.
func (p *Pipeline) RotateLeft(ctx context.Context, id int64) (*database.Asset, error) {
	asset, err := p.db.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset.Type != mediatypes.FileTypeImage {
		return nil, &ValidationError{Reason: "only images can be rotated"}
	}

	err = p.pool.Do(ctx, asset.StoredPath, func(ctx context.Context) error {
		// Rotate before touching anything else: a failed rotate leaves the
		// existing derivatives and token serving the old orientation.
		if err := media.RotateLeft(p.layout, asset.StoredPath); err != nil {
			return &ProcessingError{Stage: "rotate", Err: err}
		}

		abs, err := p.layout.Resolve(asset.StoredPath)
		if err != nil {
			return &StorageError{Op: "resolve", Err: err}
		}
		w, h, err := media.ImageDimensions(abs)
		if err != nil {
			w, h = asset.Height, asset.Width
		}

		newRotation := (asset.Rotation + 90) % 360
		newToken := p.signer.AssetToken(asset.AlbumID, asset.StoredPath, asset.ContentGeneration+1)
		// Rotation bakes the pixels, so the EXIF orientation is spent.
		// Derivatives are marked stale here and removed just after.
		if err := p.db.BumpGeneration(ctx, asset.ID, w, h, media.OrientationNormal, newRotation, newToken); err != nil {
			return &StorageError{Op: "update", Err: err}
		}
		p.removeDerivatives(asset)

		if err := media.GenerateImageDerivatives(ctx, p.runner, p.layout, asset.StoredPath, media.OrientationNormal); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
			// Backfill will regenerate; the rotation itself succeeded.
			logging.Error("Derivative regeneration after rotate failed for asset %d: %v", asset.ID, err)
			return nil
		}
		return p.db.SetDerivativesReady(ctx, asset.ID, true)
	})
	if err != nil {
		metrics.ProcessingJobsTotal.WithLabelValues("rotate", statusOf(err)).Inc()
		return nil, err
	}
	metrics.ProcessingJobsTotal.WithLabelValues("rotate", "success").Inc()

	return p.db.GetAsset(ctx, id)
}

// Delete removes an asset and every file derived from it.
func (p *Pipeline) Delete(ctx context.Context, id int64) error {
	asset, err := p.db.GetAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := p.db.DeleteAsset(ctx, id); err != nil {
		return err
	}
	p.removeFiles(asset)
	logging.Info("Deleted asset %d (%s)", id, asset.StoredPath)
	return nil
}

// removeDerivatives deletes an asset's derivative files, keeping the
// original.
func (p *Pipeline) removeDerivatives(asset *database.Asset) {
	for _, rel := range derivativeRels(asset) {
		abs, err := p.layout.Resolve(rel)
		if err != nil {
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove derivative %s: %v", rel, err)
		}
	}
}

// removeFiles deletes the original and all derivatives.
func (p *Pipeline) removeFiles(asset *database.Asset) {
	p.removeDerivatives(asset)
	if abs, err := p.layout.Resolve(asset.StoredPath); err == nil {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove original %s: %v", asset.StoredPath, err)
		}
	}
}

func derivativeRels(asset *database.Asset) []string {
	rels := []string{
		storage.SiblingPath(asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, asset.StoredPath)),
		storage.SiblingPath(asset.StoredPath, storage.DerivativeName(storage.PrefixMedium, asset.StoredPath)),
		storage.SiblingPath(asset.StoredPath, storage.DerivativeName(storage.PrefixLarge, asset.StoredPath)),
	}
	if asset.Type == mediatypes.FileTypeVideo {
		rels = append(rels, storage.SiblingPath(asset.StoredPath, storage.WebVideoName(asset.StoredPath)))
	}
	return rels
}

// discard removes a failed upload completely: files first, then the row.
func (p *Pipeline) discard(ctx context.Context, asset *database.Asset) {
	p.removeFiles(asset)
	if err := p.db.DeleteAsset(ctx, asset.ID); err != nil && !errors.Is(err, ErrNotFound) {
		logging.Error("Failed to remove discarded asset %d: %v", asset.ID, err)
	}
	logging.Warn("Discarded asset %d after fatal processing failure", asset.ID)
}

func statusOf(err error) string {
	if errors.Is(err, ErrInterrupted) {
		return "interrupted"
	}
	return "error"
}

// normalizeSize canonicalizes the size query parameter.
func normalizeSize(size string) string {
	return strings.ToLower(strings.TrimSpace(size))
}
