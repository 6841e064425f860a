package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gallery-server/internal/database"
	"gallery-server/internal/logging"
	"gallery-server/internal/media"
	"gallery-server/internal/metrics"
	"gallery-server/internal/storage"
)

// recordingExtensions maps the MIME types browsers record with to the
// extension the file is stored under.
var recordingExtensions = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mp4":  ".m4a",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
}

// recordingExtension picks the storage extension for a recording MIME
// type, ignoring codec parameters like ";codecs=opus".
func recordingExtension(mimeType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext, ok := recordingExtensions[mt]
	return ext, ok
}

// SaveRecording stores a slideshow voice recording, re-encodes it to Opus
// under a processing permit and registers it for the album. A failed
// re-encode discards the take; the browser retries the whole recording.
func (p *Pipeline) SaveRecording(ctx context.Context, albumID int64, mimeType string, content io.Reader) (*database.Recording, error) {
	ext, ok := recordingExtension(mimeType)
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported recording type %q", mimeType)}
	}

	rel := storage.RecordingsDirName + "/" + storage.RecordingName(ext)
	abs, err := p.layout.Resolve(rel)
	if err != nil {
		return nil, &StorageError{Op: "resolve", Err: err}
	}

	if _, _, err := p.writeAndHash(abs, content); err != nil {
		_ = os.Remove(abs)
		if IsValidation(err) {
			return nil, err
		}
		return nil, &StorageError{Op: "write", Err: err}
	}

	// Takes in mp3, m4a or wav containers move to Ogg, like audio uploads.
	newRel := storage.SiblingPath(rel, storage.OpusAudioName(rel))
	absDst, err := p.layout.Resolve(newRel)
	if err != nil {
		_ = os.Remove(abs)
		return nil, &StorageError{Op: "resolve", Err: err}
	}

	err = p.pool.Do(ctx, rel, func(ctx context.Context) error {
		if err := media.ReencodeOpus(ctx, p.runner, abs, absDst); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrInterrupted, err)
			}
			return &ProcessingError{Stage: "recording re-encode", Fatal: true, Err: err}
		}
		return nil
	})
	if err != nil {
		_ = os.Remove(abs)
		metrics.ProcessingJobsTotal.WithLabelValues("audio", statusOf(err)).Inc()
		return nil, err
	}
	metrics.ProcessingJobsTotal.WithLabelValues("audio", "success").Inc()

	storedMime := mimeType
	if newRel != rel {
		if err := os.Remove(abs); err != nil {
			logging.Warn("Failed to remove recording original %s: %v", rel, err)
		}
		rel, abs = newRel, absDst
		storedMime = "audio/ogg"
	}

	fi, err := os.Stat(abs)
	if err != nil {
		return nil, &StorageError{Op: "stat", Err: err}
	}

	rec := &database.Recording{
		AlbumID:     albumID,
		StoredPath:  rel,
		MimeType:    storedMime,
		Size:        fi.Size(),
		PublicToken: p.signer.RecordingToken(albumID, rel),
	}
	if err := p.db.InsertRecording(ctx, rec); err != nil {
		_ = os.Remove(abs)
		return nil, &StorageError{Op: "insert", Err: err}
	}

	logging.Info("Recording saved for album %d: %s (%d bytes)", albumID, rel, rec.Size)
	return rec, nil
}

// DeleteRecording removes a recording row and its file.
func (p *Pipeline) DeleteRecording(ctx context.Context, id int64) error {
	rec, err := p.db.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if err := p.db.DeleteRecording(ctx, id); err != nil {
		return err
	}
	if abs, err := p.layout.Resolve(rec.StoredPath); err == nil {
		if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Failed to remove recording file %s: %v", rec.StoredPath, err)
		}
	}
	return nil
}
