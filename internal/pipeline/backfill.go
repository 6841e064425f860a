package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"

	"gallery-server/internal/database"
	"gallery-server/internal/logging"
	"gallery-server/internal/media"
	"gallery-server/internal/mediatypes"
	"gallery-server/internal/metrics"
	"gallery-server/internal/storage"
	"gallery-server/internal/workers"
)

// backfillBatchSize bounds one backfill pass so a huge gap does not hold
// the permits hostage for hours.
const backfillBatchSize = 100

// backfillWorkerCap caps the fan-out; actual codec work is still gated by
// the permit pool, so extra workers only overlap the disk checks.
const backfillWorkerCap = 4

// BackfillReport summarizes one derivative backfill pass.
type BackfillReport struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// GenerateMissingDerivatives finds assets whose derivatives are missing or
// stale and regenerates them, one permit per asset. With overwrite set it
// rebuilds derivatives for every asset in the batch, ready or not, which
// repairs derivatives that exist on disk but were generated with older
// settings. Interruption stops the pass cleanly; the remaining assets stay
// queued for the next run.
func (p *Pipeline) GenerateMissingDerivatives(ctx context.Context, overwrite bool) (*BackfillReport, error) {
	var pending []*database.Asset
	var err error
	if overwrite {
		pending, err = p.db.ListAssetsBatch(ctx, backfillBatchSize)
	} else {
		pending, err = p.db.ListAssetsMissingDerivatives(ctx, backfillBatchSize)
	}
	if err != nil {
		return nil, &StorageError{Op: "list pending", Err: err}
	}

	workerCount := workers.ForMixed(backfillWorkerCap)
	if workerCount > len(pending) {
		workerCount = len(pending)
	}

	var (
		mu          sync.Mutex
		report      BackfillReport
		interrupted bool
	)
	queue := make(chan *database.Asset)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for asset := range queue {
				outcome := p.backfillOne(ctx, asset, overwrite)
				mu.Lock()
				switch outcome {
				case backfillSucceeded:
					report.Processed++
					report.Succeeded++
				case backfillFailed:
					report.Processed++
					report.Failed++
				case backfillSkipped:
					report.Processed++
					report.Skipped++
				case backfillInterrupted:
					interrupted = true
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, asset := range pending {
		select {
		case queue <- asset:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	metrics.BackfillFilesTotal.WithLabelValues("succeeded").Set(float64(report.Succeeded))
	metrics.BackfillFilesTotal.WithLabelValues("failed").Set(float64(report.Failed))
	metrics.BackfillFilesTotal.WithLabelValues("skipped").Set(float64(report.Skipped))

	if interrupted || ctx.Err() != nil {
		return &report, ErrInterrupted
	}
	return &report, nil
}

type backfillOutcome int

const (
	backfillSucceeded backfillOutcome = iota
	backfillFailed
	backfillSkipped
	backfillInterrupted
)

func (p *Pipeline) backfillOne(ctx context.Context, asset *database.Asset, overwrite bool) backfillOutcome {
	abs, err := p.layout.Resolve(asset.StoredPath)
	if err != nil {
		return backfillFailed
	}
	if _, err := os.Stat(abs); err != nil {
		// Original vanished from disk; nothing to regenerate.
		logging.Warn("Backfill: original missing for asset %d (%s)", asset.ID, asset.StoredPath)
		return backfillSkipped
	}

	err = p.pool.Do(ctx, asset.StoredPath, func(ctx context.Context) error {
		return p.backfillAsset(ctx, asset, overwrite)
	})
	switch {
	case err == nil:
		return backfillSucceeded
	case errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled):
		return backfillInterrupted
	default:
		logging.Error("Backfill failed for asset %d: %v", asset.ID, err)
		return backfillFailed
	}
}

func (p *Pipeline) backfillAsset(ctx context.Context, asset *database.Asset, overwrite bool) error {
	switch asset.Type {
	case mediatypes.FileTypeImage:
		orientation := asset.Orientation
		if asset.Rotation != 0 {
			// Rotated images were baked into display orientation.
			orientation = media.OrientationNormal
		}
		if err := media.GenerateImageDerivatives(ctx, p.runner, p.layout, asset.StoredPath, orientation); err != nil {
			return err
		}
	case mediatypes.FileTypeVideo:
		abs, err := p.layout.Resolve(asset.StoredPath)
		if err != nil {
			return err
		}
		thumbRel := storage.SiblingPath(asset.StoredPath, storage.DerivativeName(storage.PrefixThumbnail, asset.StoredPath))
		absThumb, err := p.layout.Resolve(thumbRel)
		if err != nil {
			return err
		}
		if _, err := os.Stat(absThumb); err != nil || overwrite {
			if err := media.VideoThumbnail(ctx, p.runner, abs, absThumb); err != nil {
				return err
			}
		}
		if !asset.WebVideoReady {
			webRel := storage.SiblingPath(asset.StoredPath, storage.WebVideoName(asset.StoredPath))
			absWeb, err := p.layout.Resolve(webRel)
			if err != nil {
				return err
			}
			if err := media.TranscodeWebVideo(ctx, p.runner, abs, absWeb); err != nil {
				logging.Error("Backfill web transcode failed for asset %d: %v", asset.ID, err)
			} else if err := p.db.SetWebVideoReady(ctx, asset.ID, true); err != nil {
				logging.Warn("Failed to flag web video for asset %d: %v", asset.ID, err)
			}
		}
	case mediatypes.FileTypeAudio:
		// An unset flag means an interrupted upload: the file may still
		// be in its original container, so run the full re-encode.
		return p.processAudio(ctx, asset)
	}

	return p.db.SetDerivativesReady(ctx, asset.ID, true)
}
