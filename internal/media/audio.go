package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"gallery-server/internal/codec"
	"gallery-server/internal/logging"
	"gallery-server/internal/storage"
)

const audioTimeout = 10 * time.Minute

// ReencodeOpus re-encodes the audio file at src as Opus, writing to dst.
// ffmpeg picks the container from dst's extension, so dst must be an
// Opus-capable container (webm, ogg, opus). When src and dst are the same
// path the re-encode goes through a temporary sibling and the original is
// only replaced once the new encoding is completely written.
// Browser-recorded audio often carries broken timestamps, so timestamp
// generation is forced and negative timestamps are shifted to zero.
func ReencodeOpus(ctx context.Context, runner *codec.Runner, src, dst string) error {
	out := dst
	inPlace := src == dst
	if inPlace {
		out = storage.TempPath(dst)
	}

	_, err := runner.Run(ctx, audioTimeout, codec.BinFFmpeg,
		"-y",
		"-fflags", "+genpts",
		"-i", src,
		"-c:a", "libopus",
		"-b:a", "64k",
		"-vbr", "on",
		"-application", "audio",
		"-avoid_negative_ts", "make_zero",
		out,
	)
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("audio re-encode failed for %s: %w", src, err)
	}

	if fi, statErr := os.Stat(out); statErr != nil || fi.Size() == 0 {
		_ = os.Remove(out)
		return fmt.Errorf("audio re-encode produced no output for %s", src)
	}

	if inPlace {
		if err := storage.ReplaceFile(out, dst); err != nil {
			_ = os.Remove(out)
			return err
		}
	}

	logging.Debug("Audio re-encoded to Opus: %s -> %s", src, dst)
	return nil
}
