package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"gallery-server/internal/codec"
	"gallery-server/internal/logging"
)

// heicTimeout bounds a single ImageMagick conversion.
const heicTimeout = 5 * time.Minute

// ConvertHeicToJpeg converts a HEIC/HEIF file to JPEG using ImageMagick.
// On failure any partial output is removed; the caller decides what happens
// to the source.
func ConvertHeicToJpeg(ctx context.Context, runner *codec.Runner, src, dst string) error {
	if !runner.Available(codec.BinConvert) {
		return fmt.Errorf("ImageMagick convert is not available for HEIC conversion")
	}

	_, err := runner.Run(ctx, heicTimeout, codec.BinConvert, src, "-quality", "95", dst)
	if err != nil {
		if rmErr := os.Remove(dst); rmErr == nil {
			logging.Debug("Removed partial HEIC output %s", dst)
		}
		return fmt.Errorf("HEIC conversion failed for %s: %w", src, err)
	}

	// ImageMagick can exit 0 and still write nothing for some inputs.
	if fi, statErr := os.Stat(dst); statErr != nil || fi.Size() == 0 {
		_ = os.Remove(dst)
		return fmt.Errorf("HEIC conversion produced no output for %s", src)
	}

	logging.Info("Converted HEIC %s -> %s", src, dst)
	return nil
}
