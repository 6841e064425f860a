package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register webp decoding

	"gallery-server/internal/codec"
	"gallery-server/internal/logging"
	"gallery-server/internal/metrics"
	"gallery-server/internal/storage"
)

// decodeTimeout bounds the ffmpeg fallback when native decoders fail.
const decodeTimeout = 2 * time.Minute

// DecodeDisplayImage decodes an image file into display orientation. It
// tries the native decoders first and applies the EXIF transform itself;
// when those fail it falls back to libvips (which auto-rotates) and finally
// to ffmpeg.
func DecodeDisplayImage(ctx context.Context, runner *codec.Runner, path string, orientation int) (image.Image, error) {
	// imaging handles jpeg/png/gif/tiff/bmp; webp registers via image.Decode.
	img, err := imaging.Open(path)
	if err == nil {
		return ApplyOrientation(img, orientation), nil
	}
	logging.Debug("imaging.Open failed for %s: %v, trying fallbacks", path, err)

	if img, err := decodeImageFile(path); err == nil {
		return ApplyOrientation(img, orientation), nil
	}

	if img, err := decodeWithVips(path); err == nil {
		// vips already applied the orientation.
		return img, nil
	}

	img, err = decodeWithFFmpeg(ctx, runner, path)
	if err != nil {
		return nil, fmt.Errorf("all image decode methods failed for %s: %w", path, err)
	}
	return ApplyOrientation(img, orientation), nil
}

func decodeImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	logging.Debug("Decoded image format: %s for %s", format, path)
	return img, nil
}

// decodeWithFFmpeg extracts the image as a single PNG frame. Last-resort
// path for formats none of the native decoders understand.
func decodeWithFFmpeg(ctx context.Context, runner *codec.Runner, path string) (image.Image, error) {
	res, err := runner.Run(ctx, decodeTimeout, codec.BinFFmpeg,
		"-i", path,
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-pix_fmt", "rgb24",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(bytes.NewReader([]byte(res.Stdout)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// GenerateImageDerivatives produces the thumbnail, medium and large JPEG
// renditions of an image, each written next to the original. The source is
// decoded once; profiles that would upscale reuse the original dimensions.
// Profiles are attempted independently: a failed rendition is logged and
// skipped, and the call errors only when every profile failed.
func GenerateImageDerivatives(ctx context.Context, runner *codec.Runner, layout *storage.Layout, storedPath string, orientation int) error {
	absSrc, err := layout.Resolve(storedPath)
	if err != nil {
		return err
	}

	img, err := DecodeDisplayImage(ctx, runner, absSrc, orientation)
	if err != nil {
		return err
	}

	var failed int
	var lastErr error
	for _, p := range ImageProfiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeDerivative(layout, storedPath, img, p); err != nil {
			metrics.DerivativeGenerationsTotal.WithLabelValues(p.Name, "error").Inc()
			logging.Warn("Failed to generate %s derivative for %s: %v", p.Name, storedPath, err)
			failed++
			lastErr = err
			continue
		}
		metrics.DerivativeGenerationsTotal.WithLabelValues(p.Name, "success").Inc()
	}
	if failed == len(ImageProfiles) {
		return fmt.Errorf("all derivatives failed for %s: %w", storedPath, lastErr)
	}
	return nil
}

func writeDerivative(layout *storage.Layout, storedPath string, img image.Image, p Profile) error {
	w, h := p.TargetSize(img.Bounds().Dx(), img.Bounds().Dy())

	out := img
	if w < img.Bounds().Dx() || h < img.Bounds().Dy() {
		out = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	relDst := storage.SiblingPath(storedPath, storage.DerivativeName(p.Prefix, storedPath))
	absDst, err := layout.Resolve(relDst)
	if err != nil {
		return err
	}

	if err := imaging.Save(out, absDst, imaging.JPEGQuality(p.Quality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", absDst, err)
	}
	logging.Debug("Derivative written: %s (%dx%d, q%d)", relDst, w, h, p.Quality)
	return nil
}

// RotateLeft rewrites the original image rotated 90 degrees counter-
// clockwise, using a temporary sibling and an atomic rename so a crash
// never leaves a half-written original.
func RotateLeft(layout *storage.Layout, storedPath string) error {
	abs, err := layout.Resolve(storedPath)
	if err != nil {
		return err
	}

	img, err := imaging.Open(abs)
	if err != nil {
		return fmt.Errorf("failed to open %s for rotation: %w", storedPath, err)
	}

	rotated := imaging.Rotate90(img)

	tmp := storage.TempPath(abs)
	if err := imaging.Save(rotated, tmp, imaging.JPEGQuality(95)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save rotated image: %w", err)
	}
	if err := storage.ReplaceFile(tmp, abs); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ImageDimensions returns the pixel dimensions of an image file without
// fully decoding it.
func ImageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read dimensions of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
