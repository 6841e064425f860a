package media

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"gallery-server/internal/logging"
)

// ExifMeta holds the subset of EXIF data the gallery cares about.
type ExifMeta struct {
	// Orientation is the EXIF orientation tag (1-8), 1 when absent.
	Orientation int
	// TakenAt is DateTimeOriginal, nil when absent or unparseable.
	TakenAt *time.Time
}

// ReadExif extracts orientation and capture time from an image file.
// Missing or corrupt EXIF data is not an error; defaults are returned.
func ReadExif(path string) *ExifMeta {
	meta := &ExifMeta{Orientation: OrientationNormal}

	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		logging.Debug("No EXIF data in %s: %v", path, err)
		return meta
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			meta.Orientation = v
		}
	}

	if t, err := x.DateTime(); err == nil {
		meta.TakenAt = &t
	}

	return meta
}
