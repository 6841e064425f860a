package media

import "gallery-server/internal/storage"

// Profile describes one image derivative size.
type Profile struct {
	Name      string
	Prefix    string
	MaxWidth  int
	MaxHeight int
	// Quality is the JPEG quality (1-100) used when encoding this profile.
	Quality int
}

// The three image derivative profiles. Every stored image gets all three;
// derivatives are never upscaled beyond the original.
var (
	ProfileThumbnail = Profile{Name: "thumbnail", Prefix: storage.PrefixThumbnail, MaxWidth: 600, MaxHeight: 600, Quality: 60}
	ProfileMedium    = Profile{Name: "medium", Prefix: storage.PrefixMedium, MaxWidth: 1200, MaxHeight: 1200, Quality: 95}
	ProfileLarge     = Profile{Name: "large", Prefix: storage.PrefixLarge, MaxWidth: 2400, MaxHeight: 2400, Quality: 95}
)

// ImageProfiles lists all derivative profiles in generation order.
var ImageProfiles = []Profile{ProfileThumbnail, ProfileMedium, ProfileLarge}

// ScaleFor returns the scale factor that fits (width, height) inside the
// profile's bounding box, clamped to 1.0 so images are never enlarged.
func (p Profile) ScaleFor(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1.0
	}
	scale := 1.0
	if s := float64(p.MaxWidth) / float64(width); s < scale {
		scale = s
	}
	if s := float64(p.MaxHeight) / float64(height); s < scale {
		scale = s
	}
	return scale
}

// TargetSize returns the output dimensions for an input of (width, height),
// rounding down but never below one pixel.
func (p Profile) TargetSize(width, height int) (int, int) {
	scale := p.ScaleFor(width, height)
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
