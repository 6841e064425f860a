package media

import (
	"image"

	"github.com/disintegration/imaging"
)

// EXIF orientation values 1-8. Anything outside that range is treated as 1
// (no transform).
const (
	OrientationNormal      = 1
	OrientationFlipH       = 2
	OrientationRotate180   = 3
	OrientationFlipV       = 4
	OrientationTranspose   = 5
	OrientationRotate90CW  = 6
	OrientationTransverse  = 7
	OrientationRotate270CW = 8
)

// ApplyOrientation maps a decoded image into display orientation according
// to its EXIF orientation tag. Decoders that already honor the tag (libvips
// with auto-rotation) must not be combined with this.
func ApplyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate90CW:
		// Tag 6 needs a 90 CW turn; imaging rotates counter-clockwise.
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate270CW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// OrientationSwapsDimensions reports whether the orientation tag exchanges
// width and height in display space (values 5-8).
func OrientationSwapsDimensions(orientation int) bool {
	return orientation >= OrientationTranspose && orientation <= OrientationRotate270CW
}

// DisplayDimensions converts stored pixel dimensions to display dimensions
// for the given orientation.
func DisplayDimensions(width, height, orientation int) (int, int) {
	if OrientationSwapsDimensions(orientation) {
		return height, width
	}
	return width, height
}
