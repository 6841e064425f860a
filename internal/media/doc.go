// Package media implements the processing side of the gallery: checksums,
// EXIF handling, derivative generation for images, and the ffmpeg-backed
// video and audio pipelines.
package media
