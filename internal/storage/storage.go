// Package storage owns the on-disk layout of the media library: where
// originals, derivatives and recordings live, and how filenames are
// generated so concurrent uploads never collide.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// RecordingsDirName is the subdirectory of the upload root that holds
// slideshow voice recordings.
const RecordingsDirName = "recordings"

// Derivative filename prefixes. A derivative lives next to its original
// and is identified by prefix plus the original's base name.
const (
	PrefixThumbnail = "thumb_"
	PrefixMedium    = "medium_"
	PrefixLarge     = "large_"
	PrefixWeb       = "web_"
)

// Layout resolves logical file references to absolute paths under a single
// upload root, and rejects anything that would escape it.
type Layout struct {
	root string
}

// NewLayout creates a Layout rooted at uploadDir, creating the directory
// tree (including the recordings subdirectory) if needed.
func NewLayout(uploadDir string) (*Layout, error) {
	abs, err := filepath.Abs(uploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, RecordingsDirName), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return &Layout{root: abs}, nil
}

// Root returns the absolute upload root.
func (l *Layout) Root() string {
	return l.root
}

// Resolve converts a stored relative path to an absolute path under the
// upload root. Absolute inputs and paths that escape the root are rejected.
func (l *Layout) Resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("absolute path not allowed: %s", relPath)
	}
	abs := filepath.Join(l.root, filepath.FromSlash(relPath))
	abs = filepath.Clean(abs)
	if abs != l.root && !strings.HasPrefix(abs, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes upload directory: %s", relPath)
	}
	return abs, nil
}

// Relativize converts an absolute path under the upload root back to the
// slash-separated relative form stored in the database.
func (l *Layout) Relativize(absPath string) (string, error) {
	rel, err := filepath.Rel(l.root, absPath)
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", absPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside upload directory: %s", absPath)
	}
	return filepath.ToSlash(rel), nil
}

// RecordingsDir returns the absolute path of the recordings subdirectory.
func (l *Layout) RecordingsDir() string {
	return filepath.Join(l.root, RecordingsDirName)
}

// UniqueName builds a collision-free stored filename from a client-supplied
// original name: the sanitized base, a millisecond timestamp and a short
// random suffix, keeping the original extension.
func UniqueName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	base := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	base = slug.Make(base)
	if base == "" {
		base = "file"
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s%s", base, time.Now().UnixMilli(), suffix, ext)
}

// RecordingName builds a stored filename for a voice recording. Recordings
// never reuse the client name; they get a fresh UUID.
func RecordingName(ext string) string {
	if ext == "" {
		ext = ".webm"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return uuid.New().String() + strings.ToLower(ext)
}

// BaseName strips the directory and extension from a stored path.
func BaseName(storedPath string) string {
	name := filepath.Base(filepath.FromSlash(storedPath))
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// DerivativeName returns the filename of an image derivative for the given
// prefix. Image derivatives are always encoded as JPEG regardless of the
// original's format.
func DerivativeName(prefix, storedPath string) string {
	return prefix + BaseName(storedPath) + ".jpg"
}

// WebVideoName returns the filename of the browser-friendly MP4 rendition
// of a video.
func WebVideoName(storedPath string) string {
	return PrefixWeb + BaseName(storedPath) + ".mp4"
}

// OpusAudioName returns the filename an audio file takes after the Opus
// re-encode. Containers that can carry an Opus stream keep their name so
// the re-encode happens in place; everything else moves to Ogg.
func OpusAudioName(storedPath string) string {
	switch strings.ToLower(filepath.Ext(storedPath)) {
	case ".webm", ".ogg", ".opus":
		return filepath.Base(filepath.FromSlash(storedPath))
	}
	return BaseName(storedPath) + ".ogg"
}

// SiblingPath replaces the filename component of storedPath with name,
// keeping the directory. Paths use forward slashes.
func SiblingPath(storedPath, name string) string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(storedPath)))
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// ReplaceFile atomically swaps target with the file at tmpPath.
func ReplaceFile(tmpPath, target string) error {
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return nil
}

// TempPath returns the conventional temporary sibling of target used while
// re-encoding in place.
func TempPath(target string) string {
	ext := filepath.Ext(target)
	return strings.TrimSuffix(target, ext) + "_tmp" + ext
}
