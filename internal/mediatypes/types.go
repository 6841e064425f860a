package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType classifies an uploaded media file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeAudio represents an audio file.
	FileTypeAudio FileType = "audio"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are accepted image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are accepted video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
}

// AudioExtensions maps file extensions to whether they are accepted audio formats.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
	".wav":  true,
	".webm": true,
}

// HeicExtensions maps extensions that require conversion before browsers can
// display them.
var HeicExtensions = map[string]bool{
	".heic": true,
	".heif": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",

	// Audio
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// mimeToType maps declared MIME types to file types. The declared content
// type is trusted over the extension when both are present.
var mimeToType = map[string]FileType{
	"image/jpeg":        FileTypeImage,
	"image/jpg":         FileTypeImage,
	"image/png":         FileTypeImage,
	"image/gif":         FileTypeImage,
	"image/bmp":         FileTypeImage,
	"image/webp":        FileTypeImage,
	"image/tiff":        FileTypeImage,
	"image/heic":        FileTypeImage,
	"image/heif":        FileTypeImage,
	"video/mp4":         FileTypeVideo,
	"video/quicktime":   FileTypeVideo,
	"video/x-msvideo":   FileTypeVideo,
	"video/x-ms-wmv":    FileTypeVideo,
	"video/x-flv":       FileTypeVideo,
	"video/x-matroska":  FileTypeVideo,
	"video/webm":        FileTypeVideo,
	"video/x-m4v":       FileTypeVideo,
	"audio/mpeg":        FileTypeAudio,
	"audio/mp4":         FileTypeAudio,
	"audio/aac":         FileTypeAudio,
	"audio/ogg":         FileTypeAudio,
	"audio/opus":        FileTypeAudio,
	"audio/flac":        FileTypeAudio,
	"audio/wav":         FileTypeAudio,
	"audio/webm":        FileTypeAudio,
	"audio/webm;codecs=opus": FileTypeAudio,
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".jpg").
// Returns FileTypeOther if the extension is not recognized.
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	if AudioExtensions[ext] {
		return FileTypeAudio
	}
	return FileTypeOther
}

// TypeFromMime classifies a declared MIME type, falling back to the file
// extension when the MIME type is missing or unrecognized.
func TypeFromMime(mimeType, filename string) FileType {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		if t, ok := mimeToType[mt]; ok {
			return t
		}
		mt = strings.TrimSpace(mt[:i])
	}
	if t, ok := mimeToType[mt]; ok {
		return t
	}
	return GetFileType(Ext(filename))
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Ext returns the lowercased extension of a filename, including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsMediaFile returns true if the extension represents a supported media file.
func IsMediaFile(ext string) bool {
	return GetFileType(ext) != FileTypeOther
}

// IsHeic returns true if the filename has a HEIC/HEIF extension.
func IsHeic(filename string) bool {
	return HeicExtensions[Ext(filename)]
}
