// Package mediatypes provides shared type definitions and utilities for media file
// handling across the gallery server.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # File Types
//
// The package defines a FileType enum for categorizing media files:
//
//	mediatypes.FileTypeImage // Supported image formats (jpg, png, heic, etc.)
//	mediatypes.FileTypeVideo // Supported video formats (mp4, mkv, avi, etc.)
//	mediatypes.FileTypeAudio // Supported audio formats (mp3, ogg, m4a, etc.)
//	mediatypes.FileTypeOther // Unrecognized or unsupported files
//
// # Classification
//
// Uploads arrive with a declared MIME type that is not always trustworthy, so
// TypeFromMime classifies by MIME first and falls back to the file extension:
//
//	fileType := mediatypes.TypeFromMime(contentType, filename)
//
//	switch fileType {
//	case mediatypes.FileTypeImage:
//	    // Handle image
//	case mediatypes.FileTypeVideo:
//	    // Handle video
//	}
//
// # MIME Types
//
// Use GetMimeType to get the appropriate MIME type for HTTP responses:
//
//	mimeType := mediatypes.GetMimeType(mediatypes.Ext(filename)) // e.g., "image/jpeg"
//
// # Supported Formats
//
// The extension maps (ImageExtensions, VideoExtensions, AudioExtensions,
// HeicExtensions) can be used directly for format validation or iteration:
//
//	if mediatypes.ImageExtensions[ext] {
//	    // File is a supported image
//	}
//
// HEIC/HEIF images are classified as images but need external conversion before
// browsers can display them; IsHeic identifies them.
package mediatypes
