package database

import (
	"time"

	"gallery-server/internal/mediatypes"
)

// Asset is a stored media file and its processing state.
type Asset struct {
	ID           int64               `json:"id"`
	AlbumID      int64               `json:"albumId"`
	Type         mediatypes.FileType `json:"type"`
	OriginalName string              `json:"originalName"`
	StoredPath   string              `json:"-"`
	MimeType     string              `json:"mimeType"`
	Size         int64               `json:"size"`
	Checksum     string              `json:"-"`

	// ContentID is the client's stable identifier for the source media,
	// e.g. a phone's photo-library asset ID. Empty when not supplied.
	ContentID string `json:"contentId,omitempty"`

	// Display-space dimensions; EXIF orientation is already folded in.
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`

	// Orientation is the EXIF tag of the original (1-8).
	Orientation int `json:"-"`
	// Rotation is the accumulated user rotation in degrees (0/90/180/270).
	Rotation int `json:"rotation"`

	// ContentGeneration increments whenever the pixel content changes, which
	// rotates the public token and busts client caches.
	ContentGeneration int64  `json:"-"`
	PublicToken       string `json:"publicToken"`

	DisplayOrder     int  `json:"displayOrder"`
	DerivativesReady bool `json:"derivativesReady"`
	WebVideoReady    bool `json:"webVideoReady"`

	TakenAt   *time.Time `json:"takenAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"-"`
}

// Recording is a voice recording attached to an album slideshow.
type Recording struct {
	ID          int64     `json:"id"`
	AlbumID     int64     `json:"albumId"`
	StoredPath  string    `json:"-"`
	MimeType    string    `json:"mimeType"`
	Size        int64     `json:"size"`
	PublicToken string    `json:"publicToken"`
	CreatedAt   time.Time `json:"createdAt"`
}
