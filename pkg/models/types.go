package models

import "time"

// Alt text status of a media image
const (
	AltStatusPending   = "pending"
	AltStatusGenerated = "generated"
	AltStatusFailed    = "failed"
)

// MediaImage is one image of the media library
type MediaImage struct {
	ID          int64
	ObjectKey   string
	Title       string
	MimeType    string
	Size        int64
	ParentID    int64
	AltText     string
	AltStatus   string
	ProcessedAt *time.Time
	LastRunID   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Attached reports whether the image belongs to a post
func (m MediaImage) Attached() bool {
	return m.ParentID != 0
}

// HasAltText reports whether the image carries non-empty alt text
func (m MediaImage) HasAltText() bool {
	return m.AltText != ""
}

// Run statuses shared by the bulk controller and the server registry
const (
	RunStatusIdle      = "idle"
	RunStatusRunning   = "running"
	RunStatusCancelled = "cancelled"
	RunStatusCompleted = "completed"
	RunStatusError     = "error"
)

// IsTerminal reports whether status ends a run
func IsTerminal(status string) bool {
	switch status {
	case RunStatusCancelled, RunStatusCompleted, RunStatusError:
		return true
	}
	return false
}

// RunRecord is the server-side bookkeeping of a bulk run
type RunRecord struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Total     int64             `json:"total"`
	Processed int64             `json:"processed"`
	Failed    int64             `json:"failed"`
	Options   ProcessingOptions `json:"options"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
