package model

import "time"

// Provenance identifies the channel an upload arrived through.
type Provenance string

const (
	ProvenanceWeb     Provenance = "web"
	ProvenanceAPI     Provenance = "api"
	ProvenanceBot     Provenance = "bot"
	ProvenanceRescued Provenance = "rescued"
)

// Valid reports whether p is one of the known provenance channels.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceWeb, ProvenanceAPI, ProvenanceBot, ProvenanceRescued:
		return true
	}
	return false
}

// Upload represents a durably stored file owned by an account.
// The record references the stored object by key; it does not own the bytes.
// This is a pure domain model with no database-specific dependencies or tags.
type Upload struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Filename    string     `json:"filename"`
	StorageKey  string     `json:"storage_key"`
	Size        int64      `json:"size"`
	ContentType string     `json:"content_type"`
	Provenance  Provenance `json:"provenance"`
	OriginalURL string     `json:"original_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
