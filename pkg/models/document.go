package models

import "time"

// Document is a fetched source document. ID is the sha256 of Data, so the
// same bytes fetched from two places share cache entries.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"` // URL or path it was fetched from
	Path      string    `json:"path"`   // local copy
	MIMEType  string    `json:"mime_type"`
	Data      []byte    `json:"-"`
	Text      string    `json:"-"` // plain text extracted from Data
	FetchedAt time.Time `json:"fetched_at"`
}
