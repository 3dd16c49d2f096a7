package models

import "time"

type Document struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"            validate:"required,max=255"`
	DocumentTypeID string    `json:"document_type_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (d *Document) AccessObjectID() string {
	return d.ID
}

// ErrorLogEntry is a sticky, domain-tagged error note attached to a document.
type ErrorLogEntry struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Domain     string    `json:"domain"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}
