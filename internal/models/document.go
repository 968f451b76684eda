package models

import "time"

// Document is a file selected for question extraction, held in memory until
// it has been sent to the collaborator service.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	Pages       int       `json:"pages,omitempty"` // 0 when unknown or not a PDF
	LoadedAt    time.Time `json:"loadedAt"`
	Data        []byte    `json:"-"`
}
