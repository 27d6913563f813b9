// Package model holds the records persisted by the store.
package model

import (
	"time"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// FileType is the format of an ingested document.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypeTXT  FileType = "txt"
)

// Document is a file a user uploaded into a project.
type Document struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"user_id"`
	Filename   string    `json:"filename"`
	FileType   FileType  `json:"file_type"`
	SizeBytes  int64     `json:"size_bytes"`
	Checksum   string    `json:"checksum"`
	PagesCount int       `json:"pages_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentPage is one searchable chunk of a document. Number is the
// 1-based chunk index; Page or Sheet/Row carry the citation anchor.
type DocumentPage struct {
	DocumentID string `json:"document_id"`
	Number     int    `json:"number"`
	Page       *int   `json:"page,omitempty"`
	Sheet      string `json:"sheet,omitempty"`
	Row        *int   `json:"row,omitempty"`
	Content    string `json:"content"`
}

// Location converts the chunk anchor into a citation location.
func (p DocumentPage) Location() evidence.Location {
	switch {
	case p.Row != nil:
		return evidence.RowLocation(p.Sheet, *p.Row)
	case p.Page != nil:
		return evidence.PageLocation(*p.Page)
	}
	return evidence.Location{Type: evidence.LocationDocument}
}

// DocumentHit is one full-text search match. Rank lies in [0,1].
type DocumentHit struct {
	Document Document     `json:"document"`
	Page     DocumentPage `json:"page"`
	Rank     float64      `json:"rank"`
	Snippet  string       `json:"snippet"`
}
