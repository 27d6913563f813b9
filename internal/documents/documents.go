// Package documents turns uploaded files into searchable chunks that keep a
// citation anchor: a page for PDFs, a sheet and row for tabular files.
package documents

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/model"
)

// ErrUnsupportedType rejects a file whose extension has no extractor.
var ErrUnsupportedType = eris.New("documents: unsupported file type")

// DetectType maps a filename extension to a file type.
func DetectType(filename string) (model.FileType, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return model.FileTypePDF, nil
	case ".csv":
		return model.FileTypeCSV, nil
	case ".xlsx":
		return model.FileTypeXLSX, nil
	case ".txt", ".md":
		return model.FileTypeTXT, nil
	}
	return "", eris.Wrapf(ErrUnsupportedType, "documents: %s", filepath.Base(filename))
}

// Extractor converts a file on disk into numbered chunks.
type Extractor struct {
	pdf PDFExtractor
}

// NewExtractor creates an Extractor. pdf may be nil when PDFs are not
// accepted.
func NewExtractor(pdf PDFExtractor) *Extractor {
	return &Extractor{pdf: pdf}
}

// Extract reads path as fileType. name labels tabular chunks when the file
// has no sheet names of its own.
func (e *Extractor) Extract(ctx context.Context, fileType model.FileType, path, name string) ([]model.DocumentPage, error) {
	var (
		pages []model.DocumentPage
		err   error
	)
	switch fileType {
	case model.FileTypePDF:
		if e.pdf == nil {
			return nil, eris.Wrap(ErrUnsupportedType, "documents: no pdf extractor configured")
		}
		pages, err = extractPDF(ctx, e.pdf, path)
	case model.FileTypeCSV:
		pages, err = extractCSV(path, strings.TrimSuffix(name, filepath.Ext(name)))
	case model.FileTypeXLSX:
		pages, err = extractXLSX(path)
	case model.FileTypeTXT:
		pages, err = extractText(path)
	default:
		return nil, eris.Wrapf(ErrUnsupportedType, "documents: %q", fileType)
	}
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Number = i + 1
	}
	return pages, nil
}

func extractPDF(ctx context.Context, pdf PDFExtractor, path string) ([]model.DocumentPage, error) {
	texts, err := pdf.ExtractPages(ctx, path)
	if err != nil {
		return nil, err
	}
	var pages []model.DocumentPage
	for i, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		n := i + 1
		pages = append(pages, model.DocumentPage{Page: &n, Content: text})
	}
	return pages, nil
}
