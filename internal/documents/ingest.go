package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

// ErrTooLarge rejects a file above the configured size limit.
var ErrTooLarge = eris.New("documents: file exceeds size limit")

// ErrEmpty rejects a file that produced no searchable text.
var ErrEmpty = eris.New("documents: no text extracted")

// DocumentStore is the slice of the store the ingestor needs.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *model.Document, pages []model.DocumentPage) error
	ListDocuments(ctx context.Context, projectID string) ([]model.Document, error)
}

// Ingestor extracts uploaded files and saves them with their chunks.
type Ingestor struct {
	store     DocumentStore
	extractor *Extractor
	maxBytes  int64
}

// NewIngestor creates an Ingestor. maxBytes <= 0 disables the size check.
func NewIngestor(st DocumentStore, ext *Extractor, maxBytes int64) *Ingestor {
	return &Ingestor{store: st, extractor: ext, maxBytes: maxBytes}
}

// Upload describes one file to ingest. Filename defaults to the base name
// of Path.
type Upload struct {
	ProjectID string
	UserID    string
	Path      string
	Filename  string
}

// Ingest extracts and stores the file. Re-uploading identical content to
// the same project returns the existing document.
func (in *Ingestor) Ingest(ctx context.Context, up Upload) (*model.Document, error) {
	if up.ProjectID == "" {
		return nil, eris.New("documents: project id is required")
	}
	name := up.Filename
	if name == "" {
		name = filepath.Base(up.Path)
	}
	ft, err := DetectType(name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(up.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "documents: stat %s", up.Path)
	}
	if in.maxBytes > 0 && info.Size() > in.maxBytes {
		return nil, eris.Wrapf(ErrTooLarge, "documents: %s is %d bytes, limit %d", name, info.Size(), in.maxBytes)
	}

	sum, err := checksum(up.Path)
	if err != nil {
		return nil, err
	}
	existing, err := in.store.ListDocuments(ctx, up.ProjectID)
	if err != nil {
		return nil, eris.Wrap(err, "documents: list existing")
	}
	for i := range existing {
		if existing[i].Checksum == sum {
			zap.L().Info("document already ingested",
				zap.String("project_id", up.ProjectID),
				zap.String("document_id", existing[i].ID),
			)
			return &existing[i], nil
		}
	}

	pages, err := in.extractor.Extract(ctx, ft, up.Path, name)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, eris.Wrapf(ErrEmpty, "documents: %s", name)
	}

	doc := &model.Document{
		ID:        uuid.New().String(),
		ProjectID: up.ProjectID,
		UserID:    up.UserID,
		Filename:  name,
		FileType:  ft,
		SizeBytes: info.Size(),
		Checksum:  sum,
	}
	for i := range pages {
		pages[i].DocumentID = doc.ID
	}
	if err := in.store.SaveDocument(ctx, doc, pages); err != nil {
		return nil, eris.Wrapf(err, "documents: save %s", name)
	}
	zap.L().Info("document ingested",
		zap.String("project_id", doc.ProjectID),
		zap.String("document_id", doc.ID),
		zap.String("file_type", string(ft)),
		zap.Int("chunks", len(pages)),
	)
	return doc, nil
}

// IngestReader spools r to a temporary file and ingests it under filename.
// The spool is bounded by the size limit.
func (in *Ingestor) IngestReader(ctx context.Context, projectID, userID, filename string, r io.Reader) (*model.Document, error) {
	if _, err := DetectType(filename); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp("", "evidence-upload-*"+filepath.Ext(filename))
	if err != nil {
		return nil, eris.Wrap(err, "documents: create spool file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	src := r
	if in.maxBytes > 0 {
		src = io.LimitReader(r, in.maxBytes+1)
	}
	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if copyErr != nil {
		return nil, eris.Wrap(copyErr, "documents: spool upload")
	}
	if closeErr != nil {
		return nil, eris.Wrap(closeErr, "documents: close spool file")
	}
	return in.Ingest(ctx, Upload{ProjectID: projectID, UserID: userID, Path: tmp.Name(), Filename: filepath.Base(filename)})
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "documents: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "documents: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
