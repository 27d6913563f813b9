package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Search scores
// pages by the share of query terms they contain.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// each pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL,
	file_type   TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	pages_count INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id, created_at);

CREATE TABLE IF NOT EXISTS document_pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	page        INTEGER,
	sheet       TEXT NOT NULL DEFAULT '',
	row_number  INTEGER,
	content     TEXT NOT NULL,
	PRIMARY KEY (document_id, page_number)
);

CREATE TABLE IF NOT EXISTS source_policies (
	project_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	policy     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS generation_logs (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	function_name   TEXT NOT NULL,
	evidence_mode   TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	evidence_status TEXT NOT NULL DEFAULT '',
	block_reason    TEXT NOT NULL DEFAULT '',
	coverage        INTEGER NOT NULL DEFAULT 0,
	sources_found   INTEGER NOT NULL DEFAULT 0,
	claims_count    INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	result          TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_generation_logs_project ON generation_logs(project_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *model.Document, pages []model.DocumentPage) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.PagesCount = len(pages)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, project_id, user_id, filename, file_type, size_bytes, checksum, pages_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET filename = excluded.filename, file_type = excluded.file_type,
		   size_bytes = excluded.size_bytes, checksum = excluded.checksum, pages_count = excluded.pages_count`,
		doc.ID, doc.ProjectID, doc.UserID, doc.Filename, string(doc.FileType),
		doc.SizeBytes, doc.Checksum, doc.PagesCount, doc.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert document %s", doc.ID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = ?`, doc.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear pages for %s", doc.ID)
	}
	for _, p := range pages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_pages (document_id, page_number, page, sheet, row_number, content) VALUES (?, ?, ?, ?, ?, ?)`,
			doc.ID, p.Number, p.Page, p.Sheet, p.Row, p.Content,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert page %d of %s", p.Number, doc.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit document")
}

const sqliteDocumentColumns = `id, project_id, user_id, filename, file_type, size_bytes, checksum, pages_count, created_at`

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanSQLiteDocument(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "document %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, projectID string) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE project_id = ? ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanSQLiteDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete document %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

// SearchDocuments matches pages containing any query term. A page's rank is
// the fraction of distinct terms it contains.
func (s *SQLiteStore) SearchDocuments(ctx context.Context, projectID, query string, limit int) ([]model.DocumentHit, error) {
	limit = searchLimit(limit)
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	where := make([]string, len(terms))
	args := []any{projectID}
	for i, t := range terms {
		where[i] = `lower(p.content) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(t)+"%")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.project_id, d.user_id, d.filename, d.file_type, d.size_bytes, d.checksum, d.pages_count, d.created_at,
		        p.page_number, p.page, p.sheet, p.row_number, p.content
		 FROM document_pages p JOIN documents d ON d.id = p.document_id
		 WHERE d.project_id = ? AND (`+strings.Join(where, " OR ")+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search documents")
	}
	defer rows.Close()

	var hits []model.DocumentHit
	for rows.Next() {
		var h model.DocumentHit
		var fileType string
		var page, row sql.NullInt64
		if err := rows.Scan(
			&h.Document.ID, &h.Document.ProjectID, &h.Document.UserID, &h.Document.Filename, &fileType,
			&h.Document.SizeBytes, &h.Document.Checksum, &h.Document.PagesCount, &h.Document.CreatedAt,
			&h.Page.Number, &page, &h.Page.Sheet, &row, &h.Page.Content,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan search hit")
		}
		h.Document.FileType = model.FileType(fileType)
		h.Page.DocumentID = h.Document.ID
		h.Page.Page = nullIntPtr(page)
		h.Page.Row = nullIntPtr(row)

		lower := strings.ToLower(h.Page.Content)
		matched := 0
		first := -1
		for _, t := range terms {
			if i := strings.Index(lower, t); i >= 0 {
				matched++
				if first < 0 || i < first {
					first = i
				}
			}
		}
		h.Rank = clampRank(float64(matched) / float64(len(terms)))
		h.Snippet = snippetAround(h.Page.Content, first, 240)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: search documents iterate")
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Rank != hits[j].Rank {
			return hits[i].Rank > hits[j].Rank
		}
		if !hits[i].Document.CreatedAt.Equal(hits[j].Document.CreatedAt) {
			return hits[i].Document.CreatedAt.After(hits[j].Document.CreatedAt)
		}
		return hits[i].Page.Number < hits[j].Page.Number
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *SQLiteStore) GetSourcePolicy(ctx context.Context, projectID string) (*evidence.SourcePolicy, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT policy FROM source_policies WHERE project_id = ?`, projectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get policy %s", projectID)
	}
	var p evidence.SourcePolicy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal policy")
	}
	return &p, nil
}

func (s *SQLiteStore) SaveSourcePolicy(ctx context.Context, p *evidence.SourcePolicy) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	raw, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal policy")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO source_policies (project_id, user_id, policy, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (project_id) DO UPDATE SET user_id = excluded.user_id, policy = excluded.policy, updated_at = excluded.updated_at`,
		p.ProjectID, p.UserID, string(raw), p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: save policy")
}

func (s *SQLiteStore) LogGeneration(ctx context.Context, entry *model.GenerationLog) error {
	fillLog(entry)
	var result sql.NullString
	if entry.Result != nil {
		raw, err := json.Marshal(entry.Result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal result")
		}
		result = sql.NullString{String: string(raw), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_logs
		 (id, project_id, user_id, function_name, evidence_mode, outcome, evidence_status, block_reason,
		  coverage, sources_found, claims_count, duration_ms, error, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ProjectID, entry.UserID, entry.FunctionName, string(entry.Mode),
		string(entry.Outcome), string(entry.Status), string(entry.BlockReason),
		entry.Coverage, entry.SourcesFound, entry.ClaimsCount, entry.DurationMS, entry.Error,
		result, entry.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: log generation %s", entry.ID)
}

const sqliteGenerationColumns = `id, project_id, user_id, function_name, evidence_mode, outcome, evidence_status, block_reason,
	coverage, sources_found, claims_count, duration_ms, error, result, created_at`

func (s *SQLiteStore) GetGeneration(ctx context.Context, id string) (*model.GenerationLog, error) {
	l, err := scanSQLiteGeneration(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteGenerationColumns+` FROM generation_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "generation %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get generation %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) ListGenerations(ctx context.Context, filter GenerationFilter) ([]model.GenerationLog, error) {
	query := `SELECT ` + sqliteGenerationColumns + ` FROM generation_logs WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.FunctionName != "" {
		query += ` AND function_name = ?`
		args = append(args, filter.FunctionName)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list generations")
	}
	defer rows.Close()

	var logs []model.GenerationLog
	for rows.Next() {
		l, err := scanSQLiteGeneration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan generation")
		}
		logs = append(logs, *l)
	}
	return logs, eris.Wrap(rows.Err(), "sqlite: list generations iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteDocument(row scannable) (*model.Document, error) {
	var d model.Document
	var fileType string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.UserID, &d.Filename, &fileType,
		&d.SizeBytes, &d.Checksum, &d.PagesCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.FileType = model.FileType(fileType)
	return &d, nil
}

func scanSQLiteGeneration(row scannable) (*model.GenerationLog, error) {
	var l model.GenerationLog
	var mode, outcome, status, reason string
	var result sql.NullString
	if err := row.Scan(&l.ID, &l.ProjectID, &l.UserID, &l.FunctionName, &mode, &outcome, &status, &reason,
		&l.Coverage, &l.SourcesFound, &l.ClaimsCount, &l.DurationMS, &l.Error, &result, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Mode = evidence.EvidenceMode(mode)
	l.Outcome = model.Outcome(outcome)
	l.Status = evidence.EvidenceStatus(status)
	l.BlockReason = evidence.ExitReason(reason)
	if result.Valid {
		l.Result = &evidence.GenerationResult{}
		if err := json.Unmarshal([]byte(result.String), l.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &l, nil
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// searchTerms lowercases query and splits it into distinct words.
func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// snippetAround returns up to width bytes of content centred near offset.
func snippetAround(content string, offset, width int) string {
	if len(content) <= width {
		return strings.TrimSpace(content)
	}
	start := 0
	if offset > width/4 {
		start = offset - width/4
	}
	end := start + width
	if end > len(content) {
		end = len(content)
		start = end - width
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}
	out := strings.TrimSpace(content[start:end])
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}
