package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/db"
	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	insertDocumentSQL = `INSERT INTO documents (id, project_id, user_id, filename, file_type, size_bytes, checksum, pages_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET filename = $4, file_type = $5, size_bytes = $6, checksum = $7, pages_count = $8`
	selectDocumentSQL = `SELECT id, project_id, user_id, filename, file_type, size_bytes, checksum, pages_count, created_at FROM documents`
	searchPagesSQL    = `SELECT d.id, d.project_id, d.user_id, d.filename, d.file_type, d.size_bytes, d.checksum, d.pages_count, d.created_at,
		        p.page_number, p.page, p.sheet, p.row_number, p.content,
		        ts_rank_cd(p.tsv, q, 32)::float8 AS rank,
		        ts_headline('english', p.content, q, 'MaxFragments=1, MaxWords=35, MinWords=10, StartSel=<<, StopSel=>>') AS snippet
		 FROM document_pages p
		 JOIN documents d ON d.id = p.document_id,
		      websearch_to_tsquery('english', $2) q
		 WHERE d.project_id = $1 AND p.tsv @@ q
		 ORDER BY rank DESC, d.created_at DESC, p.page_number ASC
		 LIMIT $3`
	insertGenerationSQL = `INSERT INTO generation_logs
		 (id, project_id, user_id, function_name, evidence_mode, outcome, evidence_status, block_reason,
		  coverage, sources_found, claims_count, duration_ms, error, result, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	selectGenerationSQL = `SELECT id, project_id, user_id, function_name, evidence_mode, outcome, evidence_status, block_reason,
		  coverage, sources_found, claims_count, duration_ms, error, result, created_at FROM generation_logs`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_document":   insertDocumentSQL,
	"get_document":      selectDocumentSQL + ` WHERE id = $1`,
	"search_pages":      searchPagesSQL,
	"get_policy":        `SELECT policy FROM source_policies WHERE project_id = $1`,
	"insert_generation": insertGenerationSQL,
	"get_generation":    selectGenerationSQL + ` WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	user_id     TEXT NOT NULL DEFAULT '',
	filename    TEXT NOT NULL,
	file_type   TEXT NOT NULL,
	size_bytes  BIGINT NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	pages_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id, created_at DESC);

CREATE TABLE IF NOT EXISTS document_pages (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	page_number INTEGER NOT NULL,
	page        INTEGER,
	sheet       TEXT NOT NULL DEFAULT '',
	row_number  INTEGER,
	content     TEXT NOT NULL,
	tsv         TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	PRIMARY KEY (document_id, page_number)
);

CREATE INDEX IF NOT EXISTS idx_document_pages_tsv ON document_pages USING GIN (tsv);

CREATE TABLE IF NOT EXISTS source_policies (
	project_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	policy     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	result          JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_generation_logs_project ON generation_logs(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_generation_logs_created ON generation_logs(created_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var pageColumns = []string{"document_id", "page_number", "page", "sheet", "row_number", "content"}

// SaveDocument inserts or replaces a document and its pages. Pages are
// merged with a staged upsert; pages past the new count are removed.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc *model.Document, pages []model.DocumentPage) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.PagesCount = len(pages)

	if _, err := s.pool.Exec(ctx, insertDocumentSQL,
		doc.ID, doc.ProjectID, doc.UserID, doc.Filename, string(doc.FileType),
		doc.SizeBytes, doc.Checksum, doc.PagesCount, doc.CreatedAt,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert document %s", doc.ID)
	}

	rows := make([][]any, len(pages))
	for i, p := range pages {
		rows[i] = []any{doc.ID, p.Number, p.Page, p.Sheet, p.Row, p.Content}
	}
	if _, err := db.Upsert(ctx, s.pool, db.UpsertSpec{
		Table:        "document_pages",
		Columns:      pageColumns,
		ConflictKeys: []string{"document_id", "page_number"},
	}, rows); err != nil {
		return eris.Wrapf(err, "postgres: save pages for %s", doc.ID)
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM document_pages WHERE document_id = $1 AND page_number > $2`,
		doc.ID, len(pages),
	)
	return eris.Wrapf(err, "postgres: trim pages for %s", doc.ID)
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, selectDocumentSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "document %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, projectID string) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx, selectDocumentSQL+` WHERE project_id = $1 ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

// SearchDocuments runs a websearch-style full-text query over a project's
// pages. ts_rank_cd normalization 32 maps ranks into [0,1).
func (s *PostgresStore) SearchDocuments(ctx context.Context, projectID, query string, limit int) ([]model.DocumentHit, error) {
	limit = searchLimit(limit)
	rows, err := s.pool.Query(ctx, searchPagesSQL, projectID, query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search documents")
	}
	defer rows.Close()

	var hits []model.DocumentHit
	for rows.Next() {
		var h model.DocumentHit
		var fileType string
		if err := rows.Scan(
			&h.Document.ID, &h.Document.ProjectID, &h.Document.UserID, &h.Document.Filename, &fileType,
			&h.Document.SizeBytes, &h.Document.Checksum, &h.Document.PagesCount, &h.Document.CreatedAt,
			&h.Page.Number, &h.Page.Page, &h.Page.Sheet, &h.Page.Row, &h.Page.Content,
			&h.Rank, &h.Snippet,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan search hit")
		}
		h.Document.FileType = model.FileType(fileType)
		h.Page.DocumentID = h.Document.ID
		h.Rank = clampRank(h.Rank)
		hits = append(hits, h)
		if len(hits) == limit {
			break
		}
	}
	return hits, eris.Wrap(rows.Err(), "postgres: search documents iterate")
}

func (s *PostgresStore) GetSourcePolicy(ctx context.Context, projectID string) (*evidence.SourcePolicy, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT policy FROM source_policies WHERE project_id = $1`, projectID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get policy %s", projectID)
	}
	var p evidence.SourcePolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal policy")
	}
	return &p, nil
}

func (s *PostgresStore) SaveSourcePolicy(ctx context.Context, p *evidence.SourcePolicy) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	raw, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal policy")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO source_policies (project_id, user_id, policy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (project_id) DO UPDATE SET user_id = $2, policy = $3, updated_at = $5`,
		p.ProjectID, p.UserID, raw, p.CreatedAt, p.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: save policy")
}

func (s *PostgresStore) LogGeneration(ctx context.Context, entry *model.GenerationLog) error {
	fillLog(entry)
	var resultJSON []byte
	if entry.Result != nil {
		var err error
		if resultJSON, err = json.Marshal(entry.Result); err != nil {
			return eris.Wrap(err, "postgres: marshal result")
		}
	}
	_, err := s.pool.Exec(ctx, insertGenerationSQL,
		entry.ID, entry.ProjectID, entry.UserID, entry.FunctionName, string(entry.Mode),
		string(entry.Outcome), string(entry.Status), string(entry.BlockReason),
		entry.Coverage, entry.SourcesFound, entry.ClaimsCount, entry.DurationMS, entry.Error,
		resultJSON, entry.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: log generation %s", entry.ID)
}

func (s *PostgresStore) GetGeneration(ctx context.Context, id string) (*model.GenerationLog, error) {
	l, err := scanGeneration(s.pool.QueryRow(ctx, selectGenerationSQL+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "generation %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get generation %s", id)
	}
	return l, nil
}

func (s *PostgresStore) ListGenerations(ctx context.Context, filter GenerationFilter) ([]model.GenerationLog, error) {
	query := selectGenerationSQL + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ProjectID != "" {
		query += fmt.Sprintf(` AND project_id = $%d`, argIdx)
		args = append(args, filter.ProjectID)
		argIdx++
	}
	if filter.FunctionName != "" {
		query += fmt.Sprintf(` AND function_name = $%d`, argIdx)
		args = append(args, filter.FunctionName)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.Since)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list generations")
	}
	defer rows.Close()

	var logs []model.GenerationLog
	for rows.Next() {
		l, err := scanGeneration(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan generation")
		}
		logs = append(logs, *l)
	}
	return logs, eris.Wrap(rows.Err(), "postgres: list generations iterate")
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	var fileType string
	if err := row.Scan(&d.ID, &d.ProjectID, &d.UserID, &d.Filename, &fileType,
		&d.SizeBytes, &d.Checksum, &d.PagesCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.FileType = model.FileType(fileType)
	return &d, nil
}

func scanGeneration(row pgx.Row) (*model.GenerationLog, error) {
	var l model.GenerationLog
	var mode, outcome, status, reason string
	var resultJSON []byte
	if err := row.Scan(&l.ID, &l.ProjectID, &l.UserID, &l.FunctionName, &mode, &outcome, &status, &reason,
		&l.Coverage, &l.SourcesFound, &l.ClaimsCount, &l.DurationMS, &l.Error, &resultJSON, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Mode = evidence.EvidenceMode(mode)
	l.Outcome = model.Outcome(outcome)
	l.Status = evidence.EvidenceStatus(status)
	l.BlockReason = evidence.ExitReason(reason)
	if len(resultJSON) > 0 {
		l.Result = &evidence.GenerationResult{}
		if err := json.Unmarshal(resultJSON, l.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal result")
		}
	}
	return &l, nil
}

func fillLog(entry *model.GenerationLog) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if r := entry.Result; r != nil {
		entry.Status = r.EvidenceStatus
		entry.Coverage = r.CoveragePercentage
		entry.SourcesFound = r.SourcesFound
		entry.ClaimsCount = len(r.Claims)
	}
}
