package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var documentCols = []string{"id", "project_id", "user_id", "filename", "file_type", "size_bytes", "checksum", "pages_count", "created_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS documents`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	doc := &model.Document{ID: "d1", ProjectID: "p1", Filename: "plan.pdf", FileType: model.FileTypePDF}
	pages := []model.DocumentPage{
		{Number: 1, Page: intPtr(1), Content: "first"},
		{Number: 2, Page: intPtr(2), Content: "second"},
	}

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("d1", "p1", "", "plan.pdf", "pdf", int64(0), "", 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_document_pages"}, pageColumns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "document_pages"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM document_pages WHERE document_id = \$1 AND page_number > \$2`).
		WithArgs("d1", 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.SaveDocument(context.Background(), doc, pages))
	assert.Equal(t, 2, doc.PagesCount)
	assert.False(t, doc.CreatedAt.IsZero())
}

func TestPostgresStore_GetDocument_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, project_id, user_id, filename, .* FROM documents WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDocuments(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM documents WHERE project_id = \$1 ORDER BY created_at DESC`).
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(documentCols).
			AddRow("d2", "p1", "u1", "b.csv", "csv", int64(10), "abc", 4, now).
			AddRow("d1", "p1", "u1", "a.pdf", "pdf", int64(20), "def", 2, now.Add(-time.Hour)))

	docs, err := s.ListDocuments(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, model.FileTypeCSV, docs[0].FileType)
	assert.Equal(t, 2, docs[1].PagesCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteDocument(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).WithArgs("d1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1`).WithArgs("d1").WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.DeleteDocument(context.Background(), "d1"))
	assert.ErrorIs(t, s.DeleteDocument(context.Background(), "d1"), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SearchDocuments(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	cols := append(append([]string{}, documentCols...), "page_number", "page", "sheet", "row_number", "content", "rank", "snippet")

	mock.ExpectQuery(`ts_rank_cd\(p.tsv, q, 32\)`).
		WithArgs("p1", "market size", 2).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("d1", "p1", "u1", "a.pdf", "pdf", int64(1), "c", 3, now, 1, intPtr(1), "", (*int)(nil), "market size text", 0.8, "<<market>> <<size>>").
			AddRow("d1", "p1", "u1", "a.pdf", "pdf", int64(1), "c", 3, now, 2, intPtr(2), "", (*int)(nil), "market", 1.7, "<<market>>").
			AddRow("d1", "p1", "u1", "a.pdf", "pdf", int64(1), "c", 3, now, 3, intPtr(3), "", (*int)(nil), "extra", 0.1, "extra"))

	hits, err := s.SearchDocuments(context.Background(), "p1", "market size", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2, "limit is enforced even if the database returns more")
	assert.Equal(t, 0.8, hits[0].Rank)
	assert.Equal(t, 1.0, hits[1].Rank, "rank is clamped to [0,1]")
	assert.Equal(t, "d1", hits[0].Page.DocumentID)
	assert.Equal(t, 1, *hits[0].Page.Page)
}

func TestPostgresStore_SearchDocuments_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`websearch_to_tsquery`).
		WithArgs("p1", "q", DefaultSearchLimit).
		WillReturnError(fmt.Errorf("boom"))

	_, err := s.SearchDocuments(context.Background(), "p1", "q", 0)
	assert.ErrorContains(t, err, "postgres: search documents")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SourcePolicy(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT policy FROM source_policies`).WithArgs("p0").WillReturnError(pgx.ErrNoRows)
	p, err := s.GetSourcePolicy(ctx, "p0")
	require.NoError(t, err)
	assert.Nil(t, p)

	stored := evidence.SourcePolicy{ProjectID: "p1", EvidenceMode: evidence.ModeStrict, Tier2Enabled: true}
	raw, err := json.Marshal(stored)
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT policy FROM source_policies`).WithArgs("p1").
		WillReturnRows(pgxmock.NewRows([]string{"policy"}).AddRow(raw))
	p, err = s.GetSourcePolicy(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Tier2Enabled)

	mock.ExpectExec(`ON CONFLICT \(project_id\)`).
		WithArgs("p1", "u1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveSourcePolicy(ctx, &evidence.SourcePolicy{ProjectID: "p1", UserID: "u1"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogGeneration(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	entry := &model.GenerationLog{
		ID: "g1", ProjectID: "p1", FunctionName: "market-research", Mode: evidence.ModeBalanced,
		Outcome: model.OutcomeComplete,
		Result:  &evidence.GenerationResult{EvidenceStatus: evidence.StatusPartialEvidence, CoveragePercentage: 60, SourcesFound: 2},
	}
	mock.ExpectExec(`INSERT INTO generation_logs`).
		WithArgs("g1", "p1", "", "market-research", "balanced", "complete", "partial_evidence", "",
			60, 2, 0, int64(0), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.LogGeneration(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListGenerations_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Now().Add(-24 * time.Hour)
	cols := []string{"id", "project_id", "user_id", "function_name", "evidence_mode", "outcome", "evidence_status", "block_reason",
		"coverage", "sources_found", "claims_count", "duration_ms", "error", "result", "created_at"}

	mock.ExpectQuery(`AND project_id = \$1 AND outcome = \$2 AND created_at >= \$3 ORDER BY created_at DESC LIMIT \$4`).
		WithArgs("p1", "blocked", since, 100).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("g2", "p1", "u1", "financial-projections", "strict", "blocked", "", "no_tier_1_or_2",
				0, 1, 0, int64(900), "", []byte(nil), time.Now()))

	logs, err := s.ListGenerations(context.Background(), GenerationFilter{ProjectID: "p1", Outcome: model.OutcomeBlocked, Since: since})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, evidence.ReasonNoTier1Or2, logs[0].BlockReason)
	assert.Nil(t, logs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetGeneration_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM generation_logs WHERE id = \$1`).WithArgs("nope").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetGeneration(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
