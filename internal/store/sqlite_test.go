package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func intPtr(v int) *int { return &v }

func seedDocument(t *testing.T, st Store, project, name string, pages ...string) *model.Document {
	t.Helper()
	doc := &model.Document{ProjectID: project, UserID: "u1", Filename: name, FileType: model.FileTypePDF}
	chunks := make([]model.DocumentPage, len(pages))
	for i, c := range pages {
		chunks[i] = model.DocumentPage{Number: i + 1, Page: intPtr(i + 1), Content: c}
	}
	require.NoError(t, st.SaveDocument(context.Background(), doc, chunks))
	return doc
}

func TestSQLite_FileBacked(t *testing.T) {
	st, err := NewSQLite(filepath.Join(t.TempDir(), "evidence.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()), "migrate is idempotent")
}

// --- Documents ---

func TestSQLite_Documents_CRUD(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := seedDocument(t, st, "p1", "plan.pdf", "page one", "page two")
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 2, doc.PagesCount)

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan.pdf", got.Filename)
	assert.Equal(t, model.FileTypePDF, got.FileType)
	assert.Equal(t, 2, got.PagesCount)

	seedDocument(t, st, "p2", "other.pdf", "x")
	docs, err := st.ListDocuments(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	require.NoError(t, st.DeleteDocument(ctx, doc.ID))
	_, err = st.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.DeleteDocument(ctx, doc.ID), ErrNotFound)

	hits, err := st.SearchDocuments(ctx, "p1", "page", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "pages are removed with their document")
}

func TestSQLite_Documents_Resave(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := seedDocument(t, st, "p1", "plan.pdf", "alpha", "beta", "gamma")
	require.NoError(t, st.SaveDocument(ctx, doc, []model.DocumentPage{{Number: 1, Content: "delta"}}))

	hits, err := st.SearchDocuments(ctx, "p1", "gamma", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.PagesCount)
}

// --- Search ---

func TestSQLite_Search_RankAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	seedDocument(t, st, "p1", "market.pdf",
		"The total addressable market is $4.2B in 2025.",
		"Market growth is 12% year over year.",
		"Unrelated appendix.",
	)
	seedDocument(t, st, "p1", "sheet.xlsx", "addressable market estimate")
	seedDocument(t, st, "p2", "foreign.pdf", "addressable market elsewhere")

	hits, err := st.SearchDocuments(ctx, "p1", "addressable market", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "p1", h.Document.ProjectID)
		assert.GreaterOrEqual(t, h.Rank, 0.0)
		assert.LessOrEqual(t, h.Rank, 1.0)
		assert.Equal(t, 1.0, h.Rank)
		assert.NotEmpty(t, h.Snippet)
	}

	all, err := st.SearchDocuments(ctx, "p1", "addressable market", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0.5, all[2].Rank)
	assert.Equal(t, 2, *all[2].Page.Page)
}

func TestSQLite_Search_RowAnchors(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := &model.Document{ProjectID: "p1", Filename: "fin.xlsx", FileType: model.FileTypeXLSX}
	require.NoError(t, st.SaveDocument(ctx, doc, []model.DocumentPage{
		{Number: 1, Sheet: "Revenue", Row: intPtr(4), Content: "Q1 | revenue | 120000"},
	}))

	hits, err := st.SearchDocuments(ctx, "p1", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Nil(t, hits[0].Page.Page)
	assert.Equal(t, 4, *hits[0].Page.Row)
	assert.Equal(t, evidence.LocationSpreadsheet, hits[0].Page.Location().Type)
}

func TestSQLite_Search_EmptyQuery(t *testing.T) {
	st := newTestSQLiteStore(t)
	hits, err := st.SearchDocuments(context.Background(), "p1", "  %% ", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"tam", "for", "saas", "2025"}, searchTerms("TAM for SaaS, 2025 saas a"))
	assert.Equal(t, `100\%\_x`, escapeLike("100%_x"))
}

func TestSnippetAround(t *testing.T) {
	assert.Equal(t, "short", snippetAround("  short ", 0, 50))

	long := "aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd eeeeeeeeee"
	s := snippetAround(long, 33, 20)
	assert.Contains(t, s, "dddd")
	assert.True(t, len(s) <= 26)
}

// --- Policies ---

func TestSQLite_SourcePolicy(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	p, err := st.GetSourcePolicy(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, p)

	policy := &evidence.SourcePolicy{
		ProjectID: "p1", UserID: "u1", EvidenceMode: evidence.ModeStrict,
		Tier1Enabled: true, BlockedDomains: []string{"spam.com"}, MinReliabilityScore: 40, RequireHTTPS: true,
	}
	require.NoError(t, st.SaveSourcePolicy(ctx, policy))
	assert.False(t, policy.CreatedAt.IsZero())

	policy.Tier4Enabled = true
	require.NoError(t, st.SaveSourcePolicy(ctx, policy))

	got, err := st.GetSourcePolicy(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, evidence.ModeStrict, got.EvidenceMode)
	assert.True(t, got.Tier4Enabled)
	assert.Equal(t, []string{"spam.com"}, got.BlockedDomains)
}

// --- Generation logs ---

func TestSQLite_GenerationLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	complete := &model.GenerationLog{
		ProjectID: "p1", UserID: "u1", FunctionName: "market-research", Mode: evidence.ModeBalanced,
		Outcome: model.OutcomeComplete, DurationMS: 1200,
		Result: &evidence.GenerationResult{
			GenerationID: "g1", FunctionName: "market-research", SourcesFound: 3,
			Claims:         []evidence.ClaimWithEvidence{{ClaimID: "c1", Status: evidence.ClaimSupported}},
			EvidenceStatus: evidence.StatusEvidenceBacked, CoveragePercentage: 100,
		},
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, st.LogGeneration(ctx, complete))
	assert.NotEmpty(t, complete.ID)
	assert.Equal(t, 100, complete.Coverage)
	assert.Equal(t, 1, complete.ClaimsCount)

	blocked := &model.GenerationLog{
		ProjectID: "p1", FunctionName: "financial-projections", Mode: evidence.ModeStrict,
		Outcome: model.OutcomeBlocked, BlockReason: evidence.ReasonInsufficientSources,
	}
	require.NoError(t, st.LogGeneration(ctx, blocked))

	got, err := st.GetGeneration(ctx, complete.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeComplete, got.Outcome)
	assert.Equal(t, evidence.StatusEvidenceBacked, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "g1", got.Result.GenerationID)

	b, err := st.GetGeneration(ctx, blocked.ID)
	require.NoError(t, err)
	assert.Nil(t, b.Result)
	assert.Equal(t, evidence.ReasonInsufficientSources, b.BlockReason)

	_, err = st.GetGeneration(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := st.ListGenerations(ctx, GenerationFilter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, blocked.ID, all[0].ID, "newest first")

	onlyBlocked, err := st.ListGenerations(ctx, GenerationFilter{Outcome: model.OutcomeBlocked})
	require.NoError(t, err)
	require.Len(t, onlyBlocked, 1)

	limited, err := st.ListGenerations(ctx, GenerationFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, complete.ID, limited[0].ID)
}
