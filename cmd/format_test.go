//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/monitoring"
)

func TestFormatLogsList(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	logs := []model.GenerationLog{
		{
			ID: "0f1e2d3c-aaaa-bbbb-cccc-000000000001", FunctionName: "market-research", Mode: evidence.ModeBalanced,
			Outcome: model.OutcomeComplete, Status: evidence.StatusPartialEvidence, Coverage: 60, SourcesFound: 4,
			DurationMS: 1520, CreatedAt: created,
		},
		{
			ID: "short", FunctionName: "financial-projections", Mode: evidence.ModeStrict,
			Outcome: model.OutcomeBlocked, BlockReason: evidence.ReasonInsufficientSources, CreatedAt: created,
		},
		{
			ID: "f3", FunctionName: "f", Mode: evidence.ModeBalanced, Outcome: model.OutcomeFailed,
			Error: "edge function returned 503 service unavailable", CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatLogsList(&buf, logs)
	out := buf.String()

	assert.Contains(t, out, "0f1e2d3c ")
	assert.NotContains(t, out, "0f1e2d3c-aaaa")
	assert.Contains(t, out, "partial_evidence")
	assert.Contains(t, out, "insufficient_sources")
	assert.Contains(t, out, "edge function returned 503 ...")
	assert.Contains(t, out, "1.52s")
	assert.Contains(t, out, "2026-03-02 09:30")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "12345678", truncateID("12345678-rest"))
	assert.Equal(t, "id", truncateID("id"))
}

func TestFormatMetrics(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		Total: 10, Complete: 6, Blocked: 3, Failed: 1,
		ByStatus:      map[evidence.EvidenceStatus]int{evidence.StatusEvidenceBacked: 4, evidence.StatusNoEvidence: 2},
		ByBlockReason: map[evidence.ExitReason]int{evidence.ReasonInsufficientSources: 3},
		BlockRate:     0.3, FailRate: 0.1, AvgCoverage: 71.5, Wasted: 1, WasteRate: 1.0 / 6,
		P50LatencyMs: 900, P95LatencyMs: 4200, LookbackHours: 24,
	}

	var buf bytes.Buffer
	formatMetrics(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "evidence_backed:")
	assert.Contains(t, out, "3 (30.0%)")
	assert.Contains(t, out, "71.5%")
	assert.Contains(t, out, "900ms / 4200ms")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("evidence_backed")), bytes.Index(buf.Bytes(), []byte("no_evidence")))
}

func TestPageLabel(t *testing.T) {
	page, row := 3, 12
	assert.Equal(t, "page 3", pageLabel(model.DocumentPage{Number: 1, Page: &page}))
	assert.Equal(t, "Q1 row 12", pageLabel(model.DocumentPage{Number: 2, Sheet: "Q1", Row: &row}))
	assert.Equal(t, "chunk 4", pageLabel(model.DocumentPage{Number: 4}))
}

func TestFormatDocuments(t *testing.T) {
	var buf bytes.Buffer
	formatDocuments(&buf, []model.Document{{
		ID: "d1", Filename: "plan.pdf", FileType: model.FileType("pdf"), PagesCount: 3, SizeBytes: 2048,
		CreatedAt: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC),
	}})
	assert.Contains(t, buf.String(), "plan.pdf")
	assert.Contains(t, buf.String(), "2048")
}
