package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to disk.
const multipartMemory = 8 << 20

func (s *server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.Store.ListDocuments(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func (s *server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequest(w, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	doc, err := s.Ingestor.IngestReader(r.Context(), chi.URLParam(r, "project"), r.FormValue("user_id"), header.Filename, file)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, doc)
}

func (s *server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) searchDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		badRequest(w, "q is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	hits, err := s.Store.SearchDocuments(r.Context(), chi.URLParam(r, "project"), q, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, hits)
}

func (s *server) getPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.Store.GetSourcePolicy(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *server) putPolicy(w http.ResponseWriter, r *http.Request) {
	var p evidence.SourcePolicy
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if p.EvidenceMode == "" {
		p.EvidenceMode = evidence.ModeBalanced
	}
	if !p.EvidenceMode.Valid() {
		respondError(w, &evidence.ConfigurationError{Field: "evidence_mode", Reason: "unknown mode " + strconv.Quote(string(p.EvidenceMode))})
		return
	}
	p.ProjectID = chi.URLParam(r, "project")
	if err := s.Store.SaveSourcePolicy(r.Context(), &p); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
