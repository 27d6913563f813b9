package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/negotiator"
	"github.com/sells-group/evidence-cli/internal/orchestrator"
	"github.com/sells-group/evidence-cli/internal/report"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

type createWorkflowRequest struct {
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	FunctionName string `json:"function_name"`
}

// generateRequest carries the form state. A missing config falls back to
// the project's saved policy, then to the profile defaults.
type generateRequest struct {
	Config  *tierconfig.UIState `json:"config,omitempty"`
	Profile string              `json:"profile,omitempty"`
	Params  map[string]any      `json:"params,omitempty"`
}

type exitRequest struct {
	Action evidence.ExitAction `json:"action"`
	// Config widens a search_more retry.
	Config *tierconfig.UIState `json:"config,omitempty"`
}

// workflowView is the wire form of a workflow and its state.
type workflowView struct {
	ID           string                          `json:"id"`
	ProjectID    string                          `json:"project_id"`
	FunctionName string                          `json:"function_name"`
	State        orchestrator.Phase              `json:"state"`
	AttemptID    string                          `json:"attempt_id,omitempty"`
	Tiers        []evidence.SourceTier           `json:"tiers,omitempty"`
	ExitOptions  *evidence.StrictModeExitOptions `json:"exit_options,omitempty"`
	Result       *evidence.GenerationResult      `json:"result,omitempty"`
	Report       *report.Report                  `json:"report,omitempty"`
}

func viewOf(wf *orchestrator.Workflow) workflowView {
	v := workflowView{ID: wf.ID(), ProjectID: wf.ProjectID(), FunctionName: wf.Function()}
	st := wf.State()
	v.State = st.Phase()
	switch s := st.(type) {
	case orchestrator.Searching:
		v.AttemptID = s.AttemptID
		v.Tiers = s.Tiers
	case orchestrator.Generating:
		v.AttemptID = s.AttemptID
	case orchestrator.Blocked:
		v.AttemptID = s.AttemptID
		v.ExitOptions = s.Options
	case orchestrator.Complete:
		v.Result = s.Result
		if rep, err := report.Assemble(s.Result); err == nil {
			v.Report = rep
		}
	}
	return v
}

func (s *server) workflow(w http.ResponseWriter, r *http.Request) (*orchestrator.Workflow, bool) {
	wf, ok := s.Workflows.Get(chi.URLParam(r, "id"))
	if !ok {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "workflow not found"})
		return nil, false
	}
	return wf, true
}

func (s *server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ProjectID == "" || req.FunctionName == "" {
		badRequest(w, "project_id and function_name are required")
		return
	}
	wf := s.Workflows.Create(req.ProjectID, req.UserID, req.FunctionName)
	respondJSON(w, http.StatusCreated, viewOf(wf))
}

func (s *server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(wf))
}

func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	state, err := s.formState(r, wf.ProjectID(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	params := req.Params
	if req.Profile != "" {
		if params == nil {
			params = make(map[string]any, 1)
		}
		params["profile"] = req.Profile
	}

	if _, err := wf.Generate(r.Context(), tierconfig.Build(state), params); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(wf))
}

func (s *server) formState(r *http.Request, projectID string, req generateRequest) (tierconfig.UIState, error) {
	if req.Config != nil {
		return *req.Config, nil
	}
	p, err := s.Store.GetSourcePolicy(r.Context(), projectID)
	switch {
	case err == nil:
		return tierconfig.FromPolicy(*p), nil
	case errors.Is(err, store.ErrNotFound):
		return s.Profiles.Get(req.Profile).DefaultState(), nil
	}
	return tierconfig.UIState{}, err
}

func (s *server) exit(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}
	var req exitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	n := negotiator.New(wf)
	var err error
	if req.Action == evidence.ActionSearchMore && req.Config != nil {
		_, err = n.SearchMoreWith(r.Context(), tierconfig.Build(*req.Config))
	} else {
		_, err = n.HandleStrictModeExit(r.Context(), req.Action)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewOf(wf))
}

func (s *server) cancel(w http.ResponseWriter, r *http.Request) {
	wf, ok := s.workflow(w, r)
	if !ok {
		return
	}
	wf.Cancel()
	respondJSON(w, http.StatusOK, viewOf(wf))
}

// report renders a logged generation. ?format=text returns the plain-text
// rendering.
func (s *server) report(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Store.GetGeneration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if entry.Result == nil {
		respondJSON(w, http.StatusNotFound, errorBody{Error: "generation has no result"})
		return
	}
	rep, err := report.Assemble(entry.Result)
	if err != nil {
		respondError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = report.Render(w, rep)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}
