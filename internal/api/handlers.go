package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/contextgen"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/index"
)

// contextRequest is the body for the context generation endpoints.
type contextRequest struct {
	contextgen.Query
	// Level selects progressive disclosure; empty runs the full pipeline.
	Level string `json:"level,omitempty"`
}

func (s *Server) handleGenerateContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Level != "" {
		result, err := s.svc.Generator().GenerateProgressive(r.Context(), &req.Query, req.Level)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	result, err := s.svc.Generator().Generate(r.Context(), &req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGenerateFormatted returns only the assembled markdown as text/plain.
func (s *Server) handleGenerateFormatted(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := s.svc.Generator().Generate(r.Context(), &req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(result.Content))
}

func (s *Server) handleRepoStatus(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("repository"); name != "" {
		st, err := s.svc.RepositoryStatusByName(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}

	statuses, err := s.svc.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// syncRequest is the body for the sync endpoint.
type syncRequest struct {
	Repository string `json:"repository,omitempty"`
}

// syncResponse reports the outcome per repository.
type syncResponse struct {
	Synced   []string          `json:"synced"`
	Failures map[string]string `json:"failures,omitempty"`
}

func (s *Server) handleRepoSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Repository != "" {
		if err := s.svc.SyncRepository(r.Context(), req.Repository); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{Synced: []string{req.Repository}})
		return
	}

	failures := s.svc.SyncAll(r.Context())
	resp := syncResponse{Synced: []string{}}
	for _, rc := range s.svc.Config().Repositories() {
		if _, failed := failures[rc.Name]; !failed {
			resp.Synced = append(resp.Synced, rc.Name)
		}
	}
	if len(failures) > 0 {
		resp.Failures = make(map[string]string, len(failures))
		for name, err := range failures {
			resp.Failures[name] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRepoAdd(w http.ResponseWriter, r *http.Request) {
	var rc config.Repository
	if err := decodeBody(r, &rc); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.AddRepository(r.Context(), rc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": rc.Name, "status": "added"})
}

func (s *Server) handleRepoUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var rc config.Repository
	if err := decodeBody(r, &rc); err != nil {
		writeError(w, err)
		return
	}
	if err := s.svc.UpdateRepository(r.Context(), name, rc); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": "updated"})
}

func (s *Server) handleRepoDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.svc.DeleteRepository(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name, "status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, errors.New(errors.KindValidation, "q parameter is required"))
		return
	}

	var repos []string
	if raw := q.Get("repository"); raw != "" {
		repos = strings.Split(raw, ",")
	}
	if raw := q.Get("repos"); raw != "" {
		repos = append(repos, strings.Split(raw, ",")...)
	}
	if cat := q.Get("category"); cat != "" {
		// Categories are declared on repository configurations, so a
		// category constraint resolves to the repositories carrying it.
		var matched []string
		for _, rc := range s.svc.Config().Repositories() {
			if strings.EqualFold(rc.Category, cat) {
				matched = append(matched, rc.Name)
			}
		}
		if len(repos) > 0 {
			matched = intersect(repos, matched)
		}
		if len(matched) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"results": []index.SearchResult{}})
			return
		}
		repos = matched
	}

	var filter *index.Filter
	if len(repos) > 0 || q.Get("type") != "" {
		filter = &index.Filter{Repositories: repos}
		if t := q.Get("type"); t != "" {
			filter.Types = []docs.ChunkType{docs.ChunkType(t)}
		}
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, errors.New(errors.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	hits, err := s.svc.Search(r.Context(), query, filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": hits})
}

// intersect keeps the members of a that also appear in b, case-insensitively.
func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				out = append(out, x)
				break
			}
		}
	}
	return out
}

func (s *Server) handleSearchMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &index.Filter{PathGlob: q.Get("path")}
	if raw := q.Get("repos"); raw != "" {
		filter.Repositories = strings.Split(raw, ",")
	}
	if t := q.Get("type"); t != "" {
		filter.Types = []docs.ChunkType{docs.ChunkType(t)}
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, errors.New(errors.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	chunks, err := s.svc.SearchMetadata(r.Context(), filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
