package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/roasbeef/shousai/internal/build"
	"github.com/roasbeef/shousai/internal/coordinator"
	"github.com/roasbeef/shousai/internal/model"
)

// APIError is the error envelope returned by every failed API call.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error details.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ClusterView is the wire shape the dashboard consumes: the best-known
// record plus its derived detail state.
type ClusterView struct {
	Cluster model.ClusterSummary    `json:"cluster"`
	State   coordinator.DetailState `json:"state"`
}

// registerAPIV1Routes registers all /api/v1/ routes.
func (s *Server) registerAPIV1Routes() {
	// CORS middleware so a dashboard served from another port during
	// development can reach the API.
	corsMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next(w, r)
		}
	}

	jsonMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next(w, r)
		}
	}

	api := func(handler http.HandlerFunc) http.HandlerFunc {
		return corsMiddleware(jsonMiddleware(handler))
	}

	s.mux.HandleFunc("/api/v1/health", api(s.handleHealth))
	s.mux.HandleFunc("/api/v1/status", api(s.handleStatus))

	s.mux.HandleFunc("/api/v1/clusters", api(s.handleClusters))
	s.mux.HandleFunc("/api/v1/clusters/", api(s.handleClusterSubpath))

	s.mux.HandleFunc("/api/v1/failures", api(s.handleFailures))
	s.mux.HandleFunc("/api/v1/failures/", api(s.handleFailureByID))
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, code,
	message string) {

	s.writeJSON(w, status, APIError{
		Error: APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// view assembles the dashboard view for one record.
func (s *Server) view(r *http.Request,
	rec model.ClusterSummary) ClusterView {

	return ClusterView{
		Cluster: rec,
		State:   s.coord.DetailState(r.Context(), rec),
	}
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus handles GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":     build.Version(),
		"records":     len(s.coord.Records()),
		"activePolls": s.coord.ActivePolls(),
		"wsClients":   s.hub.ClientCount(),
	})
}

// handleClusters handles GET /api/v1/clusters. With refresh=1 the
// listing is re-fetched from the upstream before answering.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	var (
		records []model.ClusterSummary
		err     error
	)

	switch r.URL.Query().Get("refresh") {
	case "1", "true":
		records, err = s.coord.RefreshClusters(r.Context())
		if err != nil {
			s.writeError(w, http.StatusBadGateway,
				"upstream_unavailable", err.Error())
			return
		}
	default:
		records = s.coord.Records()
	}

	views := make([]ClusterView, 0, len(records))
	for _, rec := range records {
		views = append(views, s.view(r, rec))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"clusters": views,
	})
}

// handleClusterSubpath routes /api/v1/clusters/{id} and its detail and
// state sub-resources.
func (s *Server) handleClusterSubpath(w http.ResponseWriter,
	r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/clusters/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "missing_id",
			"Cluster id required")
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		s.handleClusterByID(w, r, id)

	case len(parts) == 2 && parts[1] == "detail":
		s.handleDetailRequest(w, r, id)

	case len(parts) == 2 && parts[1] == "state":
		s.handleDetailState(w, r, id)

	default:
		s.writeError(w, http.StatusNotFound, "not_found",
			"Unknown resource")
	}
}

// handleClusterByID handles GET /api/v1/clusters/{id}.
func (s *Server) handleClusterByID(w http.ResponseWriter, r *http.Request,
	id string) {

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	rec, ok := s.coord.Record(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "cluster_not_found",
			"No record for cluster "+id)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"cluster": s.view(r, rec),
	})
}

// handleDetailRequest handles POST /api/v1/clusters/{id}/detail. The
// optional JSON body {"force": true} requests regeneration even when a
// summary is already present.
func (s *Server) handleDetailRequest(w http.ResponseWriter,
	r *http.Request, id string) {

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	var req struct {
		Force bool `json:"force"`
	}
	if r.Body != nil {
		// An empty or malformed body simply means no options.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if r.URL.Query().Get("force") == "1" {
		req.Force = true
	}

	rec, ok := s.coord.Record(id)
	if !ok {
		rec = model.ClusterSummary{ID: id}
	}

	if req.Force {
		s.coord.RequestRegeneration(r.Context(), rec)
	} else {
		s.coord.EnsureDetailSummary(r.Context(), rec)
	}

	current, ok := s.coord.Record(id)
	if !ok {
		current = rec
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"state":  s.coord.DetailState(r.Context(), current),
	})
}

// handleDetailState handles GET /api/v1/clusters/{id}/state.
func (s *Server) handleDetailState(w http.ResponseWriter, r *http.Request,
	id string) {

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	rec, ok := s.coord.Record(id)
	if !ok {
		rec = model.ClusterSummary{ID: id}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"state": s.coord.DetailState(r.Context(), rec),
	})
}

// handleFailures handles GET /api/v1/failures.
func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	failures := s.coord.Failures(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"failures": failures,
	})
}

// handleFailureByID handles DELETE /api/v1/failures/{id}, also exposed
// as POST /api/v1/failures/{id}/clear for clients that cannot issue a
// DELETE.
func (s *Server) handleFailureByID(w http.ResponseWriter,
	r *http.Request) {

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/failures/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "missing_id",
			"Cluster id required")
		return
	}
	id := parts[0]

	clearing := r.Method == http.MethodDelete ||
		(r.Method == http.MethodPost && len(parts) == 2 &&
			parts[1] == "clear")
	if !clearing {
		s.writeError(w, http.StatusMethodNotAllowed,
			"method_not_allowed", "Method not allowed")
		return
	}

	s.coord.ClearFailure(r.Context(), id)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "cleared",
	})
}
