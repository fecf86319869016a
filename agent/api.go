package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/scribe/jira"
)

// Router builds the HTTP surface: health, status, recent ledger records
// and a manual single-ticket trigger. Mutating and read endpoints under
// /api are behind basic auth when an admin password hash is configured.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Get("/status", s.handleStatus)
		r.Get("/processed", s.handleProcessed)
		r.Post("/process/{key}", s.handleProcess)
	})

	return r
}

func (s *Service) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminPasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.cfg.AdminUser ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.AdminPasswordHash), []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="scribe"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Service) handleProcessed(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.Processed(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type recordJSON struct {
		TicketID     string `json:"ticket_id"`
		TicketKey    string `json:"ticket_key"`
		Outcome      string `json:"outcome"`
		DecisionKind string `json:"decision_kind,omitempty"`
		LastError    string `json:"last_error,omitempty"`
		AttemptCount int    `json:"attempt_count"`
		ProcessedAt  int64  `json:"processed_at,omitempty"`
	}
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{
			TicketID:     rec.TicketID,
			TicketKey:    rec.TicketKey,
			Outcome:      rec.Outcome,
			DecisionKind: rec.DecisionKind,
			LastError:    rec.LastError,
			AttemptCount: rec.AttemptCount,
			ProcessedAt:  rec.ProcessedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleProcess runs the pipeline for one ticket on demand, bypassing the
// ledger filter. The run still does not write the ledger: manual runs are
// diagnostics, not scheduling.
func (s *Service) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.tickets == nil {
		http.Error(w, "no ticket source in static mode", http.StatusConflict)
		return
	}
	key := chi.URLParam(r, "key")

	decision, err := s.ProcessKey(r.Context(), key)
	switch {
	case errors.Is(err, ErrTicketGone), errors.Is(err, jira.ErrNotFound):
		http.Error(w, "ticket not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":    key,
		"decision":  string(decision.Kind),
		"updates":   len(decision.Updates),
		"title":     decision.Title,
		"rationale": decision.Rationale,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
