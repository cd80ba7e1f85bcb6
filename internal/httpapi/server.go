// Package httpapi serves the read-only reporting API and manual contact
// transitions over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gazette_outreach/internal/model"
	"gazette_outreach/internal/outreach"
	"gazette_outreach/internal/qualify"
	"gazette_outreach/internal/storage"
)

// Store is the read side the API reports from.
type Store interface {
	ListContacts(ctx context.Context, f storage.ContactFilter) ([]model.OutreachContact, error)
	GetContact(ctx context.Context, id int64) (*model.OutreachContact, error)
	GetSummary(ctx context.Context, date string) (*model.DailySummary, error)
	ListDecisions(ctx context.Context, from, to time.Time) ([]model.Decision, error)
	ListBlocklist(ctx context.Context) ([]model.BlocklistEntry, error)
}

// Transitioner applies operator events to contacts.
type Transitioner interface {
	Transition(ctx context.Context, id int64, ev outreach.Event) (*model.OutreachContact, error)
}

// Server holds the API dependencies.
type Server struct {
	store  Store
	engine Transitioner
	loc    *time.Location
	log    *slog.Logger
	now    func() time.Time
}

// New creates a Server. Dates without a time are read in loc.
func New(store Store, engine Transitioner, loc *time.Location, log *slog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	return &Server{store: store, engine: engine, loc: loc, log: log, now: time.Now}
}

// Routes returns the API router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.healthz)
	r.Route("/contacts", func(r chi.Router) {
		r.Get("/", s.listContacts)
		r.Get("/{id}", s.getContact)
		r.Post("/{id}/transition", s.transition)
	})
	r.Get("/summaries/{date}", s.getSummary)
	r.Get("/decisions", s.listDecisions)
	r.Get("/blocklist", s.listBlocklist)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listContacts(w http.ResponseWriter, r *http.Request) {
	var f storage.ContactFilter
	if q := r.URL.Query().Get("status"); q != "" {
		for _, part := range strings.Split(q, ",") {
			st := model.Status(strings.TrimSpace(part))
			if !st.Valid() {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", part))
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	f.Email = r.URL.Query().Get("email")

	cs, err := s.store.ListContacts(r.Context(), f)
	if err != nil {
		s.internalError(w, "list contacts", err)
		return
	}
	out := make([]contactJSON, 0, len(cs))
	for i := range cs {
		out = append(out, toContactJSON(&cs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getContact(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	c, err := s.store.GetContact(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("contact %d not found", id))
		return
	}
	if err != nil {
		s.internalError(w, "get contact", err)
		return
	}
	writeJSON(w, http.StatusOK, toContactJSON(c))
}

type transitionRequest struct {
	Event string `json:"event"`
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ev := outreach.Event(strings.ToLower(strings.TrimSpace(req.Event)))
	if !outreach.ManualEvents[ev] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("event must be meeting, won or lost, got %q", req.Event))
		return
	}

	c, err := s.engine.Transition(r.Context(), id, ev)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("contact %d not found", id))
		return
	case errors.Is(err, outreach.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.internalError(w, "transition contact", err)
		return
	}
	s.log.Info("contact transitioned via api", "contact_id", id, "event", ev, "status", c.Status)
	writeJSON(w, http.StatusOK, toContactJSON(c))
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, use YYYY-MM-DD", date))
		return
	}
	sum, err := s.store.GetSummary(r.Context(), date)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no summary for %s", date))
		return
	}
	if err != nil {
		s.internalError(w, "get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryJSON{
		Date:             sum.Date,
		NoticesFound:     sum.NoticesFound,
		NoticesQualified: sum.NoticesQualified,
		EmailsQueued:     sum.EmailsQueued,
		EmailsSent:       sum.EmailsSent,
		FollowUpsSent:    sum.FollowUpsSent,
		Replies:          sum.Replies,
		Bounces:          sum.Bounces,
		UpdatedAt:        sum.UpdatedAt,
	})
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	day := s.now().In(s.loc)
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := time.ParseInLocation(time.DateOnly, q, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, use YYYY-MM-DD", q))
			return
		}
		day = d
	}
	from, to := qualify.DayBounds(day, s.loc)

	ds, err := s.store.ListDecisions(r.Context(), from, to)
	if err != nil {
		s.internalError(w, "list decisions", err)
		return
	}
	out := make([]decisionJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, decisionJSON{
			NoticeID:  d.NoticeID,
			Email:     d.Email,
			Accepted:  d.Accepted,
			Gate:      d.Gate,
			Observed:  d.Observed,
			Threshold: d.Threshold,
			Detail:    d.Detail,
			DecidedAt: d.DecidedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listBlocklist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListBlocklist(r.Context())
	if err != nil {
		s.internalError(w, "list blocklist", err)
		return
	}
	out := make([]blockJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, blockJSON{Value: e.Value, Reason: e.Reason, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid contact id %q", raw))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
