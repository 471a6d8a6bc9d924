package http

import (
	"context"
	"encoding/json"
	"errors"
	"isinFlow/internal/app"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"isinFlow/internal/domain/service"
	"isinFlow/internal/domain/useCases"
	"log/slog"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

// Services bundles the use cases served over HTTP.
type Services struct {
	Records     useCases.RecordService
	Rules       useCases.RuleService
	Bookrunners useCases.BookrunnerService
	History     useCases.TransitionHistory
	Broadcaster useCases.Broadcaster
}

// Server represents an HTTP server with all routes configured
type Server struct {
	svc    Services
	loc    *time.Location
	log    *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new HTTP server with configured routes. Dates in query
// parameters are read in loc.
func NewServer(addr string, svc Services, loc *time.Location, log *slog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()

	server := &Server{
		svc: svc,
		loc: loc,
		log: log.With(slog.String("component", "http")),
		mux: mux,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	server.registerRoutes()

	return server
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /stats", s.handleStats)

	s.mux.HandleFunc("GET /records", s.handleListRecords)
	s.mux.HandleFunc("POST /records", s.handleAddRecord)
	s.mux.HandleFunc("GET /records/{id}", s.handleGetRecord)
	s.mux.HandleFunc("PATCH /records/{id}", s.handleUpdateRecord)
	s.mux.HandleFunc("POST /records/{id}/transition", s.handleTransition)

	s.mux.HandleFunc("GET /bookrunners", s.handleBookrunners)

	s.mux.HandleFunc("GET /rules", s.handleListRules)
	s.mux.HandleFunc("POST /rules", s.handleAddRule)
	s.mux.HandleFunc("DELETE /rules/{id}", s.handleRemoveRule)

	s.mux.HandleFunc("GET /transitions", s.handleTransitions)

	if s.svc.Broadcaster != nil {
		s.mux.HandleFunc("GET /ws", s.svc.Broadcaster.Handler())
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Records.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Records.Summary())
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records := s.svc.Records.Records()
	if status := r.URL.Query().Get("status"); status != "" {
		want := normalize.Classify(status)
		filtered := records[:0]
		for _, rec := range records {
			if rec.Status == want {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.svc.Records.Record(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, model.ErrRecordNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAddRecord(w http.ResponseWriter, r *http.Request) {
	var input model.RawRecord
	if err := decodeBody(r, &input); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, _, err := s.svc.Records.AddRecord(r.Context(), input)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var patch model.RawRecord
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.svc.Records.UpdateRecord(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type transitionRequest struct {
	Action string `json:"action"`
}

type transitionResponse struct {
	Record model.BondRecord `json:"record"`
	Error  string           `json:"error,omitempty"`
}

// handleTransition applies the action and waits for its confirmation. A
// rejected confirmation answers 502 with the optimistic record still in place.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	action, err := service.ParseAction(req.Action)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id := r.PathValue("id")
	conf, err := s.svc.Records.Transition(r.Context(), id, action)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	waitErr := conf.Wait(r.Context())
	rec, _ := s.svc.Records.Record(id)
	if waitErr != nil {
		code := http.StatusBadGateway
		if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
			code = http.StatusAccepted
		}
		s.writeJSON(w, code, transitionResponse{Record: rec, Error: waitErr.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, transitionResponse{Record: rec})
}

func (s *Server) handleBookrunners(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var rng model.DateRange
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &rng.Start}, {"to", &rng.End}} {
		v := q.Get(bound.param)
		if v == "" {
			continue
		}
		t, err := s.parseDate(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		*bound.dst = &t
	}

	currency := q.Get("currency")
	if currency == "" {
		currency = normalize.CurrencyAll
	}

	aggs, err := s.svc.Bookrunners.Aggregates(r.Context(), rng, currency)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, aggs)
}

func (s *Server) parseDate(v string) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, v, s.loc); err == nil {
		return t, nil
	}
	if t, ok := normalize.ParseDisplayDate(v, s.loc); ok {
		return t, nil
	}
	return time.Time{}, errors.New("invalid date " + v + ", want YYYY-MM-DD")
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Rules.Rules())
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AutoTriggerRule
	if err := decodeBody(r, &rule); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := s.svc.Rules.AddRule(rule)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Rules.RemoveRule(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, errors.New("rule not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		since = t
	}

	entries, err := s.svc.History.TransitionsSince(r.Context(), since)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	if entries == nil {
		entries = []model.TransitionEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRule):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrSourceUnavailable), errors.Is(err, app.ErrJournalUnavailable), errors.Is(err, app.ErrEngineStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrTransitionRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.UseNumber()
	return dec.Decode(dst)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", slog.Int("status", code), slog.String("error", err.Error()))
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
