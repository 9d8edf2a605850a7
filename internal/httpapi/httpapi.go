// Package httpapi exposes dixcover's inbound HTTP surface: triggering a
// scan, triggering a probe sweep, and reading back the subdomain inventory.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tbckr/dixcover/internal/apperr"
	"github.com/tbckr/dixcover/internal/readapi"
	"github.com/tbckr/dixcover/internal/validate"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100
)

// Server holds the HTTP layer's dependencies, kept as plain function values
// so the router can be tested without a real scheduler, database, or scan
// coordinator.
type Server struct {
	logger *slog.Logger
	reader *readapi.Reader

	onScanRequest  func(r *http.Request, apex string) error
	onProbeRequest func(r *http.Request, limit int)
}

// New builds the chi router. onScanRequest handles a validated scan request
// (reservation + scheduling + background fan-out); onProbeRequest handles a
// validated probe request (background sweep). Either may be nil to disable
// that route's side effect while still exercising validation.
func New(logger *slog.Logger, reader *readapi.Reader, onScanRequest func(r *http.Request, apex string) error, onProbeRequest func(r *http.Request, limit int)) http.Handler {
	s := &Server{logger: logger, reader: reader, onScanRequest: onScanRequest, onProbeRequest: onProbeRequest}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/", s.handleScan)
	r.Post("/probe", s.handleProbe)
	r.Get("/domains/data", s.handleDomainsData)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type scanRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validate.IsValidApex(req.Domain) {
		writeError(w, http.StatusBadRequest, "invalid domain: "+req.Domain)
		return
	}

	if s.onScanRequest != nil {
		if err := s.onScanRequest(r, req.Domain); err != nil {
			var conflict *apperr.ReservationConflictError
			if errors.As(err, &conflict) {
				writeError(w, http.StatusTooManyRequests, conflict.Error())
				return
			}
			s.logger.Error("httpapi: scan request failed", "domain", req.Domain, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "scan initiated for domain " + req.Domain})
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if s.onProbeRequest != nil {
		s.onProbeRequest(r, limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "probe scheduled", "limit": limit})
}

type domainDataRequest struct {
	Domain string `json:"domain"`
	Source string `json:"source"`
}

func (s *Server) handleDomainsData(w http.ResponseWriter, r *http.Request) {
	var req domainDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validate.IsValidApex(req.Domain) {
		writeError(w, http.StatusBadRequest, "invalid domain: "+req.Domain)
		return
	}
	if req.Source != "all_subdomains" && req.Source != "alive_subdomains" {
		writeError(w, http.StatusBadRequest, "invalid source: "+req.Source)
		return
	}

	page, perPage, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset := page * perPage

	var (
		data  interface{}
		total int
	)
	if req.Source == "all_subdomains" {
		rows, t, err := s.reader.ListMaster(r.Context(), req.Domain, offset, perPage)
		if err != nil {
			s.logger.Error("httpapi: list master failed", "domain", req.Domain, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		data, total = rows, t
	} else {
		rows, t, err := s.reader.ListReachable(r.Context(), req.Domain, offset, perPage)
		if err != nil {
			s.logger.Error("httpapi: list reachable failed", "domain", req.Domain, "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		data, total = rows, t
	}

	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Per-Page", strconv.Itoa(perPage))
	w.Header().Set("X-Total-Count", strconv.Itoa(total))

	cursor := ""
	if offset+perPage < total {
		cursor = encodeCursor(perPage, offset+perPage)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{"count": total, "cursor": cursor},
	})
}

func parsePagination(r *http.Request) (page, perPage int, err error) {
	page = 0
	perPage = defaultPerPage

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("invalid page")
		}
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		perPage, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, errors.New("invalid per_page")
		}
	}
	if page < 0 || perPage < 1 || perPage > maxPerPage {
		return 0, 0, errors.New("invalid pagination params")
	}
	return page, perPage, nil
}

func encodeCursor(limit, offset int) string {
	payload, _ := json.Marshal(map[string]int{"limit": limit, "offset": offset})
	return base64.StdEncoding.EncodeToString(payload)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
