package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/miradorstack/mirador-resilience/internal/models"
	"github.com/miradorstack/mirador-resilience/internal/services"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

const maxBodyBytes = 1 << 20

// HTTPHandler serves the dashboard JSON API.
type HTTPHandler struct {
	logger  *slog.Logger
	service *services.MonitorService
}

// NewHTTPHandler builds the router for the dashboard API.
func NewHTTPHandler(logger *slog.Logger, service *services.MonitorService) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{logger: logger, service: service}

	router := mux.NewRouter()
	// method mismatches on a mux subrouter answer 404, so routes live on the root router
	router.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	router.HandleFunc("/api/history", h.history).Methods(http.MethodGet)
	router.HandleFunc("/api/statistics", h.statistics).Methods(http.MethodGet)
	router.HandleFunc("/api/dashboard", h.dashboard).Methods(http.MethodGet)
	router.HandleFunc("/api/metrics", h.processMetrics).Methods(http.MethodPost)
	router.HandleFunc("/api/transactions", h.recordTransactions).Methods(http.MethodPost)
	router.HandleFunc("/api/fit", h.fit).Methods(http.MethodPost)
	router.HandleFunc("/api/reset", h.reset).Methods(http.MethodPost)
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	router.Use(h.loggingMiddleware)
	return router
}

func (h *HTTPHandler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}

func (h *HTTPHandler) status(w http.ResponseWriter, r *http.Request) {
	current, err := h.service.Status(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, current)
}

func (h *HTTPHandler) history(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", 100)
	if err != nil {
		h.respondError(w, err)
		return
	}
	entries, err := h.service.History(n)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := utils.ParseRFC3339(raw)
		if err != nil {
			h.respondError(w, utils.NewAppError("query since", err.Error(), utils.ErrInvalidRequest))
			return
		}
		entries = slices.DeleteFunc(entries, func(e models.HistoryEntry) bool {
			return e.Timestamp.Before(since)
		})
	}
	h.respondJSON(w, http.StatusOK, entries)
}

func (h *HTTPHandler) statistics(w http.ResponseWriter, _ *http.Request) {
	stats, ok, err := h.service.Statistics()
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !ok {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "no_data"})
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *HTTPHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	n, err := intQuery(r, "n", 0)
	if err != nil {
		h.respondError(w, err)
		return
	}
	dash, ok, err := h.service.Dashboard(n)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !ok {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "no_data"})
		return
	}
	h.respondJSON(w, http.StatusOK, dash)
}

func (h *HTTPHandler) processMetrics(w http.ResponseWriter, r *http.Request) {
	var sample models.MetricSample
	if err := decodeBody(w, r, &sample); err != nil {
		h.respondError(w, err)
		return
	}
	snapshot, err := h.service.ProcessMetrics(r.Context(), sample)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, snapshot)
}

func (h *HTTPHandler) recordTransactions(w http.ResponseWriter, r *http.Request) {
	var batch models.TransactionBatch
	if err := decodeBody(w, r, &batch); err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.service.RecordTransactions(batch)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, stats)
}

func (h *HTTPHandler) fit(w http.ResponseWriter, r *http.Request) {
	var req models.FitRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			h.respondError(w, err)
			return
		}
	}
	result, err := h.service.FitTransition(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *HTTPHandler) health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return utils.NewAppError("decode body", err.Error(), utils.ErrInvalidRequest)
	}
	return nil
}

func intQuery(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, utils.NewAppError("query "+key, "must be an integer", utils.ErrInvalidRequest)
	}
	return n, nil
}

func (h *HTTPHandler) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("encode response failed", slog.Any("error", err))
	}
}

func (h *HTTPHandler) respondError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, utils.ErrInvalidRequest):
		code = http.StatusBadRequest
	case errors.Is(err, services.ErrNotConfigured):
		code = http.StatusServiceUnavailable
	default:
		h.logger.Error("http request failed", slog.Any("error", err))
	}
	h.respondJSON(w, code, map[string]string{"error": err.Error()})
}
