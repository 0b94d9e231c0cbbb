// Package handlers provides HTTP handlers for portfolio optimization and Monte Carlo simulation.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/simulation"
	"github.com/aristath/frontier/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxRequestBytes = 1 << 20

// OptimizationService is the orchestration the handlers depend on
type OptimizationService interface {
	Optimize(ctx context.Context, req services.OptimizeRequest) (*services.OptimizeResponse, error)
	RunMonteCarlo(ctx context.Context, req services.MonteCarloRequest, onProgress simulation.ProgressFunc) (*simulation.Result, error)
	GetRiskMetrics(ctx context.Context, portfolioID string) (*optimization.RiskMetrics, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	service        OptimizationService
	originPatterns []string // websocket origins; "*" accepts any
	log            zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service OptimizationService, originPatterns []string, log zerolog.Logger) *Handler {
	return &Handler{
		service:        service,
		originPatterns: originPatterns,
		log:            log.With().Str("handler", "optimization").Logger(),
	}
}

// errorBody is the JSON error envelope
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
}

// HandleOptimize handles POST /api/optimization/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req services.OptimizeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	resp, err := h.service.Optimize(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleMonteCarlo handles POST /api/optimization/monte-carlo
func (h *Handler) HandleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	var req services.MonteCarloRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.service.RunMonteCarlo(r.Context(), req, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// HandleGetRiskMetrics handles GET /api/optimization/portfolio/{portfolioID}/risk-metrics
func (h *Handler) HandleGetRiskMetrics(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	metrics, err := h.service.GetRiskMetrics(r.Context(), portfolioID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	const op = "handlers.decode"

	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return domain.WrapError(domain.KindInvalidRequest, op, fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInsufficientData, domain.KindInfeasibleConstraints:
		return http.StatusUnprocessableEntity
	case domain.KindInvalidWeights, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorDetailFor classifies err. Unclassified errors are reported without their text.
func errorDetailFor(err error) (int, errorDetail) {
	var e *domain.Error
	if !errors.As(err, &e) || statusFor(e.Kind) == http.StatusInternalServerError {
		return http.StatusInternalServerError, errorDetail{Kind: domain.KindInternal, Message: "internal error"}
	}
	return statusFor(e.Kind), errorDetail{Kind: e.Kind, Message: err.Error()}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, detail := errorDetailFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	} else {
		h.log.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	h.writeJSON(w, status, errorBody{Error: detail})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
