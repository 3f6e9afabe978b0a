// Package handler exposes dataset validation over HTTP.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"sqabi/backend/internal/dataset"
	"sqabi/backend/internal/platform/httpjson"
	"sqabi/backend/internal/server/middleware"
)

// ValidateFunc runs a dataset validation. dataset.Validate in production.
type ValidateFunc func(ctx context.Context, src dataset.Source, limit int) (*dataset.Result, error)

// Handler serves POST /datasets/validate.
type Handler struct {
	validate     ValidateFunc
	timeout      time.Duration
	defaultLimit int
	logger       *slog.Logger
}

// New returns a Handler bounding each validation by timeout and previewing defaultLimit rows unless the
// request asks for another limit.
func New(validate ValidateFunc, timeout time.Duration, defaultLimit int, logger *slog.Logger) *Handler {
	if validate == nil {
		validate = dataset.Validate
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{validate: validate, timeout: timeout, defaultLimit: defaultLimit, logger: logger}
}

type validateRequest struct {
	dataset.Source
	Limit int `json:"limit,omitempty"`
}

// Validate handles POST /datasets/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_request", "Corpo da requisição inválido")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = h.defaultLimit
	}
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.validate(ctx, req.Source, limit)
	switch {
	case err == nil:
		httpjson.WriteData(w, http.StatusOK, res)
	case errors.Is(err, dataset.ErrQueryRequired), errors.Is(err, dataset.ErrNotSelect):
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_query", err.Error())
	case errors.Is(err, dataset.ErrInvalidPath):
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_source", err.Error())
	case errors.Is(err, dataset.ErrUnsupportedType):
		httpjson.WriteError(w, http.StatusBadRequest, "unsupported_type", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpjson.WriteError(w, http.StatusGatewayTimeout, "query_timeout", "Tempo limite excedido ao validar o dataset")
	default:
		userID, _ := middleware.GetUserID(r.Context())
		h.logger.WarnContext(r.Context(), "dataset validation failed", "type", req.Type, "user_id", userID, "error", err)
		httpjson.WriteError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	}
}
