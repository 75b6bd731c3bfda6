package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"credpass/internal/issuance/store"
	ledger "credpass/internal/ledger/models"
	projector "credpass/internal/projector/service"
	"credpass/pkg/platform/httputil"
	"credpass/pkg/requestcontext"
)

// Rebuilder exposes the projector's maintenance operations.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
	Cursor() uint64
	Errors() []projector.ProjectionError
}

// IssuanceAdmin exposes the bridge's intent operations.
type IssuanceAdmin interface {
	Intent(ctx context.Context, requestID ledger.RequestID) (*store.Intent, error)
	Release(ctx context.Context, requestID ledger.RequestID) error
}

// AdminHandler serves the operator API. It must be mounted behind the admin
// bearer-token middleware.
type AdminHandler struct {
	projection Rebuilder
	issuance   IssuanceAdmin
	logger     *slog.Logger
}

// NewAdmin creates an AdminHandler. issuance may be nil when the bridge is disabled.
func NewAdmin(projection Rebuilder, issuance IssuanceAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		projection: projection,
		issuance:   issuance,
		logger:     logger,
	}
}

// Register registers the admin routes with the chi router.
func (h *AdminHandler) Register(r chi.Router) {
	r.Post("/admin/projection/rebuild", h.handleRebuild)
	r.Get("/admin/projection/errors", h.handleErrors)
	if h.issuance != nil {
		r.Get("/admin/issuance/{requestId}", h.handleIntent)
		r.Post("/admin/issuance/{requestId}/release", h.handleRelease)
	}
}

func (h *AdminHandler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	h.logger.InfoContext(ctx, "projection rebuild requested",
		"request_id", requestcontext.RequestID(ctx),
		"admin", requestcontext.AdminSubject(ctx),
	)
	if err := h.projection.Rebuild(ctx); err != nil {
		h.logger.ErrorContext(ctx, "projection rebuild failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	cursor := h.projection.Cursor()
	w.Header().Set(CursorHeader, formatCursor(cursor))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"cursor":      cursor,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *AdminHandler) handleErrors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(CursorHeader, formatCursor(h.projection.Cursor()))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"errors": h.projection.Errors()})
}

func (h *AdminHandler) handleIntent(w http.ResponseWriter, r *http.Request) {
	id, ok := adminRequestParam(w, r)
	if !ok {
		return
	}
	intent, err := h.issuance.Intent(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, intent)
}

func (h *AdminHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := adminRequestParam(w, r)
	if !ok {
		return
	}
	if err := h.issuance.Release(ctx, id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "issuance claim released by operator",
		"request_id", requestcontext.RequestID(ctx),
		"verification_request_id", id,
		"admin", requestcontext.AdminSubject(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func adminRequestParam(w http.ResponseWriter, r *http.Request) (ledger.RequestID, bool) {
	return parseRequestID(w, chi.URLParam(r, "requestId"))
}

func formatCursor(cursor uint64) string {
	return strconv.FormatUint(cursor, 10)
}
