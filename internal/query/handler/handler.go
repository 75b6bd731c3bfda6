package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	ledger "credpass/internal/ledger/models"
	"credpass/internal/query/metrics"
	"credpass/internal/query/service"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/httputil"
	"credpass/pkg/requestcontext"
	"credpass/pkg/validation"
)

// CursorHeader carries the snapshot cursor a response was read from.
const CursorHeader = "X-Projection-Cursor"

// Service hands out pinned snapshot views.
type Service interface {
	At(minCursor uint64) (*service.View, error)
}

// StaleResponse is the 412 body for a read behind min_cursor.
type StaleResponse struct {
	httputil.ErrorResponse
	Cursor    uint64 `json:"cursor"`
	MinCursor uint64 `json:"minCursor"`
}

// Handler serves the read API.
type Handler struct {
	query   Service
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a query Handler.
func New(query Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		query:   query,
		logger:  logger,
		metrics: metrics,
	}
}

// Register registers the query routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/credentials", h.handleCredentialsByOwner)
	r.Get("/v1/credentials/{tokenId}", h.handleCredential)
	r.Get("/v1/credentials/{tokenId}/metadata", h.handleCredentialMetadata)
	r.Get("/v1/requests", h.handleRecentRequests)
	r.Get("/v1/requests/{id}", h.handleRequest)
	r.Get("/v1/requests/{id}/tally", h.handleTally)
	r.Get("/v1/epochs/current", h.handleCurrentEpoch)
	r.Get("/v1/epochs/{epoch}/eligibility/{account}", h.handleEligibility)
	r.Get("/v1/institutions/{projectId}", h.handleInstitution)
	r.Get("/v1/projection", h.handleProjection)
}

func (h *Handler) handleCredentialsByOwner(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "credentials_by_owner")
	if !ok {
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "owner is required"))
		return
	}
	creds, err := v.CredentialsByOwner(owner, requestcontext.Now(r.Context()).Unix())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"owner": owner, "credentials": creds})
}

func (h *Handler) handleCredential(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "credential")
	if !ok {
		return
	}
	tokenID, ok := tokenParam(w, r)
	if !ok {
		return
	}
	cred, err := v.Credential(tokenID, requestcontext.Now(r.Context()).Unix())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cred)
}

func (h *Handler) handleCredentialMetadata(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "credential_metadata")
	if !ok {
		return
	}
	tokenID, ok := tokenParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	data, err := v.CredentialMetadata(ctx, tokenID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnavailable) && h.metrics != nil {
			h.metrics.IncMetadataFailure()
		}
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.WarnContext(ctx, "write metadata response",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) handleRecentRequests(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "recent_requests")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": v.RecentRequests(limit)})
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "request")
	if !ok {
		return
	}
	id, ok := requestParam(w, r)
	if !ok {
		return
	}
	req, err := v.Request(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) handleTally(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "tally")
	if !ok {
		return
	}
	id, ok := requestParam(w, r)
	if !ok {
		return
	}
	tally, err := v.Tally(id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tally)
}

func (h *Handler) handleCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "current_epoch")
	if !ok {
		return
	}
	epoch, err := v.CurrentEpoch()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, epoch)
}

func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "eligibility")
	if !ok {
		return
	}
	epoch, err := ledger.ParseEpochID(chi.URLParam(r, "epoch"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "epoch must be a decimal integer"))
		return
	}
	got, err := v.Eligibility(epoch, chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, got)
}

func (h *Handler) handleInstitution(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "institution")
	if !ok {
		return
	}
	projectID := chi.URLParam(r, "projectId")
	if err := validation.CheckStringLength("projectId", projectID, validation.MaxProjectIDLength); err != nil {
		httputil.WriteError(w, err)
		return
	}
	inst, err := v.Institution(projectID, requestcontext.Now(r.Context()).Unix())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, inst)
}

func (h *Handler) handleProjection(w http.ResponseWriter, r *http.Request) {
	v, ok := h.view(w, r, "projection")
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v.Summary())
}

// view pins a snapshot for the request and sets the cursor header. It writes
// the error response itself and returns false when the read cannot proceed.
func (h *Handler) view(w http.ResponseWriter, r *http.Request, operation string) (*service.View, bool) {
	minCursor := uint64(0)
	if raw := r.URL.Query().Get("min_cursor"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "min_cursor must be a non-negative integer"))
			return nil, false
		}
		minCursor = n
	}
	if h.metrics != nil {
		h.metrics.IncRead(operation)
	}

	v, err := h.query.At(minCursor)
	if v != nil {
		w.Header().Set(CursorHeader, formatCursor(v.Cursor()))
	}
	if err != nil {
		var stale *service.StaleError
		if errors.As(err, &stale) {
			if h.metrics != nil {
				h.metrics.IncStale(stale.MinCursor - stale.Cursor)
			}
			httputil.WriteJSON(w, http.StatusPreconditionFailed, StaleResponse{
				ErrorResponse: httputil.ErrorResponse{Error: string(dErrors.CodeStale), Description: stale.Error()},
				Cursor:        stale.Cursor,
				MinCursor:     stale.MinCursor,
			})
			return nil, false
		}
		httputil.WriteError(w, err)
		return nil, false
	}
	return v, true
}

func requestParam(w http.ResponseWriter, r *http.Request) (ledger.RequestID, bool) {
	return parseRequestID(w, chi.URLParam(r, "id"))
}

func parseRequestID(w http.ResponseWriter, raw string) (ledger.RequestID, bool) {
	id, err := ledger.ParseRequestID(raw)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "request id must be a decimal integer"))
		return 0, false
	}
	return id, true
}

func tokenParam(w http.ResponseWriter, r *http.Request) (ledger.TokenID, bool) {
	id, err := ledger.ParseTokenID(chi.URLParam(r, "tokenId"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "token id must be a decimal integer"))
		return 0, false
	}
	return id, true
}
