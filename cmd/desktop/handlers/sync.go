// Package handlers provides the companion server's REST and websocket
// handlers.
package handlers

import (
	"context"
	"net/http"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
	"github.com/kimhsiao/taskin/backend/internal/logging"
	"github.com/kimhsiao/taskin/backend/internal/sync"
	"github.com/kimhsiao/taskin/backend/internal/sync/scheduler"
)

// SyncRunner is the part of the scheduler the sync endpoints use.
type SyncRunner interface {
	SyncNow(ctx context.Context) (*sync.SyncResult, error)
	GetStatus(ctx context.Context) scheduler.SchedulerStatus
}

// TokenSetter stores the bearer token used against the authority.
type TokenSetter interface {
	SetToken(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// SyncHandler handles sync status and operations.
type SyncHandler struct {
	runner SyncRunner
	tokens TokenSetter
}

// NewSyncHandler creates a new SyncHandler. tokens may be nil.
func NewSyncHandler(runner SyncRunner, tokens TokenSetter) *SyncHandler {
	return &SyncHandler{runner: runner, tokens: tokens}
}

// =====================================================
// Sync Status and Trigger Endpoints
// =====================================================

// GetStatus handles GET /api/sync/status.
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runner.GetStatus(r.Context()))
}

// TriggerSync handles POST /api/sync/now. Progress is also pushed over the
// websocket.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"pushed":    result.Pushed,
		"received":  result.Received,
		"applied":   result.Applied,
		"skipped":   result.Skipped,
		"conflicts": result.Conflicts,
		"duration":  result.Duration.Milliseconds(),
	})
}

// =====================================================
// Credentials
// =====================================================

// SetToken handles PUT /api/sync/token. The token is stored encrypted.
func (h *SyncHandler) SetToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, apperrors.New(apperrors.ErrNotInitialized, "token storage is not configured"))
		return
	}
	var request struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &request); err != nil {
		writeError(w, err)
		return
	}
	if request.Token == "" {
		writeError(w, apperrors.New(apperrors.ErrValidation, "token is required"))
		return
	}

	if err := h.tokens.SetToken(r.Context(), request.Token); err != nil {
		writeError(w, err)
		return
	}
	logging.Info("Sync token updated")
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}

// DeleteToken handles DELETE /api/sync/token.
func (h *SyncHandler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, apperrors.New(apperrors.ErrNotInitialized, "token storage is not configured"))
		return
	}
	if err := h.tokens.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success"})
}
