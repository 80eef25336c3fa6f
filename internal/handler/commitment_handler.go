package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/schedule"
)

// CommitmentServiceInterface は予定ハンドラーが必要とするサービスインターフェース。
type CommitmentServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.Commitment, error)
	Create(ctx context.Context, userID string, in schedule.CommitmentInput) (*model.Commitment, error)
	Update(ctx context.Context, userID, id string, in schedule.CommitmentInput) (*model.Commitment, error)
	Delete(ctx context.Context, userID, id string) error
}

// CommitmentHandler はスケジュールに紐づく予定のHTTPハンドラー。
type CommitmentHandler struct {
	service CommitmentServiceInterface
}

// NewCommitmentHandler はCommitmentHandlerを生成する。
func NewCommitmentHandler(service CommitmentServiceInterface) *CommitmentHandler {
	return &CommitmentHandler{service: service}
}

// List は予定一覧を返す。
// GET /api/me/schedule/commitments
func (h *CommitmentHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.service.List(r.Context(), identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.Commitment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Create は予定を作成する。
// POST /api/me/schedule/commitments
func (h *CommitmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in schedule.CommitmentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.Create(r.Context(), identity.ID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Update は予定を更新する。
// PUT /api/me/schedule/commitments/{id}
func (h *CommitmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in schedule.CommitmentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.Update(r.Context(), identity.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete は予定を削除する。
// DELETE /api/me/schedule/commitments/{id}
func (h *CommitmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), identity.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
