package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bitesync/internal/dashboard"
	"github.com/hitoshi/bitesync/internal/model"
)

// DashboardServiceInterface はプロフィール・スケジュールハンドラーが必要とするサービスインターフェース。
// 書き込みはキャッシュ済みビューを無効化するダッシュボード経由で行う。
type DashboardServiceInterface interface {
	Load(ctx context.Context, identity model.Identity) (*dashboard.View, error)
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error)
	SaveSchedule(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error)
}

// ScheduleReader はスケジュール取得のインターフェース。
type ScheduleReader interface {
	GetSchedule(ctx context.Context, userID string) (*model.UserSchedule, error)
}

// RoleLister はロール選択肢取得のインターフェース。
type RoleLister interface {
	ListRoles(ctx context.Context) ([]model.Role, error)
}

// MeHandler はログインユーザー自身のプロフィールとスケジュールを扱うHTTPハンドラー。
type MeHandler struct {
	dashboard DashboardServiceInterface
	schedules ScheduleReader
	roles     RoleLister
}

// NewMeHandler はMeHandlerを生成する。
func NewMeHandler(dashboard DashboardServiceInterface, schedules ScheduleReader, roles RoleLister) *MeHandler {
	return &MeHandler{
		dashboard: dashboard,
		schedules: schedules,
		roles:     roles,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// 省略したフィールドは変更しない。nameに空文字を指定すると未設定に戻す。
type updateProfileRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
	Team *string `json:"team"`
}

// Dashboard はプロフィールとスケジュールの統合ビューを返す。
// GET /api/me
func (h *MeHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.dashboard.Load(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// UpdateProfile はプロフィールを部分更新する。
// PATCH /api/me/profile
func (h *MeHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.dashboard.UpdateProfile(r.Context(), identity.ID, model.ProfilePatch{
		Name: req.Name,
		Role: req.Role,
		Team: req.Team,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListRoles はロール選択肢を返す。
// GET /api/roles
func (h *MeHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRoles(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if roles == nil {
		roles = []model.Role{}
	}
	writeJSON(w, http.StatusOK, roles)
}

// GetSchedule はスケジュールを返す。未登録の場合は404。
// GET /api/me/schedule
func (h *MeHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	sched, err := h.schedules.GetSchedule(r.Context(), identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

// SaveSchedule はスケジュールを作成または更新する。
// PUT /api/me/schedule
func (h *MeHandler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var fields model.ScheduleFields
	if !decodeJSON(w, r, &fields) {
		return
	}

	sched, err := h.dashboard.SaveSchedule(r.Context(), identity.ID, fields)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}
