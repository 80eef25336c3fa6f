package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/project"
)

// ProjectServiceInterface はプロジェクト・タスクハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	GetProject(ctx context.Context, userID, id string) (*model.Project, error)
	CreateProject(ctx context.Context, userID string, in project.ProjectInput) (*model.Project, error)
	UpdateProject(ctx context.Context, userID, id string, in project.ProjectInput) (*model.Project, error)
	DeleteProject(ctx context.Context, userID, id string) error

	ListTasks(ctx context.Context, userID, projectID string) ([]model.Task, error)
	CreateTask(ctx context.Context, userID, projectID string, in project.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, userID, id string, in project.TaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
}

// ProjectHandler はプロジェクトとタスクのHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// ListProjects はプロジェクト一覧を返す。
// GET /api/projects
func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListProjects(r.Context(), identity.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.Project{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetProject はプロジェクト詳細を返す。
// GET /api/projects/{id}
func (h *ProjectHandler) GetProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProject(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProject はプロジェクトを作成する。
// POST /api/projects
func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in project.ProjectInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.service.CreateProject(r.Context(), identity.ID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProject はプロジェクトを更新する。
// PUT /api/projects/{id}
func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in project.ProjectInput
	if !decodeJSON(w, r, &in) {
		return
	}

	p, err := h.service.UpdateProject(r.Context(), identity.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject はプロジェクトを削除する。タスクが残っている場合は409。
// DELETE /api/projects/{id}
func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProject(r.Context(), identity.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTasks はプロジェクトのタスク一覧を返す。
// GET /api/projects/{id}/tasks
func (h *ProjectHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	list, err := h.service.ListTasks(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if list == nil {
		list = []model.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CreateTask はプロジェクトにタスクを追加する。
// POST /api/projects/{id}/tasks
func (h *ProjectHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in project.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}

	t, err := h.service.CreateTask(r.Context(), identity.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// UpdateTask はタスクを更新する。
// PUT /api/tasks/{id}
func (h *ProjectHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var in project.TaskInput
	if !decodeJSON(w, r, &in) {
		return
	}

	t, err := h.service.UpdateTask(r.Context(), identity.ID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/{id}
func (h *ProjectHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteTask(r.Context(), identity.ID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
