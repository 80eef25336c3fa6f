package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bitesync/internal/auth"
	"github.com/hitoshi/bitesync/internal/dashboard"
	"github.com/hitoshi/bitesync/internal/middleware"
	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/project"
	"github.com/hitoshi/bitesync/internal/schedule"
)

// --- モック定義 ---

type mockAuthService struct {
	signUpFn         func(ctx context.Context, email, password string, meta auth.SignUpMetadata) (*model.Account, error)
	signInFn         func(ctx context.Context, email, password string, lc auth.LoginContext) (*auth.SignInResult, error)
	currentSessionFn func(ctx context.Context, token string) (*model.Session, error)
	signOutFn        func(ctx context.Context, token string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string, meta auth.SignUpMetadata) (*model.Account, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, meta)
	}
	return &model.Account{ID: "u1", Email: email, FullName: meta.FullName}, nil
}

func (m *mockAuthService) SignIn(ctx context.Context, email, password string, lc auth.LoginContext) (*auth.SignInResult, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password, lc)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) CurrentSession(ctx context.Context, token string) (*model.Session, error) {
	if m.currentSessionFn != nil {
		return m.currentSessionFn(ctx, token)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, token string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, token)
	}
	return nil
}

type mockDashboard struct {
	loadFn          func(ctx context.Context, identity model.Identity) (*dashboard.View, error)
	updateProfileFn func(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error)
	saveScheduleFn  func(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error)
}

func (m *mockDashboard) Load(ctx context.Context, identity model.Identity) (*dashboard.View, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, identity)
	}
	return &dashboard.View{Profile: &model.UserProfile{ID: identity.ID, Email: identity.Email}}, nil
}

func (m *mockDashboard) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, patch)
	}
	return &model.UserProfile{ID: userID}, nil
}

func (m *mockDashboard) SaveSchedule(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error) {
	if m.saveScheduleFn != nil {
		return m.saveScheduleFn(ctx, userID, fields)
	}
	return &model.UserSchedule{UserID: userID}, nil
}

type mockScheduleReader struct {
	getScheduleFn func(ctx context.Context, userID string) (*model.UserSchedule, error)
}

func (m *mockScheduleReader) GetSchedule(ctx context.Context, userID string) (*model.UserSchedule, error) {
	if m.getScheduleFn != nil {
		return m.getScheduleFn(ctx, userID)
	}
	return nil, model.NewScheduleNotFoundError()
}

type mockRoleLister struct {
	listRolesFn func(ctx context.Context) ([]model.Role, error)
}

func (m *mockRoleLister) ListRoles(ctx context.Context) ([]model.Role, error) {
	if m.listRolesFn != nil {
		return m.listRolesFn(ctx)
	}
	return nil, nil
}

type mockCommitmentService struct {
	listFn   func(ctx context.Context, userID string) ([]model.Commitment, error)
	createFn func(ctx context.Context, userID string, in schedule.CommitmentInput) (*model.Commitment, error)
	updateFn func(ctx context.Context, userID, id string, in schedule.CommitmentInput) (*model.Commitment, error)
	deleteFn func(ctx context.Context, userID, id string) error
}

func (m *mockCommitmentService) List(ctx context.Context, userID string) ([]model.Commitment, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCommitmentService) Create(ctx context.Context, userID string, in schedule.CommitmentInput) (*model.Commitment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Commitment{ID: "c1", Type: in.Type}, nil
}

func (m *mockCommitmentService) Update(ctx context.Context, userID, id string, in schedule.CommitmentInput) (*model.Commitment, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, id, in)
	}
	return &model.Commitment{ID: id, Type: in.Type}, nil
}

func (m *mockCommitmentService) Delete(ctx context.Context, userID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, id)
	}
	return nil
}

type mockProjectService struct {
	listProjectsFn  func(ctx context.Context, userID string) ([]model.Project, error)
	getProjectFn    func(ctx context.Context, userID, id string) (*model.Project, error)
	createProjectFn func(ctx context.Context, userID string, in project.ProjectInput) (*model.Project, error)
	updateProjectFn func(ctx context.Context, userID, id string, in project.ProjectInput) (*model.Project, error)
	deleteProjectFn func(ctx context.Context, userID, id string) error
	listTasksFn     func(ctx context.Context, userID, projectID string) ([]model.Task, error)
	createTaskFn    func(ctx context.Context, userID, projectID string, in project.TaskInput) (*model.Task, error)
	updateTaskFn    func(ctx context.Context, userID, id string, in project.TaskInput) (*model.Task, error)
	deleteTaskFn    func(ctx context.Context, userID, id string) error
}

func (m *mockProjectService) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	if m.listProjectsFn != nil {
		return m.listProjectsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockProjectService) GetProject(ctx context.Context, userID, id string) (*model.Project, error) {
	if m.getProjectFn != nil {
		return m.getProjectFn(ctx, userID, id)
	}
	return nil, model.NewProjectNotFoundError(id)
}

func (m *mockProjectService) CreateProject(ctx context.Context, userID string, in project.ProjectInput) (*model.Project, error) {
	if m.createProjectFn != nil {
		return m.createProjectFn(ctx, userID, in)
	}
	return &model.Project{ID: "p1", UserID: userID, Name: in.Name}, nil
}

func (m *mockProjectService) UpdateProject(ctx context.Context, userID, id string, in project.ProjectInput) (*model.Project, error) {
	if m.updateProjectFn != nil {
		return m.updateProjectFn(ctx, userID, id, in)
	}
	return &model.Project{ID: id, UserID: userID, Name: in.Name}, nil
}

func (m *mockProjectService) DeleteProject(ctx context.Context, userID, id string) error {
	if m.deleteProjectFn != nil {
		return m.deleteProjectFn(ctx, userID, id)
	}
	return nil
}

func (m *mockProjectService) ListTasks(ctx context.Context, userID, projectID string) ([]model.Task, error) {
	if m.listTasksFn != nil {
		return m.listTasksFn(ctx, userID, projectID)
	}
	return nil, nil
}

func (m *mockProjectService) CreateTask(ctx context.Context, userID, projectID string, in project.TaskInput) (*model.Task, error) {
	if m.createTaskFn != nil {
		return m.createTaskFn(ctx, userID, projectID, in)
	}
	return &model.Task{ID: "t1", ProjectID: projectID, Title: in.Title}, nil
}

func (m *mockProjectService) UpdateTask(ctx context.Context, userID, id string, in project.TaskInput) (*model.Task, error) {
	if m.updateTaskFn != nil {
		return m.updateTaskFn(ctx, userID, id, in)
	}
	return &model.Task{ID: id, Title: in.Title}, nil
}

func (m *mockProjectService) DeleteTask(ctx context.Context, userID, id string) error {
	if m.deleteTaskFn != nil {
		return m.deleteTaskFn(ctx, userID, id)
	}
	return nil
}

type mockChatRelayer struct {
	relayChatFn func(ctx context.Context, transcript []model.ChatMessage) (*model.ChatMessage, error)
}

func (m *mockChatRelayer) RelayChat(ctx context.Context, transcript []model.ChatMessage) (*model.ChatMessage, error) {
	if m.relayChatFn != nil {
		return m.relayChatFn(ctx, transcript)
	}
	return &model.ChatMessage{Role: model.ChatRoleAssistant, Content: "ok"}, nil
}

type mockAccountWithdrawer struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockAccountWithdrawer) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// --- テストヘルパー ---

// withIdentity はテスト用にリクエストコンテキストに認証済みIdentityを注入するヘルパー。
func withIdentity(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithIdentity(r.Context(), model.Identity{ID: userID, Email: userID + "@example.com"})
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
