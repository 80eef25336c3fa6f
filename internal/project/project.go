// Package project はユーザーが所有するプロジェクトとタスクを管理する。
package project

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
	"github.com/hitoshi/bitesync/internal/security"
)

// DefaultStoreTimeout はストア呼び出しの既定タイムアウト。
const DefaultStoreTimeout = 5 * time.Second

const (
	dateLayout        = "2006-01-02"
	maxNameLength     = 200
	maxDescriptionLen = 5000
)

// ProjectInput はプロジェクトの作成・更新内容を表す。
// Priority、Perが空の場合はそれぞれMedium、Weekとして扱う。
type ProjectInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Priority    model.Priority `json:"priority"`
	Hours       float64        `json:"hours"`
	Per         model.HoursPer `json:"per"`
	MaxHours    float64        `json:"max_hours"`
	StartDate   *string        `json:"start_date"`
	EndDate     *string        `json:"end_date"`
}

// Service はプロジェクトとタスクの操作を提供する。
// すべての操作は呼び出しユーザーが所有するプロジェクトに限定される。
type Service struct {
	projects     repository.ProjectRepository
	tasks        repository.TaskRepository
	sanitizer    security.TextSanitizer
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	projects repository.ProjectRepository,
	tasks repository.TaskRepository,
	sanitizer security.TextSanitizer,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Service{
		projects:     projects,
		tasks:        tasks,
		sanitizer:    sanitizer,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// ListProjects はユーザーのプロジェクトを作成日時順で返す。
func (s *Service) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	list, err := s.projects.ListByUser(ctx, userID)
	if err != nil {
		return nil, model.NewStoreFailureError("取得", err)
	}
	return list, nil
}

// GetProject はユーザーが所有するプロジェクトを返す。
func (s *Service) GetProject(ctx context.Context, userID, id string) (*model.Project, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.ownedProject(ctx, userID, id)
}

// CreateProject はプロジェクトを作成する。
func (s *Service) CreateProject(ctx context.Context, userID string, in ProjectInput) (*model.Project, error) {
	in, err := s.normalizeProject(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Project{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyProject(p, in)

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	saved, err := s.projects.Create(ctx, p)
	if err != nil {
		return nil, model.NewStoreFailureError("保存", err)
	}

	slog.Info("project created",
		slog.String("user_id", userID),
		slog.String("project_id", saved.ID),
	)
	return saved, nil
}

// UpdateProject はプロジェクトの内容を置き換える。
func (s *Service) UpdateProject(ctx context.Context, userID, id string, in ProjectInput) (*model.Project, error) {
	in, err := s.normalizeProject(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p, err := s.ownedProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	applyProject(p, in)
	p.UpdatedAt = s.now()

	saved, err := s.projects.Update(ctx, p)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewProjectNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("保存", err)
	}
	return saved, nil
}

// DeleteProject はプロジェクトを削除する。
// タスクが残っている場合はPROJECT_HAS_TASKSで拒否し、タスクは削除しない。
func (s *Service) DeleteProject(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.ownedProject(ctx, userID, id); err != nil {
		return err
	}

	count, err := s.tasks.CountByProject(ctx, id)
	if err != nil {
		return model.NewStoreFailureError("取得", err)
	}
	if count > 0 {
		return model.NewProjectHasTasksError(count)
	}

	if err := s.projects.Delete(ctx, userID, id); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.NewProjectNotFoundError(id)
		case errors.Is(err, model.ErrReferenced):
			// 件数確認の後にタスクが追加された
			return model.NewProjectHasTasksError(1)
		}
		return model.NewStoreFailureError("削除", err)
	}

	slog.Info("project deleted",
		slog.String("user_id", userID),
		slog.String("project_id", id),
	)
	return nil
}

func (s *Service) ownedProject(ctx context.Context, userID, id string) (*model.Project, error) {
	p, err := s.projects.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewProjectNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("取得", err)
	}
	return p, nil
}

func (s *Service) normalizeProject(in ProjectInput) (ProjectInput, error) {
	in.Name = s.clean(in.Name)
	in.Description = s.clean(in.Description)

	if in.Name == "" {
		return in, model.NewValidationError("name is required")
	}
	if len([]rune(in.Name)) > maxNameLength {
		return in, model.NewValidationError("name is too long")
	}
	if len([]rune(in.Description)) > maxDescriptionLen {
		return in, model.NewValidationError("description is too long")
	}

	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.Valid() {
		return in, model.NewValidationError("priority must be one of Low, Medium, High")
	}
	if in.Per == "" {
		in.Per = model.PerWeek
	}
	if !in.Per.Valid() {
		return in, model.NewValidationError("per must be one of Day, Week, Month")
	}
	if in.Hours < 0 || in.MaxHours < 0 {
		return in, model.NewValidationError("hours must not be negative")
	}

	in.StartDate, in.EndDate = trimDate(in.StartDate), trimDate(in.EndDate)
	if err := validateDateRange(in.StartDate, in.EndDate); err != nil {
		return in, err
	}
	return in, nil
}

func (s *Service) clean(v string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(v)
	}
	return s.sanitizer.Sanitize(v)
}

func applyProject(p *model.Project, in ProjectInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.Priority = in.Priority
	p.Hours = in.Hours
	p.Per = in.Per
	p.MaxHours = in.MaxHours
	p.StartDate = in.StartDate
	p.EndDate = in.EndDate
}

func trimDate(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// validateDateRange は日付形式と開始・終了の順序を検証する。
func validateDateRange(start, end *string) error {
	var from, to time.Time
	if start != nil {
		t, err := time.Parse(dateLayout, *start)
		if err != nil {
			return model.NewValidationError("start_date must be YYYY-MM-DD")
		}
		from = t
	}
	if end != nil {
		t, err := time.Parse(dateLayout, *end)
		if err != nil {
			return model.NewValidationError("end_date must be YYYY-MM-DD")
		}
		to = t
	}
	if start != nil && end != nil && to.Before(from) {
		return model.NewValidationError("end_date must not be before start_date")
	}
	return nil
}
