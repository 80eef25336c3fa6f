package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/bitesync/internal/model"
)

const maxTitleLength = 200

// TaskInput はタスクの作成・更新内容を表す。
// Orderがnilの場合、作成時はプロジェクト内の末尾、更新時は現在の値を保つ。
type TaskInput struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	StartDate       *string        `json:"start_date"`
	EndDate         *string        `json:"end_date"`
	RequiredMembers string         `json:"required_members"`
	OptionalMembers string         `json:"optional_members"`
	Priority        model.Priority `json:"priority"`
	Hours           float64        `json:"hours"`
	Order           *int           `json:"order"`
	Recurring       []string       `json:"recurring"`
	HourDelay       float64        `json:"hour_delay"`
}

// ListTasks はプロジェクトのタスクをorder順で返す。
func (s *Service) ListTasks(ctx context.Context, userID, projectID string) ([]model.Task, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}
	list, err := s.tasks.ListByProject(ctx, projectID)
	if err != nil {
		return nil, model.NewStoreFailureError("取得", err)
	}
	return list, nil
}

// CreateTask はユーザーが所有するプロジェクトにタスクを追加する。
func (s *Service) CreateTask(ctx context.Context, userID, projectID string, in TaskInput) (*model.Task, error) {
	in, err := s.normalizeTask(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.ownedProject(ctx, userID, projectID); err != nil {
		return nil, err
	}

	order := 0
	if in.Order != nil {
		order = *in.Order
	} else {
		next, err := s.tasks.NextOrder(ctx, projectID)
		if err != nil {
			return nil, model.NewStoreFailureError("取得", err)
		}
		order = next
	}

	now := s.now()
	t := &model.Task{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyTask(t, in)

	saved, err := s.tasks.Create(ctx, t)
	if err != nil {
		return nil, model.NewStoreFailureError("保存", err)
	}

	slog.Info("task created",
		slog.String("user_id", userID),
		slog.String("project_id", projectID),
		slog.String("task_id", saved.ID),
	)
	return saved, nil
}

// UpdateTask はタスクの内容を置き換える。所属プロジェクトは変更しない。
func (s *Service) UpdateTask(ctx context.Context, userID, id string, in TaskInput) (*model.Task, error) {
	in, err := s.normalizeTask(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	t, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Order != nil {
		t.Order = *in.Order
	}
	applyTask(t, in)
	t.UpdatedAt = s.now()

	saved, err := s.tasks.Update(ctx, t)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewTaskNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("保存", err)
	}
	return saved, nil
}

// DeleteTask はタスクを削除する。
func (s *Service) DeleteTask(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.ownedTask(ctx, userID, id); err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewTaskNotFoundError(id)
		}
		return model.NewStoreFailureError("削除", err)
	}
	return nil
}

func (s *Service) ownedTask(ctx context.Context, userID, id string) (*model.Task, error) {
	t, err := s.tasks.FindByIDForUser(ctx, userID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewTaskNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("取得", err)
	}
	return t, nil
}

func (s *Service) normalizeTask(in TaskInput) (TaskInput, error) {
	in.Title = s.clean(in.Title)
	in.Description = s.clean(in.Description)

	if in.Title == "" {
		return in, model.NewValidationError("title is required")
	}
	if len([]rune(in.Title)) > maxTitleLength {
		return in, model.NewValidationError("title is too long")
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
	if in.Hours < 0 || in.HourDelay < 0 {
		return in, model.NewValidationError("hours must not be negative")
	}
	if in.Order != nil && *in.Order < 0 {
		return in, model.NewValidationError("order must not be negative")
	}

	in.StartDate, in.EndDate = trimDate(in.StartDate), trimDate(in.EndDate)
	if err := validateDateRange(in.StartDate, in.EndDate); err != nil {
		return in, err
	}

	var err error
	if in.RequiredMembers, err = normalizeMembers(in.RequiredMembers, "required_members"); err != nil {
		return in, err
	}
	if in.OptionalMembers, err = normalizeMembers(in.OptionalMembers, "optional_members"); err != nil {
		return in, err
	}
	if in.Recurring, err = normalizeRecurring(in.Recurring); err != nil {
		return in, err
	}
	return in, nil
}

func applyTask(t *model.Task, in TaskInput) {
	t.Title = in.Title
	t.Description = in.Description
	t.StartDate = in.StartDate
	t.EndDate = in.EndDate
	t.RequiredMembers = in.RequiredMembers
	t.OptionalMembers = in.OptionalMembers
	t.Priority = in.Priority
	t.Hours = in.Hours
	t.Recurring = in.Recurring
	t.HourDelay = in.HourDelay
}

// normalizeMembers はカンマ区切りのメールアドレス一覧を検証し、
// 小文字化・重複除去した "a@x, b@y" 形式で返す。
func normalizeMembers(raw, field string) (string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		addr := strings.ToLower(strings.TrimSpace(part))
		if addr == "" {
			continue
		}
		parsed, err := mail.ParseAddress(addr)
		if err != nil || parsed.Address != addr {
			return "", model.NewValidationError(fmt.Sprintf("%s contains an invalid email: %s", field, addr))
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, addr)
	}
	return strings.Join(out, ", "), nil
}

// normalizeRecurring は曜日指定を検証し、Mon..Sunの順に並べ替える。
func normalizeRecurring(days []string) ([]string, error) {
	if len(days) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(days))
	for _, d := range days {
		d = strings.TrimSpace(d)
		valid := false
		for _, w := range model.Weekdays {
			if strings.EqualFold(d, w) {
				want[w] = true
				valid = true
				break
			}
		}
		if !valid {
			return nil, model.NewValidationError("recurring must contain only Mon, Tue, Wed, Thu, Fri, Sat, Sun")
		}
	}
	out := make([]string, 0, len(want))
	for _, w := range model.Weekdays {
		if want[w] {
			out = append(out, w)
		}
	}
	return out, nil
}
