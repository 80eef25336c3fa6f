package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
	"github.com/hitoshi/bitesync/internal/security"
)

const (
	maxNameLength = 100
	maxRoleLength = 50
	maxTeamLength = 50
)

// Service はプロフィールの参照・更新とロール一覧を提供する。
type Service struct {
	repo         repository.ProfileRepository
	roleRepo     repository.RoleRepository
	sanitizer    security.TextSanitizer
	storeTimeout time.Duration
}

// NewService はServiceを生成する。
func NewService(
	repo repository.ProfileRepository,
	roleRepo repository.RoleRepository,
	sanitizer security.TextSanitizer,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Service{
		repo:         repo,
		roleRepo:     roleRepo,
		sanitizer:    sanitizer,
		storeTimeout: storeTimeout,
	}
}

// GetProfile は指定ユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, model.NewStoreFailureError("取得", err)
	}
	return p, nil
}

// UpdateProfile はプロフィールを部分更新する。
// nilのフィールドは変更しない。空文字列の名前はnullとして保存する。
// ロールとチームは自由記述だが空にはできない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error) {
	clean, err := s.normalizePatch(patch)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	p, err := s.repo.Update(ctx, userID, clean)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewUserNotFoundError()
		}
		return nil, model.NewStoreFailureError("更新", err)
	}
	return p, nil
}

// ListRoles はロール選択肢を返す。
func (s *Service) ListRoles(ctx context.Context) ([]model.Role, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return nil, model.NewStoreFailureError("取得", err)
	}
	return roles, nil
}

func (s *Service) normalizePatch(patch model.ProfilePatch) (model.ProfilePatch, error) {
	var out model.ProfilePatch

	if patch.Name != nil {
		name := s.sanitizer.Sanitize(*patch.Name)
		if len([]rune(name)) > maxNameLength {
			return out, model.NewValidationError("name is too long")
		}
		out.Name = &name
	}
	if patch.Role != nil {
		role := strings.ToLower(s.sanitizer.Sanitize(*patch.Role))
		if role == "" {
			return out, model.NewValidationError("role must not be empty")
		}
		if len([]rune(role)) > maxRoleLength {
			return out, model.NewValidationError("role is too long")
		}
		out.Role = &role
	}
	if patch.Team != nil {
		team := s.sanitizer.Sanitize(*patch.Team)
		if team == "" {
			return out, model.NewValidationError("team must not be empty")
		}
		if len([]rune(team)) > maxTeamLength {
			return out, model.NewValidationError("team is too long")
		}
		out.Team = &team
	}
	return out, nil
}
