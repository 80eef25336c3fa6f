// Package user はアカウントの退会処理を提供する。
package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
)

// DefaultStoreTimeout はデータストア呼び出しの既定のタイムアウト。
const DefaultStoreTimeout = 5 * time.Second

// ViewInvalidator はユーザーのキャッシュ済みビューを破棄するインターフェース。
type ViewInvalidator interface {
	Invalidate(ctx context.Context, userIDs ...string)
}

// Service はユーザー管理のサービス層。
type Service struct {
	accounts     repository.AccountRepository
	sessionRepo  repository.SessionRepository
	views        ViewInvalidator
	storeTimeout time.Duration
}

// NewService はServiceを生成する。viewsはnilでもよい。
func NewService(
	accounts repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	views ViewInvalidator,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &Service{
		accounts:     accounts,
		sessionRepo:  sessionRepo,
		views:        views,
		storeTimeout: storeTimeout,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → account（+ CASCADE: users, schedules, commitments, projects。tasksはリポジトリが先に削除する）
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if userID == "" {
		return model.NewValidationError("user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.accounts.FindByID(ctx, userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return s.fail("取得", userID, err)
	}

	slog.Info("account withdrawal started", slog.String("user_id", userID))

	// 先にセッションを失効させ、削除途中のアカウントでリクエストが通らないようにする
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return s.fail("削除", userID, err)
	}

	if err := s.accounts.Delete(ctx, userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return s.fail("削除", userID, err)
	}

	if s.views != nil {
		s.views.Invalidate(ctx, userID)
	}

	slog.Info("account withdrawal completed", slog.String("user_id", userID))
	return nil
}

func (s *Service) fail(op, userID string, err error) error {
	slog.Error("account withdrawal failed",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return model.NewStoreFailureError(op, err)
}
