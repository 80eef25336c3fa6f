// Package profile はIdentityとアプリケーション側プロフィールの対応付け、
// およびプロフィールの参照・更新を提供する。
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bitesync/internal/metrics"
	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
)

// DefaultStoreTimeout はストア呼び出し1回あたりの既定タイムアウト。
const DefaultStoreTimeout = 5 * time.Second

// Reconciler は認証済みIdentityに対応するプロフィールが
// ちょうど1件存在することを保証する。
type Reconciler struct {
	repo         repository.ProfileRepository
	metrics      metrics.MetricsCollector
	storeTimeout time.Duration
	now          func() time.Time
}

// NewReconciler はReconcilerを生成する。
// storeTimeoutが0以下の場合はDefaultStoreTimeoutを使う。
// mcがnilの場合はメトリクスを記録しない。
func NewReconciler(repo repository.ProfileRepository, mc metrics.MetricsCollector, storeTimeout time.Duration) *Reconciler {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Reconciler{
		repo:         repo,
		metrics:      mc,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// ReconcileProfile はIdentityに対応するプロフィールを返す。
// 存在しない場合は既定値で作成する。
//
// 作成に進むのは検索結果がErrNotFoundの場合のみで、それ以外の検索失敗は
// StoreFailureとして返し挿入は行わない。並行呼び出しとの競合で挿入が
// ErrDuplicateKeyになった場合は、先に作成された行を読み直して返す。
// 既存のプロフィールは一切変更しない。
func (r *Reconciler) ReconcileProfile(ctx context.Context, identity model.Identity) (*model.UserProfile, error) {
	if strings.TrimSpace(identity.ID) == "" || strings.TrimSpace(identity.Email) == "" {
		return nil, model.NewValidationError("identity id and email are required")
	}

	existing, err := r.find(ctx, identity.ID)
	if err == nil {
		r.metrics.RecordReconcile(metrics.ReconcileExisting)
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, r.fail("取得", identity.ID, err)
	}

	created, err := r.insert(ctx, &model.UserProfile{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      nil,
		Role:      model.DefaultRole,
		Team:      model.DefaultTeam,
		CreatedAt: r.now().UTC(),
	})
	if err == nil {
		slog.Info("user profile created",
			slog.String("user_id", identity.ID),
		)
		r.metrics.RecordReconcile(metrics.ReconcileCreated)
		return created, nil
	}
	if !errors.Is(err, model.ErrDuplicateKey) {
		return nil, r.fail("作成", identity.ID, err)
	}

	// 並行する照合が先に作成した
	winner, err := r.find(ctx, identity.ID)
	if err != nil {
		return nil, r.fail("取得", identity.ID, err)
	}
	slog.Info("user profile created concurrently, using existing row",
		slog.String("user_id", identity.ID),
	)
	r.metrics.RecordReconcile(metrics.ReconcileRace)
	return winner, nil
}

func (r *Reconciler) find(ctx context.Context, id string) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.repo.FindByID(ctx, id)
}

func (r *Reconciler) insert(ctx context.Context, p *model.UserProfile) (*model.UserProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	return r.repo.Insert(ctx, p)
}

func (r *Reconciler) fail(op, userID string, err error) error {
	slog.Error("profile reconciliation failed",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	r.metrics.RecordReconcile(metrics.ReconcileFailed)
	return model.NewStoreFailureError(op, err)
}
