// Package dashboard はサインイン直後に表示するプロフィールとスケジュールの
// 統合ビューを組み立て、ユーザーごとにキャッシュする。
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/bitesync/internal/auth"
	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/schedule"
)

// View はダッシュボードに表示する統合ビュー。
// スケジュールが未登録の場合、Scheduleはnilで
// ScheduleDefaultsに初回保存時の既定値が入る。
type View struct {
	Profile          *model.UserProfile  `json:"profile"`
	Schedule         *model.UserSchedule `json:"schedule"`
	ScheduleDefaults *model.UserSchedule `json:"schedule_defaults,omitempty"`
}

// ProfileReconciler はIdentityに対応するプロフィールを保証するインターフェース。
type ProfileReconciler interface {
	ReconcileProfile(ctx context.Context, identity model.Identity) (*model.UserProfile, error)
}

// ProfileUpdater はプロフィール更新のインターフェース。
type ProfileUpdater interface {
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error)
}

// ScheduleStore はスケジュールの取得・保存のインターフェース。
type ScheduleStore interface {
	GetSchedule(ctx context.Context, userID string) (*model.UserSchedule, error)
	SaveSchedule(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error)
}

// Service はダッシュボードビューの読み込みと無効化を行う。
type Service struct {
	reconciler ProfileReconciler
	profiles   ProfileUpdater
	schedules  ScheduleStore
	cache      ViewCache
}

// NewService はServiceを生成する。cacheがnilの場合はキャッシュしない。
func NewService(reconciler ProfileReconciler, profiles ProfileUpdater, schedules ScheduleStore, cache ViewCache) *Service {
	return &Service{
		reconciler: reconciler,
		profiles:   profiles,
		schedules:  schedules,
		cache:      cache,
	}
}

// Load はIdentityのビューを返す。キャッシュにない場合はプロフィールを照合し、
// スケジュールを読み込んで組み立てる。
// 組み立ての途中で無効化されたビューはキャッシュに書き戻さない。
func (s *Service) Load(ctx context.Context, identity model.Identity) (*View, error) {
	var (
		gen       uint64
		cacheable bool
	)
	if s.cache != nil {
		v, err := s.cache.Get(ctx, identity.ID)
		switch {
		case err == nil && v.Profile != nil && v.Profile.ID == identity.ID:
			return v, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			slog.Warn("view cache read failed",
				slog.String("user_id", identity.ID),
				slog.String("error", err.Error()),
			)
		}

		gen, err = s.cache.Generation(ctx, identity.ID)
		if err != nil {
			slog.Warn("view cache generation read failed",
				slog.String("user_id", identity.ID),
				slog.String("error", err.Error()),
			)
		} else {
			cacheable = true
		}
	}

	profile, err := s.reconciler.ReconcileProfile(ctx, identity)
	if err != nil {
		return nil, err
	}

	view := &View{Profile: profile}
	sched, err := s.schedules.GetSchedule(ctx, identity.ID)
	switch {
	case err == nil:
		view.Schedule = sched
	case model.IsCode(err, model.ErrCodeScheduleNotFound):
		defaults := schedule.DefaultSchedule()
		view.ScheduleDefaults = &defaults
	default:
		return nil, err
	}

	if cacheable {
		s.store(ctx, identity.ID, gen, view)
	}
	return view, nil
}

// SaveSchedule はスケジュールを保存し、成功した場合のみビューを無効化する。
func (s *Service) SaveSchedule(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error) {
	saved, err := s.schedules.SaveSchedule(ctx, userID, fields)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, userID)
	return saved, nil
}

// UpdateProfile はプロフィールを更新し、成功した場合のみビューを無効化する。
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.UserProfile, error) {
	updated, err := s.profiles.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, err
	}
	s.Invalidate(ctx, userID)
	return updated, nil
}

// Invalidate は指定ユーザーのキャッシュ済みビューを破棄する。
// 同じキャッシュを共有する他のServiceで読み込み中のビューも書き戻されなくなる。
func (s *Service) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userIDs...); err != nil {
		slog.Warn("view cache invalidation failed",
			slog.Any("user_ids", userIDs),
			slog.String("error", err.Error()),
		)
	}
}

// HandleSessionEvent はセッション変化に応じてビューを無効化する。
// サインインでは新旧両方のIdentity、サインアウトではそのユーザーのビューを破棄する。
func (s *Service) HandleSessionEvent(ev auth.SessionEvent) {
	if ev.Session == nil {
		return
	}
	ids := []string{ev.Session.UserID}
	if ev.Kind == auth.SessionSignedIn && ev.Previous != nil && ev.Previous.ID != ev.Session.UserID {
		ids = append(ids, ev.Previous.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Invalidate(ctx, ids...)
}

func (s *Service) store(ctx context.Context, userID string, gen uint64, view *View) {
	stored, err := s.cache.SetIfGeneration(ctx, userID, gen, view)
	if err != nil {
		slog.Warn("view cache write failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !stored {
		slog.Debug("view invalidated during load, not cached", slog.String("user_id", userID))
	}
}
