package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bitesync/internal/metrics"
	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
	"github.com/hitoshi/bitesync/internal/security"
)

// DefaultStoreTimeout はストア呼び出し1回あたりの既定タイムアウト。
const DefaultStoreTimeout = 5 * time.Second

// Service はユーザーのスケジュールを1件に保ちながら保存する。
type Service struct {
	repo         repository.ScheduleRepository
	sanitizer    security.TextSanitizer
	metrics      metrics.MetricsCollector
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	repo repository.ScheduleRepository,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	storeTimeout time.Duration,
) *Service {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		repo:         repo,
		sanitizer:    sanitizer,
		metrics:      mc,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// GetSchedule はユーザーのスケジュールを返す。
// 未登録の場合はSCHEDULE_NOT_FOUNDを返す。
func (s *Service) GetSchedule(ctx context.Context, userID string) (*model.UserSchedule, error) {
	existing, err := s.find(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewScheduleNotFoundError()
		}
		return nil, model.NewStoreFailureError("取得", err)
	}
	return existing, nil
}

// SaveSchedule はユーザーのスケジュールを保存し、保存後の行を返す。
//
// 既存行があればfieldsをマージして更新し、なければ既定値にfieldsを
// マージして挿入する。初回保存が並行して挿入済みだった場合は
// その行に対する更新として適用する。書き込みが成功しない限り
// 保存済みの行は返さない。
func (s *Service) SaveSchedule(ctx context.Context, userID string, fields model.ScheduleFields) (*model.UserSchedule, error) {
	if userID == "" {
		return nil, model.NewValidationError("user id is required")
	}
	fields = s.sanitizeFields(fields)

	existing, err := s.find(ctx, userID)
	switch {
	case err == nil:
		return s.update(ctx, existing, fields)
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, s.fail("取得", userID, err)
	}

	merged := Merge(DefaultSchedule(), fields)
	if err := Validate(merged); err != nil {
		return nil, err
	}

	now := s.now()
	merged.ID = uuid.New().String()
	merged.UserID = userID
	merged.CreatedAt = now
	merged.UpdatedAt = now

	inserted, err := s.insert(ctx, &merged)
	if err == nil {
		slog.Info("schedule created",
			slog.String("user_id", userID),
			slog.String("schedule_id", inserted.ID),
		)
		s.metrics.RecordScheduleSave(metrics.ScheduleInsert)
		return inserted, nil
	}
	if !errors.Is(err, model.ErrDuplicateKey) {
		return nil, s.fail("保存", userID, err)
	}

	// 並行する初回保存が先に挿入した
	winner, err := s.find(ctx, userID)
	if err != nil {
		return nil, s.fail("取得", userID, err)
	}
	return s.update(ctx, winner, fields)
}

func (s *Service) update(ctx context.Context, existing *model.UserSchedule, fields model.ScheduleFields) (*model.UserSchedule, error) {
	merged := Merge(*existing, fields)
	if err := Validate(merged); err != nil {
		return nil, err
	}
	merged.UpdatedAt = s.now()

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	updated, err := s.repo.Update(ctx, &merged)
	if err != nil {
		return nil, s.fail("保存", existing.UserID, err)
	}
	s.metrics.RecordScheduleSave(metrics.ScheduleUpdate)
	return updated, nil
}

func (s *Service) find(ctx context.Context, userID string) (*model.UserSchedule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.repo.FindByUserID(ctx, userID)
}

func (s *Service) insert(ctx context.Context, sched *model.UserSchedule) (*model.UserSchedule, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return s.repo.Insert(ctx, sched)
}

func (s *Service) sanitizeFields(f model.ScheduleFields) model.ScheduleFields {
	if s.sanitizer == nil {
		return f
	}
	f.StandingMeetings = security.SanitizePtr(s.sanitizer, f.StandingMeetings)
	return f
}

func (s *Service) fail(op, userID string, err error) error {
	slog.Error("schedule save failed",
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordScheduleSave(metrics.ScheduleFailed)
	return model.NewStoreFailureError(op, err)
}
