package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
	"github.com/hitoshi/bitesync/internal/security"
)

const dateLayout = "2006-01-02"

// CommitmentInput は予定の作成・更新内容を表す。
// Flexibilityが空の場合はFirmとして扱う。
type CommitmentInput struct {
	Type        model.CommitmentType `json:"type"`
	Flexibility model.Flexibility    `json:"flexibility"`
	Title       *string              `json:"title"`
	StartDate   *string              `json:"start_date"`
	StartTime   *string              `json:"start_time"`
	EndDate     *string              `json:"end_date"`
	EndTime     *string              `json:"end_time"`
}

// CommitmentService は呼び出しユーザーのスケジュールに属する予定を管理する。
// 他ユーザーのスケジュールの予定は存在しないものとして扱う。
type CommitmentService struct {
	schedules    repository.ScheduleRepository
	commitments  repository.CommitmentRepository
	sanitizer    security.TextSanitizer
	storeTimeout time.Duration
	now          func() time.Time
}

// NewCommitmentService はCommitmentServiceを生成する。
func NewCommitmentService(
	schedules repository.ScheduleRepository,
	commitments repository.CommitmentRepository,
	sanitizer security.TextSanitizer,
	storeTimeout time.Duration,
) *CommitmentService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &CommitmentService{
		schedules:    schedules,
		commitments:  commitments,
		sanitizer:    sanitizer,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// List はユーザーの予定を作成日時の降順で返す。
// スケジュールが未登録の場合は空の一覧を返す。
func (s *CommitmentService) List(ctx context.Context, userID string) ([]model.Commitment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sched, err := s.schedules.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return []model.Commitment{}, nil
		}
		return nil, model.NewStoreFailureError("取得", err)
	}

	list, err := s.commitments.ListBySchedule(ctx, sched.ID)
	if err != nil {
		return nil, model.NewStoreFailureError("取得", err)
	}
	return list, nil
}

// Create はユーザーのスケジュールに予定を追加する。
// スケジュールが未登録の場合はSCHEDULE_NOT_FOUNDを返す。
func (s *CommitmentService) Create(ctx context.Context, userID string, in CommitmentInput) (*model.Commitment, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sched, err := s.ownedSchedule(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &model.Commitment{
		ID:          uuid.New().String(),
		ScheduleID:  sched.ID,
		Type:        in.Type,
		Flexibility: in.Flexibility,
		Title:       in.Title,
		StartDate:   in.StartDate,
		StartTime:   in.StartTime,
		EndDate:     in.EndDate,
		EndTime:     in.EndTime,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	saved, err := s.commitments.Create(ctx, c)
	if err != nil {
		return nil, model.NewStoreFailureError("保存", err)
	}

	slog.Info("commitment created",
		slog.String("user_id", userID),
		slog.String("commitment_id", saved.ID),
		slog.String("type", string(saved.Type)),
	)
	return saved, nil
}

// Update は予定の内容を置き換える。
func (s *CommitmentService) Update(ctx context.Context, userID, id string, in CommitmentInput) (*model.Commitment, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sched, err := s.ownedSchedule(ctx, userID)
	if err != nil {
		if model.IsCode(err, model.ErrCodeScheduleNotFound) {
			return nil, model.NewCommitmentNotFoundError(id)
		}
		return nil, err
	}

	existing, err := s.commitments.FindByID(ctx, sched.ID, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewCommitmentNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("取得", err)
	}

	existing.Type = in.Type
	existing.Flexibility = in.Flexibility
	existing.Title = in.Title
	existing.StartDate = in.StartDate
	existing.StartTime = in.StartTime
	existing.EndDate = in.EndDate
	existing.EndTime = in.EndTime
	existing.UpdatedAt = s.now()

	saved, err := s.commitments.Update(ctx, existing)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewCommitmentNotFoundError(id)
		}
		return nil, model.NewStoreFailureError("保存", err)
	}
	return saved, nil
}

// Delete は予定を削除する。
func (s *CommitmentService) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	sched, err := s.ownedSchedule(ctx, userID)
	if err != nil {
		if model.IsCode(err, model.ErrCodeScheduleNotFound) {
			return model.NewCommitmentNotFoundError(id)
		}
		return err
	}

	if err := s.commitments.Delete(ctx, sched.ID, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.NewCommitmentNotFoundError(id)
		}
		return model.NewStoreFailureError("削除", err)
	}

	slog.Info("commitment deleted",
		slog.String("user_id", userID),
		slog.String("commitment_id", id),
	)
	return nil
}

func (s *CommitmentService) ownedSchedule(ctx context.Context, userID string) (*model.UserSchedule, error) {
	sched, err := s.schedules.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewScheduleNotFoundError()
		}
		return nil, model.NewStoreFailureError("取得", err)
	}
	return sched, nil
}

// normalize は入力を検証し、空文字列をnullに、Flexibilityの未指定をFirmにそろえる。
func (s *CommitmentService) normalize(in CommitmentInput) (CommitmentInput, error) {
	if !in.Type.Valid() {
		return in, model.NewValidationError("type must be one of Holidays, Appointments, Meetings")
	}
	if in.Flexibility == "" {
		in.Flexibility = model.FlexibilityFirm
	}
	if !in.Flexibility.Valid() {
		return in, model.NewValidationError("flexibility must be Firm or Flexible")
	}

	if in.Title != nil && s.sanitizer != nil {
		in.Title = security.SanitizePtr(s.sanitizer, in.Title)
	}
	in.Title = emptyToNil(in.Title)
	in.StartDate = emptyToNil(in.StartDate)
	in.StartTime = emptyToNil(in.StartTime)
	in.EndDate = emptyToNil(in.EndDate)
	in.EndTime = emptyToNil(in.EndTime)

	start, err := parseMoment(in.StartDate, in.StartTime, "start")
	if err != nil {
		return in, err
	}
	end, err := parseMoment(in.EndDate, in.EndTime, "end")
	if err != nil {
		return in, err
	}
	if in.StartDate != nil && in.EndDate != nil && end.Before(start) {
		return in, model.NewValidationError("end must not be before start")
	}
	return in, nil
}

// parseMoment は日付と時刻を検証し、比較用の時刻を返す。
// 時刻のみの指定は日付を伴わないため比較対象にしない。
func parseMoment(date, clock *string, label string) (time.Time, error) {
	var t time.Time
	if date != nil {
		d, err := time.Parse(dateLayout, *date)
		if err != nil {
			return t, model.NewValidationError(label + "_date must be YYYY-MM-DD")
		}
		t = d
	}
	if clock != nil {
		c, err := parseClock(*clock)
		if err != nil {
			return t, model.NewValidationError(label + "_time must be HH:MM")
		}
		t = t.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute)
	}
	return t, nil
}

func emptyToNil(v *string) *string {
	if v == nil {
		return nil
	}
	return nullable(*v)
}
