package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
)

// PostgresScheduleRepo はPostgreSQLを使用したスケジュールリポジトリ。
type PostgresScheduleRepo struct {
	db *sql.DB
}

// NewPostgresScheduleRepo はPostgresScheduleRepoを生成する。
func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

const scheduleColumns = `id, user_id, timezone, work_hours_start, work_hours_end, standing_meetings, created_at, updated_at`

func scanSchedule(row *sql.Row) (*model.UserSchedule, error) {
	s := &model.UserSchedule{}
	err := row.Scan(&s.ID, &s.UserID, &s.Timezone, &s.WorkHoursStart, &s.WorkHoursEnd,
		&s.StandingMeetings, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// FindByUserID はユーザーのスケジュールを取得する。見つからない場合はErrNotFoundを返す。
func (r *PostgresScheduleRepo) FindByUserID(ctx context.Context, userID string) (*model.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		return nil, translateError("failed to find schedule", err)
	}
	return s, nil
}

// Insert はスケジュールを作成する。
func (r *PostgresScheduleRepo) Insert(ctx context.Context, schedule *model.UserSchedule) (*model.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`INSERT INTO schedules (id, user_id, timezone, work_hours_start, work_hours_end, standing_meetings, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+scheduleColumns,
		schedule.ID, schedule.UserID, schedule.Timezone, schedule.WorkHoursStart, schedule.WorkHoursEnd,
		schedule.StandingMeetings, schedule.CreatedAt, schedule.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to insert schedule", err)
	}
	return s, nil
}

// Update はスケジュールの可変フィールドを更新する。
func (r *PostgresScheduleRepo) Update(ctx context.Context, schedule *model.UserSchedule) (*model.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx,
		`UPDATE schedules
		 SET timezone = $2, work_hours_start = $3, work_hours_end = $4,
		     standing_meetings = $5, updated_at = $6
		 WHERE id = $1
		 RETURNING `+scheduleColumns,
		schedule.ID, schedule.Timezone, schedule.WorkHoursStart, schedule.WorkHoursEnd,
		schedule.StandingMeetings, schedule.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to update schedule", err)
	}
	return s, nil
}

// compile-time interface check
var _ ScheduleRepository = (*PostgresScheduleRepo)(nil)
