// Package schedule はユーザーごとの稼働スケジュールと予定を管理する。
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/bitesync/internal/model"
)

// スケジュールの既定値
const (
	DefaultTimezone       = "UTC"
	DefaultWorkHoursStart = "09:00"
	DefaultWorkHoursEnd   = "17:00"
)

const clockLayout = "15:04"

// DefaultSchedule は既定値のみを持つスケジュールを返す。
func DefaultSchedule() model.UserSchedule {
	start := DefaultWorkHoursStart
	end := DefaultWorkHoursEnd
	return model.UserSchedule{
		Timezone:         DefaultTimezone,
		WorkHoursStart:   &start,
		WorkHoursEnd:     &end,
		StandingMeetings: nil,
	}
}

// Merge はbaseにpatchを適用したスケジュールを返す。挿入と更新の両方で使う。
// patchのnilフィールドはbaseの値を保つ。勤務時間と定例会議は
// 空文字列を指定するとnullになる。id、user_id、created_atは変更しない。
func Merge(base model.UserSchedule, patch model.ScheduleFields) model.UserSchedule {
	out := base
	if patch.Timezone != nil {
		out.Timezone = strings.TrimSpace(*patch.Timezone)
	}
	if patch.WorkHoursStart != nil {
		out.WorkHoursStart = nullable(*patch.WorkHoursStart)
	}
	if patch.WorkHoursEnd != nil {
		out.WorkHoursEnd = nullable(*patch.WorkHoursEnd)
	}
	if patch.StandingMeetings != nil {
		out.StandingMeetings = nullable(*patch.StandingMeetings)
	}
	return out
}

func nullable(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// Validate はマージ後のスケジュールを検証する。
func Validate(s model.UserSchedule) error {
	if s.Timezone == "" {
		return model.NewValidationError("timezone is required")
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return model.NewValidationError("unknown timezone: " + s.Timezone)
	}

	var start, end time.Time
	if s.WorkHoursStart != nil {
		t, err := parseClock(*s.WorkHoursStart)
		if err != nil {
			return model.NewValidationError("work_hours_start must be HH:MM")
		}
		start = t
	}
	if s.WorkHoursEnd != nil {
		t, err := parseClock(*s.WorkHoursEnd)
		if err != nil {
			return model.NewValidationError("work_hours_end must be HH:MM")
		}
		end = t
	}
	if s.WorkHoursStart != nil && s.WorkHoursEnd != nil && !start.Before(end) {
		return model.NewValidationError("work_hours_start must be before work_hours_end")
	}
	return nil
}

// parseClock は2桁ずつのHH:MMだけを受け付ける。
// time.Parseは "9:00" も通すため長さを先に確かめる。
func parseClock(v string) (time.Time, error) {
	if len(v) != len(clockLayout) {
		return time.Time{}, fmt.Errorf("clock %q is not HH:MM", v)
	}
	return time.Parse(clockLayout, v)
}
