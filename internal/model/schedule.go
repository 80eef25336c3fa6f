package model

import "time"

// UserSchedule はユーザーごとの稼働スケジュールを表す。
// アプリケーションロジックにより1ユーザー1件に保たれる。
type UserSchedule struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Timezone         string    `json:"timezone"`
	WorkHoursStart   *string   `json:"work_hours_start"`
	WorkHoursEnd     *string   `json:"work_hours_end"`
	StandingMeetings *string   `json:"standing_meetings"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ScheduleFields はスケジュールの部分更新内容を表す。
// nilのフィールドは「指定なし」を意味する。
type ScheduleFields struct {
	Timezone         *string `json:"timezone,omitempty"`
	WorkHoursStart   *string `json:"work_hours_start,omitempty"`
	WorkHoursEnd     *string `json:"work_hours_end,omitempty"`
	StandingMeetings *string `json:"standing_meetings,omitempty"`
}

// CommitmentType は予定の種別。
type CommitmentType string

const (
	CommitmentHolidays     CommitmentType = "Holidays"
	CommitmentAppointments CommitmentType = "Appointments"
	CommitmentMeetings     CommitmentType = "Meetings"
)

// Valid は種別が定義済みの値かどうかを返す。
func (t CommitmentType) Valid() bool {
	switch t {
	case CommitmentHolidays, CommitmentAppointments, CommitmentMeetings:
		return true
	}
	return false
}

// Flexibility は予定の調整可否。
type Flexibility string

const (
	FlexibilityFirm     Flexibility = "Firm"
	FlexibilityFlexible Flexibility = "Flexible"
)

// Valid は調整可否が定義済みの値かどうかを返す。
func (f Flexibility) Valid() bool {
	return f == FlexibilityFirm || f == FlexibilityFlexible
}

// Commitment はスケジュールに紐づく休暇・予定・会議を表す。
type Commitment struct {
	ID          string         `json:"id"`
	ScheduleID  string         `json:"schedule_id"`
	Type        CommitmentType `json:"type"`
	Flexibility Flexibility    `json:"flexibility"`
	Title       *string        `json:"title"`
	StartDate   *string        `json:"start_date"`
	StartTime   *string        `json:"start_time"`
	EndDate     *string        `json:"end_date"`
	EndTime     *string        `json:"end_time"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
