package model

import "time"

// Priority はプロジェクト・タスクの優先度。
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Valid は優先度が定義済みの値かどうかを返す。
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// HoursPer はプロジェクト工数の集計単位。
type HoursPer string

const (
	PerDay   HoursPer = "Day"
	PerWeek  HoursPer = "Week"
	PerMonth HoursPer = "Month"
)

// Valid は集計単位が定義済みの値かどうかを返す。
func (p HoursPer) Valid() bool {
	switch p {
	case PerDay, PerWeek, PerMonth:
		return true
	}
	return false
}

// Project はユーザーが所有するプロジェクトを表す。
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority"`
	Hours       float64   `json:"hours"`
	Per         HoursPer  `json:"per"`
	MaxHours    float64   `json:"max_hours"`
	StartDate   *string   `json:"start_date"`
	EndDate     *string   `json:"end_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task はプロジェクトに属するタスクを表す。
type Task struct {
	ID              string    `json:"id"`
	ProjectID       string    `json:"project_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	StartDate       *string   `json:"start_date"`
	EndDate         *string   `json:"end_date"`
	RequiredMembers string    `json:"required_members"`
	OptionalMembers string    `json:"optional_members"`
	Priority        Priority  `json:"priority"`
	Hours           float64   `json:"hours"`
	Order           int       `json:"order"`
	Recurring       []string  `json:"recurring"`
	HourDelay       float64   `json:"hour_delay"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Weekdays は繰り返し指定で使用できる曜日表記。
var Weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
