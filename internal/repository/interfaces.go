// Package repository はデータ永続化のインターフェースを定義する。
//
// 検索系メソッドは該当行がない場合に model.ErrNotFound を返し、
// 取得失敗（接続断・権限エラー等）とは区別する。
// 挿入系メソッドは一意制約違反時に model.ErrDuplicateKey を返す。
package repository

import (
	"context"

	"github.com/hitoshi/bitesync/internal/model"
)

// AccountRepository はIdentity Providerの認証情報の永続化インターフェース。
type AccountRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別しない）でアカウントを取得する。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	// FindByID は指定IDのアカウントを取得する。
	FindByID(ctx context.Context, id string) (*model.Account, error)
	// Create はアカウントを作成する。メールアドレス重複時はErrDuplicateKeyを返す。
	Create(ctx context.Context, account *model.Account) error
	// Delete はアカウントとそのユーザーに属する全データを削除する。
	// 該当アカウントがない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDの有効なセッションを取得する。期限切れの場合もErrNotFoundを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// LoginRepository はサインイン試行記録の永続化インターフェース。
type LoginRepository interface {
	// Record はサインイン試行を1件記録する。
	Record(ctx context.Context, record *model.LoginRecord) error
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
	// Insert はプロフィールを作成し、保存後の行を返す。
	// 同一IDの行が既にある場合はErrDuplicateKeyを返す。
	Insert(ctx context.Context, profile *model.UserProfile) (*model.UserProfile, error)
	// Update は指定されたフィールドのみを更新し、更新後の行を返す。
	Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.UserProfile, error)
}

// RoleRepository はロール選択肢の参照インターフェース。
type RoleRepository interface {
	// List はロールを名前順で返す。
	List(ctx context.Context) ([]model.Role, error)
}

// ScheduleRepository はスケジュールの永続化インターフェース。
type ScheduleRepository interface {
	// FindByUserID はユーザーのスケジュールを取得する。
	FindByUserID(ctx context.Context, userID string) (*model.UserSchedule, error)
	// Insert はスケジュールを作成し、保存後の行を返す。
	// 同一ユーザーの行が既にある場合はErrDuplicateKeyを返す。
	Insert(ctx context.Context, schedule *model.UserSchedule) (*model.UserSchedule, error)
	// Update はスケジュールの可変フィールドを更新し、保存後の行を返す。
	// id、user_id、created_atは変更しない。
	Update(ctx context.Context, schedule *model.UserSchedule) (*model.UserSchedule, error)
}

// CommitmentRepository は予定の永続化インターフェース。
// すべての操作はスケジュールIDでスコープされる。
type CommitmentRepository interface {
	// ListBySchedule はスケジュールの予定をcreated_at降順で返す。
	ListBySchedule(ctx context.Context, scheduleID string) ([]model.Commitment, error)
	// FindByID はスケジュール内の指定IDの予定を取得する。
	FindByID(ctx context.Context, scheduleID, id string) (*model.Commitment, error)
	// Create は予定を作成し、保存後の行を返す。
	Create(ctx context.Context, commitment *model.Commitment) (*model.Commitment, error)
	// Update は予定を更新し、保存後の行を返す。
	Update(ctx context.Context, commitment *model.Commitment) (*model.Commitment, error)
	// Delete はスケジュール内の指定IDの予定を削除する。
	Delete(ctx context.Context, scheduleID, id string) error
}

// ProjectRepository はプロジェクトの永続化インターフェース。
// すべての操作は所有ユーザーIDでスコープされる。
type ProjectRepository interface {
	// ListByUser はユーザーのプロジェクトをcreated_at昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]model.Project, error)
	// FindByID はユーザーが所有する指定IDのプロジェクトを取得する。
	FindByID(ctx context.Context, userID, id string) (*model.Project, error)
	// Create はプロジェクトを作成し、保存後の行を返す。
	Create(ctx context.Context, project *model.Project) (*model.Project, error)
	// Update はプロジェクトを更新し、保存後の行を返す。
	Update(ctx context.Context, project *model.Project) (*model.Project, error)
	// Delete はユーザーが所有する指定IDのプロジェクトを削除する。
	// タスクから参照されている場合はErrReferencedを返す。
	Delete(ctx context.Context, userID, id string) error
}

// TaskRepository はタスクの永続化インターフェース。
type TaskRepository interface {
	// ListByProject はプロジェクトのタスクをorder昇順、created_at昇順で返す。
	ListByProject(ctx context.Context, projectID string) ([]model.Task, error)
	// FindByIDForUser はユーザーが所有するプロジェクトに属するタスクを取得する。
	FindByIDForUser(ctx context.Context, userID, id string) (*model.Task, error)
	// CountByProject はプロジェクトのタスク数を返す。
	CountByProject(ctx context.Context, projectID string) (int, error)
	// NextOrder はプロジェクト内で次に割り当てるorder値を返す。
	NextOrder(ctx context.Context, projectID string) (int, error)
	// Create はタスクを作成し、保存後の行を返す。
	Create(ctx context.Context, task *model.Task) (*model.Task, error)
	// Update はタスクを更新し、保存後の行を返す。
	Update(ctx context.Context, task *model.Task) (*model.Task, error)
	// Delete は指定IDのタスクを削除する。
	Delete(ctx context.Context, id string) error
}
