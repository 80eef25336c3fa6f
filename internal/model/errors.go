package model

import (
	"errors"
	"fmt"
)

// リポジトリ層が返す番兵エラー。
var (
	// ErrNotFound は検索条件に一致する行が存在しないことを表す。
	// 取得失敗とは区別され、作成処理の起点として扱われる。
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey は一意制約違反による挿入失敗を表す。
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrReferenced は他の行から参照されているため削除できないことを表す。
	ErrReferenced = errors.New("record is referenced")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, schedule, project, chat, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用。レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeStoreFailure       = "STORE_FAILURE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeRelayFailure       = "RELAY_FAILURE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeScheduleNotFound   = "SCHEDULE_NOT_FOUND"
	ErrCodeCommitmentNotFound = "COMMITMENT_NOT_FOUND"
	ErrCodeProjectNotFound    = "PROJECT_NOT_FOUND"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeProjectHasTasks    = "PROJECT_HAS_TASKS"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
)

// IsCode はerrがcodeを持つAPIErrorかどうかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewStoreFailureError はデータストア障害エラーを生成する。
// 原因はErrに保持し、ユーザーには一般的なメッセージのみを返す。
func NewStoreFailureError(op string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeStoreFailure,
		Message:  fmt.Sprintf("データの%sに失敗しました。", op),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度サインインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "サインインするか、別のメールアドレスを使用してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewRelayFailureError はチャット中継失敗エラーを生成する。
// 原因はログにのみ記録する。
func NewRelayFailureError(err error) *APIError {
	return &APIError{
		Code:     ErrCodeRelayFailure,
		Message:  "There was an error processing your request",
		Category: "chat",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "少し待ってから再度お試しください。",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンが無効です。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewScheduleNotFoundError はスケジュール未登録エラーを生成する。
func NewScheduleNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeScheduleNotFound,
		Message:  "スケジュールが登録されていません。",
		Category: "schedule",
		Action:   "先にスケジュールを保存してください。",
	}
}

// NewCommitmentNotFoundError は予定が見つからない場合のエラーを生成する。
func NewCommitmentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCommitmentNotFound,
		Message:  fmt.Sprintf("指定された予定が見つかりません: %s", id),
		Category: "schedule",
		Action:   "予定一覧を再読み込みしてください。",
	}
}

// NewProjectNotFoundError はプロジェクトが見つからない場合のエラーを生成する。
func NewProjectNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", id),
		Category: "project",
		Action:   "プロジェクト一覧を再読み込みしてください。",
	}
}

// NewTaskNotFoundError はタスクが見つからない場合のエラーを生成する。
func NewTaskNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", id),
		Category: "project",
		Action:   "タスク一覧を再読み込みしてください。",
	}
}

// NewProjectHasTasksError はタスクが残っているプロジェクトの削除を拒否するエラーを生成する。
func NewProjectHasTasksError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeProjectHasTasks,
		Message:  fmt.Sprintf("このプロジェクトには%d件のタスクが残っています。", count),
		Category: "project",
		Action:   "先にタスクを削除してから、プロジェクトを削除してください。",
	}
}
