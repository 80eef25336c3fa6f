// Package auth はメールアドレスとパスワードによるサインアップ・サインイン、
// セッション管理、セッション変化の通知を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/hitoshi/bitesync/internal/repository"
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordLength = 72
	maxFullNameLength = 100
)

// SignUpMetadata はサインアップ時に保存する付加情報。
type SignUpMetadata struct {
	FullName string
}

// LoginContext はサインイン試行の記録に使う接続情報。
// PreviousTokenはサインイン前に保持していたセッショントークン（あれば）。
type LoginContext struct {
	IP            string
	UserAgent     string
	PreviousToken string
}

// SignInResult はサインインで発行されたセッションとトークン。
type SignInResult struct {
	Session *model.Session
	Token   string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionSecret []byte
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts    repository.AccountRepository
	sessionRepo repository.SessionRepository
	logins      repository.LoginRepository
	notifier    *Notifier
	config      ServiceConfig
	dummyHash   []byte
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	sessionRepo repository.SessionRepository,
	logins repository.LoginRepository,
	notifier *Notifier,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	// 存在しないメールアドレスでも照合時間をそろえるためのハッシュ
	dummy, _ := bcrypt.GenerateFromPassword([]byte("bitesync-dummy-password"), config.BcryptCost)
	return &Service{
		accounts:    accounts,
		sessionRepo: sessionRepo,
		logins:      logins,
		notifier:    notifier,
		config:      config,
		dummyHash:   dummy,
		now:         time.Now,
	}
}

// Subscribe はセッション変化の通知を購読する。
func (s *Service) Subscribe(l Listener) (unsubscribe func()) {
	return s.notifier.Subscribe(l)
}

// SignUp はアカウントを作成する。
// メールアドレスが登録済みの場合はEMAIL_TAKENを返す。
func (s *Service) SignUp(ctx context.Context, email, password string, meta SignUpMetadata) (*model.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return nil, model.NewValidationError(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}
	fullName := strings.TrimSpace(meta.FullName)
	if len([]rune(fullName)) > maxFullNameLength {
		return nil, model.NewValidationError("full_name is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		CreatedAt:    s.now(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, model.ErrDuplicateKey) {
			return nil, model.NewEmailTakenError()
		}
		return nil, model.NewStoreFailureError("保存", err)
	}

	slog.Info("account created",
		slog.String("user_id", account.ID),
	)
	return account, nil
}

// SignIn は認証情報を検証してセッションを発行する。
// メールアドレス未登録とパスワード不一致は同じエラーを返す。
// 試行は成否にかかわらず記録するが、記録の失敗はサインインを失敗させない。
func (s *Service) SignIn(ctx context.Context, email, password string, lc LoginContext) (*SignInResult, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	account, err := s.accounts.FindByEmail(ctx, normalized)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, model.NewStoreFailureError("取得", err)
	}

	if account == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.recordLogin(ctx, nil, normalized, lc, false)
		return nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, &account.ID, normalized, lc, false)
		return nil, model.NewInvalidCredentialsError()
	}

	previous := s.replacePrevious(ctx, lc.PreviousToken)

	session, err := s.createSession(ctx, account)
	if err != nil {
		return nil, model.NewStoreFailureError("保存", err)
	}
	token, err := GenerateToken(session, s.config.SessionSecret)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, &account.ID, normalized, lc, true)
	slog.Info("user signed in",
		slog.String("user_id", account.ID),
	)

	s.notifier.Publish(SessionEvent{Kind: SessionSignedIn, Session: session, Previous: previous})
	return &SignInResult{Session: session, Token: token}, nil
}

// CurrentSession はトークンに対応する有効なセッションを返す。
// トークンが空・不正・期限切れ、またはセッションが失効済みの場合はnil, nilを返す。
func (s *Service) CurrentSession(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := ParseToken(token, s.config.SessionSecret, s.now())
	if err != nil {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session.UserID != claims.Subject {
		return nil, nil
	}
	return session, nil
}

// SignOut はトークンに対応するセッションを破棄する。
// 既に無効なトークンの場合は何もしない。
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("user_id", session.UserID))
	s.notifier.Publish(SessionEvent{Kind: SessionSignedOut, Session: session})
	return nil
}

// replacePrevious はサインイン前のセッションを破棄し、そのIdentityを返す。
func (s *Service) replacePrevious(ctx context.Context, token string) *model.Identity {
	prev, err := s.CurrentSession(ctx, token)
	if err != nil || prev == nil {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, prev.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		slog.Warn("failed to delete replaced session",
			slog.String("user_id", prev.UserID),
			slog.String("error", err.Error()),
		)
	}
	identity := prev.Identity()
	return &identity
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, account *model.Account) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    account.ID,
		Email:     account.Email,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

func (s *Service) recordLogin(ctx context.Context, userID *string, email string, lc LoginContext, success bool) {
	if s.logins == nil {
		return
	}
	err := s.logins.Record(ctx, &model.LoginRecord{
		ID:         uuid.New().String(),
		UserID:     userID,
		Email:      email,
		LoginIP:    lc.IP,
		DeviceInfo: lc.UserAgent,
		Success:    success,
		CreatedAt:  s.now(),
	})
	if err != nil {
		slog.Warn("failed to record login attempt",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}
}

// normalizeEmail はメールアドレスを小文字化して形式を検証する。
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", model.NewValidationError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewValidationError("email is invalid")
	}
	return email, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
