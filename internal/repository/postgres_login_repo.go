package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
)

// PostgresLoginRepo はPostgreSQLを使用したサインイン記録リポジトリ。
type PostgresLoginRepo struct {
	db *sql.DB
}

// NewPostgresLoginRepo はPostgresLoginRepoを生成する。
func NewPostgresLoginRepo(db *sql.DB) *PostgresLoginRepo {
	return &PostgresLoginRepo{db: db}
}

// Record はサインイン試行を1件記録する。
func (r *PostgresLoginRepo) Record(ctx context.Context, record *model.LoginRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_logins (id, user_id, email, login_ip, device_info, success, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.UserID, record.Email, record.LoginIP, record.DeviceInfo, record.Success, record.CreatedAt,
	)
	return translateError("failed to record login", err)
}

// compile-time interface check
var _ LoginRepository = (*PostgresLoginRepo)(nil)
