package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ（usersテーブル）。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, name, role, team, created_at`

func scanProfile(row *sql.Row) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.Team, &p.CreatedAt)
	return p, err
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はErrNotFoundを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err != nil {
		return nil, translateError("failed to find profile", err)
	}
	return p, nil
}

// Insert はプロフィールを作成する。
// ON CONFLICTは使わず、一意制約違反をErrDuplicateKeyとして呼び出し元に返す。
func (r *PostgresProfileRepo) Insert(ctx context.Context, profile *model.UserProfile) (*model.UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, role, team, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+profileColumns,
		profile.ID, profile.Email, profile.Name, profile.Role, profile.Team, profile.CreatedAt,
	))
	if err != nil {
		return nil, translateError("failed to insert profile", err)
	}
	return p, nil
}

// Update は指定されたフィールドのみを更新する。空文字列の名前はNULLとして保存する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET name = CASE WHEN $2::text IS NULL THEN name ELSE NULLIF($2::text, '') END,
		     role = COALESCE($3, role),
		     team = COALESCE($4, team)
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, patch.Name, patch.Role, patch.Team,
	))
	if err != nil {
		return nil, translateError("failed to update profile", err)
	}
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)

// PostgresRoleRepo はPostgreSQLを使用したロールリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// List はロールを名前順で返す。
func (r *PostgresRoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, role_name FROM roles ORDER BY role_name`)
	if err != nil {
		return nil, translateError("failed to list roles", err)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.RoleName); err != nil {
			return nil, translateError("failed to scan role", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("failed to iterate roles", err)
	}
	return roles, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
