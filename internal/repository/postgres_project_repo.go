package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用したプロジェクトリポジトリ。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `id, user_id, name, description, priority, hours, per, max_hours,
	to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'),
	created_at, updated_at`

func scanProject(row rowScanner) (*model.Project, error) {
	p := &model.Project{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Priority, &p.Hours, &p.Per,
		&p.MaxHours, &p.StartDate, &p.EndDate, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListByUser はユーザーのプロジェクトをcreated_at昇順で返す。
func (r *PostgresProjectRepo) ListByUser(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, translateError("failed to list projects", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, translateError("failed to scan project", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("failed to iterate projects", err)
	}
	return projects, nil
}

// FindByID はユーザーが所有する指定IDのプロジェクトを取得する。
func (r *PostgresProjectRepo) FindByID(ctx context.Context, userID, id string) (*model.Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = $1 AND id = $2`,
		userID, id,
	))
	if err != nil {
		return nil, translateError("failed to find project", err)
	}
	return p, nil
}

// Create はプロジェクトを作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, p *model.Project) (*model.Project, error) {
	saved, err := scanProject(r.db.QueryRowContext(ctx,
		`INSERT INTO projects (id, user_id, name, description, priority, hours, per, max_hours, start_date, end_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+projectColumns,
		p.ID, p.UserID, p.Name, p.Description, p.Priority, p.Hours, p.Per, p.MaxHours,
		p.StartDate, p.EndDate, p.CreatedAt, p.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to insert project", err)
	}
	return saved, nil
}

// Update はプロジェクトを更新する。
func (r *PostgresProjectRepo) Update(ctx context.Context, p *model.Project) (*model.Project, error) {
	saved, err := scanProject(r.db.QueryRowContext(ctx,
		`UPDATE projects
		 SET name = $3, description = $4, priority = $5, hours = $6, per = $7,
		     max_hours = $8, start_date = $9, end_date = $10, updated_at = $11
		 WHERE user_id = $1 AND id = $2
		 RETURNING `+projectColumns,
		p.UserID, p.ID, p.Name, p.Description, p.Priority, p.Hours, p.Per, p.MaxHours,
		p.StartDate, p.EndDate, p.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to update project", err)
	}
	return saved, nil
}

// Delete はユーザーが所有する指定IDのプロジェクトを削除する。
func (r *PostgresProjectRepo) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE user_id = $1 AND id = $2`,
		userID, id,
	)
	if err != nil {
		return translateError("failed to delete project", err)
	}
	return requireAffected("failed to delete project", result)
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)
