package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/lib/pq"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `t.id, t.project_id, t.title, t.description,
	to_char(t.start_date, 'YYYY-MM-DD'), to_char(t.end_date, 'YYYY-MM-DD'),
	t.required_members, t.optional_members, t.priority, t.hours, t."order",
	t.recurring, t.hour_delay, t.created_at, t.updated_at`

func scanTask(row rowScanner) (*model.Task, error) {
	t := &model.Task{}
	var recurring pq.StringArray
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.StartDate, &t.EndDate,
		&t.RequiredMembers, &t.OptionalMembers, &t.Priority, &t.Hours, &t.Order,
		&recurring, &t.HourDelay, &t.CreatedAt, &t.UpdatedAt)
	if len(recurring) > 0 {
		t.Recurring = []string(recurring)
	}
	return t, err
}

// recurringParam は空の繰り返し指定をNULLとして保存する。
func recurringParam(days []string) any {
	if len(days) == 0 {
		return nil
	}
	return pq.StringArray(days)
}

// ListByProject はプロジェクトのタスクをorder昇順、created_at昇順で返す。
func (r *PostgresTaskRepo) ListByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t
		 WHERE t.project_id = $1
		 ORDER BY t."order", t.created_at`,
		projectID,
	)
	if err != nil {
		return nil, translateError("failed to list tasks", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, translateError("failed to scan task", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("failed to iterate tasks", err)
	}
	return tasks, nil
}

// FindByIDForUser はユーザーが所有するプロジェクトに属するタスクを取得する。
func (r *PostgresTaskRepo) FindByIDForUser(ctx context.Context, userID, id string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t
		 JOIN projects p ON p.id = t.project_id
		 WHERE p.user_id = $1 AND t.id = $2`,
		userID, id,
	))
	if err != nil {
		return nil, translateError("failed to find task", err)
	}
	return t, nil
}

// CountByProject はプロジェクトのタスク数を返す。
func (r *PostgresTaskRepo) CountByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE project_id = $1`,
		projectID,
	).Scan(&n)
	if err != nil {
		return 0, translateError("failed to count tasks", err)
	}
	return n, nil
}

// NextOrder はプロジェクト内で次に割り当てるorder値を返す。
func (r *PostgresTaskRepo) NextOrder(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX("order") + 1, 0) FROM tasks WHERE project_id = $1`,
		projectID,
	).Scan(&n)
	if err != nil {
		return 0, translateError("failed to compute next task order", err)
	}
	return n, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, t *model.Task) (*model.Task, error) {
	saved, err := scanTask(r.db.QueryRowContext(ctx,
		`WITH t AS (
		   INSERT INTO tasks (id, project_id, title, description, start_date, end_date,
		     required_members, optional_members, priority, hours, "order", recurring, hour_delay,
		     created_at, updated_at)
		   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		   RETURNING *
		 )
		 SELECT `+taskColumns+` FROM t`,
		t.ID, t.ProjectID, t.Title, t.Description, t.StartDate, t.EndDate,
		t.RequiredMembers, t.OptionalMembers, t.Priority, t.Hours, t.Order,
		recurringParam(t.Recurring), t.HourDelay, t.CreatedAt, t.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to insert task", err)
	}
	return saved, nil
}

// Update はタスクを更新する。project_idとcreated_atは変更しない。
func (r *PostgresTaskRepo) Update(ctx context.Context, t *model.Task) (*model.Task, error) {
	saved, err := scanTask(r.db.QueryRowContext(ctx,
		`WITH t AS (
		   UPDATE tasks
		   SET title = $2, description = $3, start_date = $4, end_date = $5,
		       required_members = $6, optional_members = $7, priority = $8, hours = $9,
		       "order" = $10, recurring = $11, hour_delay = $12, updated_at = $13
		   WHERE id = $1
		   RETURNING *
		 )
		 SELECT `+taskColumns+` FROM t`,
		t.ID, t.Title, t.Description, t.StartDate, t.EndDate,
		t.RequiredMembers, t.OptionalMembers, t.Priority, t.Hours,
		t.Order, recurringParam(t.Recurring), t.HourDelay, t.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to update task", err)
	}
	return saved, nil
}

// Delete は指定IDのタスクを削除する。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return translateError("failed to delete task", err)
	}
	return requireAffected("failed to delete task", result)
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
