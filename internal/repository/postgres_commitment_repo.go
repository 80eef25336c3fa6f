package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/bitesync/internal/model"
)

// PostgresCommitmentRepo はPostgreSQLを使用した予定リポジトリ。
type PostgresCommitmentRepo struct {
	db *sql.DB
}

// NewPostgresCommitmentRepo はPostgresCommitmentRepoを生成する。
func NewPostgresCommitmentRepo(db *sql.DB) *PostgresCommitmentRepo {
	return &PostgresCommitmentRepo{db: db}
}

// DATE列は文字列として扱うため、YYYY-MM-DD形式で取り出す。
const commitmentColumns = `id, schedule_id, type, flexibility, title,
	to_char(start_date, 'YYYY-MM-DD'), start_time,
	to_char(end_date, 'YYYY-MM-DD'), end_time,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommitment(row rowScanner) (*model.Commitment, error) {
	c := &model.Commitment{}
	err := row.Scan(&c.ID, &c.ScheduleID, &c.Type, &c.Flexibility, &c.Title,
		&c.StartDate, &c.StartTime, &c.EndDate, &c.EndTime, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// ListBySchedule はスケジュールの予定をcreated_at降順で返す。
func (r *PostgresCommitmentRepo) ListBySchedule(ctx context.Context, scheduleID string) ([]model.Commitment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commitmentColumns+` FROM commitments
		 WHERE schedule_id = $1
		 ORDER BY created_at DESC`,
		scheduleID,
	)
	if err != nil {
		return nil, translateError("failed to list commitments", err)
	}
	defer rows.Close()

	commitments := []model.Commitment{}
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, translateError("failed to scan commitment", err)
		}
		commitments = append(commitments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("failed to iterate commitments", err)
	}
	return commitments, nil
}

// FindByID はスケジュール内の指定IDの予定を取得する。
func (r *PostgresCommitmentRepo) FindByID(ctx context.Context, scheduleID, id string) (*model.Commitment, error) {
	c, err := scanCommitment(r.db.QueryRowContext(ctx,
		`SELECT `+commitmentColumns+` FROM commitments WHERE schedule_id = $1 AND id = $2`,
		scheduleID, id,
	))
	if err != nil {
		return nil, translateError("failed to find commitment", err)
	}
	return c, nil
}

// Create は予定を作成する。
func (r *PostgresCommitmentRepo) Create(ctx context.Context, c *model.Commitment) (*model.Commitment, error) {
	saved, err := scanCommitment(r.db.QueryRowContext(ctx,
		`INSERT INTO commitments (id, schedule_id, type, flexibility, title, start_date, start_time, end_date, end_time, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+commitmentColumns,
		c.ID, c.ScheduleID, c.Type, c.Flexibility, c.Title, c.StartDate, c.StartTime,
		c.EndDate, c.EndTime, c.CreatedAt, c.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to insert commitment", err)
	}
	return saved, nil
}

// Update は予定を更新する。
func (r *PostgresCommitmentRepo) Update(ctx context.Context, c *model.Commitment) (*model.Commitment, error) {
	saved, err := scanCommitment(r.db.QueryRowContext(ctx,
		`UPDATE commitments
		 SET type = $3, flexibility = $4, title = $5, start_date = $6, start_time = $7,
		     end_date = $8, end_time = $9, updated_at = $10
		 WHERE schedule_id = $1 AND id = $2
		 RETURNING `+commitmentColumns,
		c.ScheduleID, c.ID, c.Type, c.Flexibility, c.Title, c.StartDate, c.StartTime,
		c.EndDate, c.EndTime, c.UpdatedAt,
	))
	if err != nil {
		return nil, translateError("failed to update commitment", err)
	}
	return saved, nil
}

// Delete はスケジュール内の指定IDの予定を削除する。
func (r *PostgresCommitmentRepo) Delete(ctx context.Context, scheduleID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM commitments WHERE schedule_id = $1 AND id = $2`,
		scheduleID, id,
	)
	if err != nil {
		return translateError("failed to delete commitment", err)
	}
	return requireAffected("failed to delete commitment", result)
}

// compile-time interface check
var _ CommitmentRepository = (*PostgresCommitmentRepo)(nil)
