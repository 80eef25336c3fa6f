// Package cleanup は期限切れセッションと古いサインイン記録の定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はサインイン記録の既定の保持日数。
const DefaultRetentionDays = 90

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Sweeper はプロセス内キャッシュの期限切れエントリを削除する。
type Sweeper interface {
	Sweep() int
}

// CleanupJob は期限切れデータの削除ジョブ。
// 削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	sweepers      []Sweeper
	RetentionDays int // サインイン記録の保持日数
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使う。
func NewCleanupJob(db Executor, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: retentionDays,
	}
}

// AddSweeper はRunのたびに呼び出すSweeperを登録する。
func (j *CleanupJob) AddSweeper(s Sweeper) {
	j.sweepers = append(j.sweepers, s)
}

// Run は期限切れセッションと保持期間を超過したサインイン記録を削除する。
// 一方の削除に失敗してももう一方は実行し、両方のエラーをまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, sessErr := j.exec(ctx, "sessions",
		`DELETE FROM sessions WHERE expires_at < now()`)

	interval := fmt.Sprintf("%d days", j.RetentionDays)
	logins, loginErr := j.exec(ctx, "user_logins",
		`DELETE FROM user_logins WHERE created_at < now() - $1::interval`, interval)

	swept := 0
	for _, s := range j.sweepers {
		swept += s.Sweep()
	}

	if err := errors.Join(sessErr, loginErr); err != nil {
		return err
	}

	j.logger.Info("cleanup job completed",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_logins", logins),
		slog.Int("swept_cache_entries", swept),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はRunを即時に1回実行し、以降intervalごとにctxが終了するまで繰り返す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	Every(ctx, interval, func(ctx context.Context) {
		if err := j.Run(ctx); err != nil {
			j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
		}
	})
}

func (j *CleanupJob) exec(ctx context.Context, table, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("cleanup delete failed",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to clean up %s: %w", table, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows for %s: %w", table, err)
	}
	return n, nil
}

// Every はfnを即時に1回実行し、以降intervalごとにctxが終了するまで繰り返す。
// ctxが終了するまでブロックする。
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
