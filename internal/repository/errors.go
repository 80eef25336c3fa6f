package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/bitesync/internal/model"
	"github.com/lib/pq"
)

// PostgreSQLのSQLSTATEコード
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// translateError はドライバのエラーをリポジトリの番兵エラーに変換する。
// 変換できないエラーはopを付けてラップする。
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w (%s)", op, model.ErrDuplicateKey, pqErr.Constraint)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s)", op, model.ErrReferenced, pqErr.Constraint)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// requireAffected は更新・削除の影響行数が0の場合にErrNotFoundを返す。
func requireAffected(op string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get rows affected: %w", op, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
