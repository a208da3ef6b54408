package utils

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

// IsSQLNoRowsError 检查错误是否为SQL无结果错误
func IsSQLNoRowsError(err error) bool {
	return err != nil && (errors.Is(err, sql.ErrNoRows) || err.Error() == "sql: no rows in result set")
}

// IsDuplicateKeyError 主键冲突（MySQL 1062）
func IsDuplicateKeyError(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
