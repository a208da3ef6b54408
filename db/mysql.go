package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"suanming_maya/config"

	_ "github.com/go-sql-driver/mysql"
)

var (
	DB *sql.DB // 数据库连接，未配置数据库时为nil
)

// InitMySQLWithConfig 使用配置初始化数据库连接池
func InitMySQLWithConfig(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", cfg.DB.DSN)
	if err != nil {
		return err
	}

	// 从配置读取连接池参数，提供默认值保护
	maxOpenConns := cfg.DB.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 50 // 默认最大连接数
	}

	maxIdleConns := cfg.DB.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10 // 默认最大空闲连接数
	}

	connMaxLifetime := cfg.DB.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 60 // 默认连接最大生命周期（分钟）
	}

	DB.SetMaxOpenConns(maxOpenConns)
	DB.SetMaxIdleConns(maxIdleConns)
	DB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Minute)

	return DB.Ping()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_results (
		request_id   VARCHAR(64)  NOT NULL PRIMARY KEY,
		requester_id VARCHAR(128) NOT NULL,
		created_at   DATETIME(3)  NOT NULL,
		overall      DOUBLE       NOT NULL,
		partial      TINYINT(1)   NOT NULL DEFAULT 0,
		categories   JSON         NOT NULL,
		result       JSON         NOT NULL,
		tokens       INT          NOT NULL DEFAULT 0,
		INDEX idx_requester_created (requester_id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS system_settings (
		setting_key   VARCHAR(64)  NOT NULL PRIMARY KEY,
		setting_value VARCHAR(255) NOT NULL,
		updated_at    DATETIME(3)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema 建表，已存在时跳过
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close 关闭数据库连接
func Close() error {
	if DB == nil {
		return nil
	}
	return DB.Close()
}
