package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore 以sqlite保存状态,Update在事务内完成读-改-写,可供多个进程共享
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开(或创建)数据库
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建状态目录失败: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("打开sqlite失败: %w", err)
	}
	// 单连接: 保证:memory:数据库在连接之间可见,同时串行化本进程内的事务
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置busy_timeout失败: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// dsn 文件数据库以IMMEDIATE方式开启事务: 读-改-写开始即持有写锁,
// 另一进程的写事务在busy_timeout内排队等待,而不是升级写锁时直接SQLITE_BUSY
func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_txlock=immediate&_pragma=busy_timeout(5000)"
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readValue(ctx context.Context, q queryer) ([]byte, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", Key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询状态失败: %w", err)
	}
	return []byte(value), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeValue(ctx context.Context, e execer, data []byte) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("写入状态失败: %w", err)
	}
	return nil
}

// Load 读取状态
func (s *SQLiteStore) Load(ctx context.Context) (*models.TraversalState, error) {
	raw, err := readValue(ctx, s.db)
	if err != nil || raw == nil {
		return nil, err
	}
	return models.ParseTraversalState(raw)
}

// Save 保存状态
func (s *SQLiteStore) Save(ctx context.Context, st *models.TraversalState) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	return writeValue(ctx, s.db, data)
}

// Clear 删除状态
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", Key); err != nil {
		return fmt.Errorf("删除状态失败: %w", err)
	}
	return nil
}

// Update 事务内读-改-写
func (s *SQLiteStore) Update(ctx context.Context, fn func(*models.TraversalState) error) (*models.TraversalState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	raw, err := readValue(ctx, tx)
	if err != nil {
		return nil, err
	}
	st, data, err := applyUpdate(raw, fn)
	if err != nil {
		return nil, err
	}
	if err := writeValue(ctx, tx, data); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}
	return st, nil
}

// Close 关闭数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
