// Package store 持久化遍历状态
//
// 每次页面导航都会销毁运行上下文,跨步骤的协调全部经由这里的单一键值记录完成:
// 控制器在页面加载时读取一次,在每次状态转移时写入。
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// Key 遍历状态的固定键
const Key = "listwalk.traversal"

// Store 遍历状态存储
//
// Load 在无状态时返回 (nil, nil);记录无法解析或不满足不变量时返回 models.ErrStateCorrupt。
// Update 以读-改-写方式修改现有状态,无状态时返回 models.ErrNoActiveTraversal。
type Store interface {
	Load(ctx context.Context) (*models.TraversalState, error)
	Save(ctx context.Context, st *models.TraversalState) error
	Clear(ctx context.Context) error
	Update(ctx context.Context, fn func(st *models.TraversalState) error) (*models.TraversalState, error)
	Close() error
}

// 后端类型
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options 存储配置
type Options struct {
	Backend string `mapstructure:"backend"` // file / sqlite / memory
	Dir     string `mapstructure:"dir"`     // 状态目录
}

// Open 按配置打开存储
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(opts.Dir, "listwalk.db"))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("未知的存储后端: %s (有效值: file, sqlite, memory)", opts.Backend)
	}
}

// LoadOrReset 读取状态,损坏时清除并视为无状态
func LoadOrReset(ctx context.Context, s Store) (*models.TraversalState, error) {
	st, err := s.Load(ctx)
	if errors.Is(err, models.ErrStateCorrupt) {
		if cerr := s.Clear(ctx); cerr != nil {
			return nil, fmt.Errorf("清除损坏状态失败: %w", cerr)
		}
		return nil, nil
	}
	return st, err
}

// encode 写入前校验,保证存储中不会出现违反不变量的记录
func encode(st *models.TraversalState) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("遍历状态不能为空")
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("拒绝保存无效状态: %w", err)
	}
	return st.ToJSON()
}

// applyUpdate Update的公共部分: 解析、回调、校验、编码
func applyUpdate(raw []byte, fn func(*models.TraversalState) error) (*models.TraversalState, []byte, error) {
	if raw == nil {
		return nil, nil, models.ErrNoActiveTraversal
	}
	st, err := models.ParseTraversalState(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := fn(st); err != nil {
		return nil, nil, err
	}
	st.Touch()
	data, err := encode(st)
	if err != nil {
		return nil, nil, err
	}
	return st, data, nil
}
