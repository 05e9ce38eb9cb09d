package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// FileStore 以JSON文件保存状态,写入使用临时文件+重命名保证原子性
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore 创建文件存储
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "state"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建状态目录失败: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, Key+".json")}, nil
}

// Path 状态文件路径
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) readRaw() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取状态文件失败: %w", err)
	}
	return data, nil
}

func (f *FileStore) writeRaw(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".listwalk-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("替换状态文件失败: %w", err)
	}
	return nil
}

// Load 读取状态
func (f *FileStore) Load(ctx context.Context) (*models.TraversalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.readRaw()
	if err != nil || data == nil {
		return nil, err
	}
	return models.ParseTraversalState(data)
}

// Save 保存状态
func (f *FileStore) Save(ctx context.Context, st *models.TraversalState) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeRaw(data)
}

// Clear 删除状态文件
func (f *FileStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除状态文件失败: %w", err)
	}
	return nil
}

// Update 读-改-写
// 互斥锁只覆盖本进程;跨进程的 ctl 命令依赖重命名的原子性,需要严格串行时使用sqlite后端
func (f *FileStore) Update(ctx context.Context, fn func(*models.TraversalState) error) (*models.TraversalState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := f.readRaw()
	if err != nil {
		return nil, err
	}
	st, data, err := applyUpdate(raw, fn)
	if err != nil {
		return nil, err
	}
	if err := f.writeRaw(data); err != nil {
		return nil, err
	}
	return st, nil
}

// Close 无操作
func (f *FileStore) Close() error { return nil }
