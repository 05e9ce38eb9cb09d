package store

import (
	"context"
	"sync"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// MemoryStore 内存存储,保存序列化后的字节以便模拟损坏
type MemoryStore struct {
	mu  sync.Mutex
	raw []byte

	saves int
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load 读取状态
func (m *MemoryStore) Load(ctx context.Context) (*models.TraversalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.raw == nil {
		return nil, nil
	}
	return models.ParseTraversalState(m.raw)
}

// Save 保存状态
func (m *MemoryStore) Save(ctx context.Context, st *models.TraversalState) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = data
	m.saves++
	return nil
}

// Clear 清除状态
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = nil
	return nil
}

// Update 读-改-写
func (m *MemoryStore) Update(ctx context.Context, fn func(*models.TraversalState) error) (*models.TraversalState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, data, err := applyUpdate(m.raw, fn)
	if err != nil {
		return nil, err
	}
	m.raw = data
	m.saves++
	return st, nil
}

// Close 无操作
func (m *MemoryStore) Close() error { return nil }

// SetRaw 直接写入原始字节(测试用)
func (m *MemoryStore) SetRaw(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw = data
}

// Saves 写入次数
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
