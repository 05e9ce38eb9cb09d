package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

func newState(t *testing.T, items ...string) *models.TraversalState {
	t.Helper()
	ids := make([]models.Identifier, len(items))
	for i, s := range items {
		ids[i] = models.Identifier(s)
	}
	st, err := models.NewTraversalState("demo", "https://example.com/list", models.SourceTagSearch, ids)
	if err != nil {
		t.Fatalf("创建状态失败: %v", err)
	}
	return st
}

// backends 为每种后端创建一个新的存储
func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建文件存储失败: %v", err)
	}
	ss, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("创建sqlite存储失败: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	return map[string]Store{
		"文件":     fs,
		"sqlite": ss,
		"内存":     NewMemoryStore(),
	}
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Load(ctx)
			if err != nil || got != nil {
				t.Fatalf("空存储Load() = %v, %v", got, err)
			}

			st := newState(t, "a", "b", "c")
			if err := s.Save(ctx, st); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			got, err = s.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.RunID != st.RunID || len(got.Items) != 3 || !got.InProgress {
				t.Errorf("读取结果不一致: %+v", got)
			}

			// 重复读取得到相同的剩余条目与游标
			again, _ := s.Load(ctx)
			if again.Cursor != got.Cursor || len(again.Remaining()) != len(got.Remaining()) {
				t.Error("相同存储的两次读取结果应一致")
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear() error = %v", err)
			}
			got, err = s.Load(ctx)
			if err != nil || got != nil {
				t.Errorf("清除后Load() = %v, %v", got, err)
			}
			// 重复清除不报错
			if err := s.Clear(ctx); err != nil {
				t.Errorf("重复Clear() error = %v", err)
			}
		})
	}
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Update(ctx, func(st *models.TraversalState) error { return nil })
			if !errors.Is(err, models.ErrNoActiveTraversal) {
				t.Fatalf("无状态时Update() error = %v", err)
			}

			if err := s.Save(ctx, newState(t, "a", "b")); err != nil {
				t.Fatal(err)
			}
			updated, err := s.Update(ctx, func(st *models.TraversalState) error {
				st.IsPaused = true
				st.Cursor = 1
				return nil
			})
			if err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if !updated.IsPaused || updated.Cursor != 1 {
				t.Errorf("Update返回值错误: %+v", updated)
			}
			got, _ := s.Load(ctx)
			if !got.IsPaused || got.Cursor != 1 {
				t.Errorf("Update未持久化: %+v", got)
			}

			// 回调出错时不写入
			sentinel := errors.New("放弃")
			_, err = s.Update(ctx, func(st *models.TraversalState) error {
				st.Cursor = 0
				return sentinel
			})
			if !errors.Is(err, sentinel) {
				t.Errorf("Update() error = %v, want sentinel", err)
			}
			got, _ = s.Load(ctx)
			if got.Cursor != 1 {
				t.Error("回调失败时状态不应改变")
			}

			// 违反不变量的修改被拒绝
			_, err = s.Update(ctx, func(st *models.TraversalState) error {
				st.Cursor = 5
				return nil
			})
			if err == nil {
				t.Error("游标越界的修改应该被拒绝")
			}
		})
	}
}

func TestStore_RejectsInvalidSave(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, nil); err == nil {
				t.Error("保存nil应该报错")
			}
			bad := newState(t, "a")
			bad.Cursor = 3
			if err := s.Save(ctx, bad); err == nil {
				t.Error("保存无效状态应该报错")
			}
		})
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fs.Path(), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.Load(ctx); !errors.Is(err, models.ErrStateCorrupt) {
		t.Fatalf("Load() error = %v, want ErrStateCorrupt", err)
	}

	st, err := LoadOrReset(ctx, fs)
	if err != nil || st != nil {
		t.Fatalf("LoadOrReset() = %v, %v", st, err)
	}
	if _, err := os.Stat(fs.Path()); !os.IsNotExist(err) {
		t.Error("损坏的状态文件应该被删除")
	}
}

func TestSQLiteStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	ss, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer ss.Close()

	if err := writeValue(ctx, ss.db, []byte(`{"inProgress":true,"items":[],"cursor":0}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := ss.Load(ctx); !errors.Is(err, models.ErrStateCorrupt) {
		t.Fatalf("Load() error = %v, want ErrStateCorrupt", err)
	}
	st, err := LoadOrReset(ctx, ss)
	if err != nil || st != nil {
		t.Fatalf("LoadOrReset() = %v, %v", st, err)
	}
}

func TestSQLiteStore_SharedAcrossConnections(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := a.Save(ctx, newState(t, "x", "y")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Update(ctx, func(st *models.TraversalState) error {
		st.IsPaused = true
		return nil
	}); err != nil {
		t.Fatalf("另一连接Update() error = %v", err)
	}
	got, err := a.Load(ctx)
	if err != nil || !got.IsPaused {
		t.Errorf("另一连接的修改不可见: %+v, %v", got, err)
	}
}

func TestSQLiteStore_OverlappingUpdatesAcrossStores(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	// 两个独立的存储模拟控制器进程与ctl进程
	ctrl, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()
	ctl, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ctl.Close()

	if err := ctrl.Save(ctx, newState(t, "a", "b", "c")); err != nil {
		t.Fatal(err)
	}

	inside := make(chan struct{})
	var ctrlErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, ctrlErr = ctrl.Update(ctx, func(st *models.TraversalState) error {
			close(inside)
			time.Sleep(100 * time.Millisecond)
			st.Cursor++
			return nil
		})
	}()

	<-inside
	_, ctlErr := ctl.Update(ctx, func(st *models.TraversalState) error {
		st.IsPaused = true
		return nil
	})
	wg.Wait()

	if ctrlErr != nil {
		t.Fatalf("控制器一侧Update() error = %v", ctrlErr)
	}
	if ctlErr != nil {
		t.Fatalf("ctl一侧Update() error = %v", ctlErr)
	}
	got, err := ctrl.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Cursor != 1 || !got.IsPaused {
		t.Errorf("两次修改都应保留: cursor=%d paused=%v", got.Cursor, got.IsPaused)
	}
}

func TestStore_ConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Save(ctx, newState(t, "a")); err != nil {
				t.Fatal(err)
			}

			// 偶数次切换后暂停标志应回到false
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.Update(ctx, func(st *models.TraversalState) error {
						st.IsPaused = !st.IsPaused
						return nil
					})
					if err != nil {
						t.Errorf("Update() error = %v", err)
					}
				}()
			}
			wg.Wait()

			got, _ := s.Load(ctx)
			if got.IsPaused {
				t.Error("并发切换结果不正确,存在丢失的更新")
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		backend string
		wantErr bool
	}{
		{"默认文件", "", false},
		{"sqlite", BackendSQLite, false},
		{"内存", BackendMemory, false},
		{"未知", "redis", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(Options{Backend: tt.backend, Dir: dir})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open() error = %v, wantErr %v", err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
