package crawlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// scriptedSampler 依次返回预设的采样值,用尽后重复最后一个
type scriptedSampler struct {
	mu      sync.Mutex
	samples []ResourceSample
	calls   int
}

func (s *scriptedSampler) sample() (ResourceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	s.calls++
	return s.samples[i], nil
}

func TestCheckResourceAvailability(t *testing.T) {
	cfg := models.ResourceConfig{Enabled: true, SafetyThreshold: 300, CPULoadThreshold: 90, MaxWait: time.Second}

	tests := []struct {
		name     string
		cfg      models.ResourceConfig
		sample   ResourceSample
		want     bool
		pressure string
	}{
		{"资源充足", cfg, ResourceSample{AvailableMB: 4096, CPUPercent: 20}, true, "normal"},
		{"内存不足", cfg, ResourceSample{AvailableMB: 100, CPUPercent: 20}, false, "critical"},
		{"内存偏紧", cfg, ResourceSample{AvailableMB: 450, CPUPercent: 20}, true, "warning"},
		{"CPU过载", cfg, ResourceSample{AvailableMB: 4096, CPUPercent: 99}, false, "normal"},
		{"CPU检查禁用", models.ResourceConfig{Enabled: true, SafetyThreshold: 300, CPULoadThreshold: 200}, ResourceSample{AvailableMB: 4096, CPUPercent: 99}, true, "normal"},
		{"监控关闭", models.ResourceConfig{SafetyThreshold: 300}, ResourceSample{AvailableMB: 10}, true, "critical"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedSampler{samples: []ResourceSample{tt.sample}}
			rm := NewResourceMonitorWithSampler(tt.cfg, s.sample)
			ok, reason := rm.CheckResourceAvailability()
			if ok != tt.want {
				t.Errorf("CheckResourceAvailability = %v (%s), 期望 %v", ok, reason, tt.want)
			}
			if got := rm.GetMemoryStatus().MemoryPressure; got != tt.pressure {
				t.Errorf("MemoryPressure = %s, 期望 %s", got, tt.pressure)
			}
		})
	}
}

func TestWaitForCapacity(t *testing.T) {
	cfg := models.ResourceConfig{Enabled: true, SafetyThreshold: 300, CPULoadThreshold: 200, MaxWait: time.Second}

	t.Run("资源恢复后放行", func(t *testing.T) {
		s := &scriptedSampler{samples: []ResourceSample{{AvailableMB: 100}, {AvailableMB: 120}, {AvailableMB: 2048}}}
		rm := NewResourceMonitorWithSampler(cfg, s.sample)
		rm.recheck = time.Millisecond
		if err := rm.WaitForCapacity(context.Background()); err != nil {
			t.Fatalf("WaitForCapacity失败: %v", err)
		}
		if s.calls != 3 {
			t.Errorf("采样次数 = %d, 期望 3", s.calls)
		}
	})

	t.Run("等待超时后继续", func(t *testing.T) {
		c := cfg
		c.MaxWait = 20 * time.Millisecond
		s := &scriptedSampler{samples: []ResourceSample{{AvailableMB: 100}}}
		rm := NewResourceMonitorWithSampler(c, s.sample)
		rm.recheck = 5 * time.Millisecond
		if err := rm.WaitForCapacity(context.Background()); err != nil {
			t.Fatalf("超时后应放行, 实际 %v", err)
		}
	})

	t.Run("ctx取消", func(t *testing.T) {
		s := &scriptedSampler{samples: []ResourceSample{{AvailableMB: 100}}}
		rm := NewResourceMonitorWithSampler(cfg, s.sample)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := rm.WaitForCapacity(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("期望context.Canceled, 实际 %v", err)
		}
	})

	t.Run("nil监控器直接放行", func(t *testing.T) {
		var rm *ResourceMonitor
		if err := rm.WaitForCapacity(context.Background()); err != nil {
			t.Fatalf("nil监控器不应出错: %v", err)
		}
	})
}

func TestStartStopMonitoring(t *testing.T) {
	s := &scriptedSampler{samples: []ResourceSample{{AvailableMB: 100}, {AvailableMB: 4096}}}
	rm := NewResourceMonitorWithSampler(models.DefaultResourceConfig(), s.sample)
	rm.StartMonitoring(time.Millisecond)
	rm.StartMonitoring(time.Millisecond)
	defer rm.StopMonitoring()

	err := Until(context.Background(), time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
		return rm.GetMemoryStatus().AvailableMB == 4096, nil
	})
	if err != nil {
		t.Fatalf("后台采样未更新: %v", err)
	}
	rm.StopMonitoring()
	rm.StopMonitoring()
}
