package crawlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSample 一次资源采样
type ResourceSample struct {
	AvailableMB int64   // 系统可用内存(MB)
	CPUPercent  float64 // 全部核心平均使用率
}

// Sampler 资源采样函数
type Sampler func() (ResourceSample, error)

// ResourceMonitor 系统资源监控器
// 职责: 周期性采样内存和CPU,在资源紧张时推迟下一次导航
type ResourceMonitor struct {
	config models.ResourceConfig
	sample Sampler

	last ResourceSample
	mu   sync.RWMutex

	// 监控控制
	cancelFunc context.CancelFunc
	isRunning  bool
	runMu      sync.Mutex

	// 资源不足时的复查间隔
	recheck time.Duration
}

// MemoryStatus 资源状态信息
type MemoryStatus struct {
	AvailableMB     int64
	CPUPercent      float64
	SafetyThreshold int64
	MemoryPressure  string // normal / warning / critical
}

// NewResourceMonitor 创建基于gopsutil的资源监控器
func NewResourceMonitor(config models.ResourceConfig) *ResourceMonitor {
	return NewResourceMonitorWithSampler(config, systemSample)
}

// NewResourceMonitorWithSampler 使用自定义采样函数创建监控器
func NewResourceMonitorWithSampler(config models.ResourceConfig, sampler Sampler) *ResourceMonitor {
	rm := &ResourceMonitor{
		config:  config,
		sample:  sampler,
		recheck: time.Second,
	}
	rm.Refresh()
	if rm.last.AvailableMB > 0 {
		log.Debug().Msgf("系统可用内存: %dMB", rm.last.AvailableMB)
	}
	return rm
}

// systemSample 读取真实系统内存与CPU使用率
func systemSample() (ResourceSample, error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("获取系统内存失败: %w", err)
	}

	// 100毫秒采样间隔,perCPU=false返回平均值
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("获取CPU使用率失败: %w", err)
	}
	s := ResourceSample{AvailableMB: int64(vmStat.Available / (1024 * 1024))}
	if len(percentages) > 0 {
		s.CPUPercent = percentages[0]
	}
	return s, nil
}

// Refresh 立即采样一次
// 采样失败时保留上一次的数据
func (rm *ResourceMonitor) Refresh() {
	s, err := rm.sample()
	if err != nil {
		log.Warn().Err(err).Msg("资源采样失败")
		return
	}
	rm.mu.Lock()
	rm.last = s
	rm.mu.Unlock()
}

// StartMonitoring 启动后台采样,重复调用幂等
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	if rm.isRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rm.Refresh()
		}
	}
}

// StopMonitoring 停止后台采样
func (rm *ResourceMonitor) StopMonitoring() {
	rm.runMu.Lock()
	defer rm.runMu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}

// CheckResourceAvailability 检查当前资源是否允许继续导航
// 返回ok(是否允许)和reason(不允许时的原因)
func (rm *ResourceMonitor) CheckResourceAvailability() (ok bool, reason string) {
	if !rm.config.Enabled {
		return true, ""
	}

	rm.mu.RLock()
	s := rm.last
	rm.mu.RUnlock()

	if s.AvailableMB < rm.config.SafetyThreshold {
		return false, fmt.Sprintf("内存不足(当前%dMB)", s.AvailableMB)
	}

	// 阈值 >= 200 视为禁用CPU检查
	if rm.config.CPULoadThreshold < 200 && s.CPUPercent > float64(rm.config.CPULoadThreshold) {
		return false, fmt.Sprintf("CPU负载过高(当前%.1f%%)", s.CPUPercent)
	}
	return true, ""
}

// GetMemoryStatus 获取当前资源状态
func (rm *ResourceMonitor) GetMemoryStatus() MemoryStatus {
	rm.mu.RLock()
	s := rm.last
	rm.mu.RUnlock()

	var pressure string
	switch {
	case s.AvailableMB < rm.config.SafetyThreshold:
		pressure = "critical"
	case s.AvailableMB < rm.config.SafetyThreshold*2:
		pressure = "warning"
	default:
		pressure = "normal"
	}

	return MemoryStatus{
		AvailableMB:     s.AvailableMB,
		CPUPercent:      s.CPUPercent,
		SafetyThreshold: rm.config.SafetyThreshold,
		MemoryPressure:  pressure,
	}
}

// WaitForCapacity 在资源紧张时等待恢复
// 超过MaxWait后放行并记录警告,ctx取消时返回ctx.Err()
func (rm *ResourceMonitor) WaitForCapacity(ctx context.Context) error {
	if rm == nil || !rm.config.Enabled {
		return nil
	}

	ok, reason := rm.CheckResourceAvailability()
	if ok {
		return nil
	}
	log.Warn().Msgf("⏳ %s,推迟导航", reason)

	deadline := time.Now().Add(rm.config.MaxWait)
	for time.Now().Before(deadline) {
		if err := Sleep(ctx, rm.recheck); err != nil {
			return err
		}
		rm.Refresh()
		if ok, reason = rm.CheckResourceAvailability(); ok {
			log.Info().Msg("资源已恢复,继续导航")
			return nil
		}
	}

	log.Warn().Msgf("等待资源恢复超时(%v): %s,继续导航", rm.config.MaxWait, reason)
	return nil
}
