package models

import (
	"fmt"
	"time"
)

// JitterConfig 随机节奏参数
type JitterConfig struct {
	BurstMin      int           `mapstructure:"burst_min"`       // 每轮小幅滚动次数下限
	BurstMax      int           `mapstructure:"burst_max"`       // 每轮小幅滚动次数上限
	StepMin       float64       `mapstructure:"step_min"`        // 单次滚动占视口高度比例下限
	StepMax       float64       `mapstructure:"step_max"`        // 单次滚动占视口高度比例上限
	ShortDelayMin time.Duration `mapstructure:"short_delay_min"` // 小幅滚动间隔
	ShortDelayMax time.Duration `mapstructure:"short_delay_max"`
	ReadPauseMin  time.Duration `mapstructure:"read_pause_min"` // 每轮结束后的"阅读"停顿
	ReadPauseMax  time.Duration `mapstructure:"read_pause_max"`
}

// DefaultJitterConfig 默认节奏
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		BurstMin:      3,
		BurstMax:      10,
		StepMin:       0.20,
		StepMax:       0.30,
		ShortDelayMin: 80 * time.Millisecond,
		ShortDelayMax: 250 * time.Millisecond,
		ReadPauseMin:  1200 * time.Millisecond,
		ReadPauseMax:  3 * time.Second,
	}
}

// Validate 验证节奏参数
func (j JitterConfig) Validate() error {
	if j.BurstMin < 1 || j.BurstMax < j.BurstMin {
		return fmt.Errorf("滚动次数范围无效: [%d, %d]", j.BurstMin, j.BurstMax)
	}
	if j.StepMin <= 0 || j.StepMax < j.StepMin || j.StepMax > 1 {
		return fmt.Errorf("滚动比例范围无效: [%.2f, %.2f]", j.StepMin, j.StepMax)
	}
	if j.ShortDelayMin < 0 || j.ShortDelayMax < j.ShortDelayMin {
		return fmt.Errorf("滚动间隔范围无效: [%v, %v]", j.ShortDelayMin, j.ShortDelayMax)
	}
	if j.ReadPauseMin < 0 || j.ReadPauseMax < j.ReadPauseMin {
		return fmt.Errorf("阅读停顿范围无效: [%v, %v]", j.ReadPauseMin, j.ReadPauseMax)
	}
	return nil
}

// HarvestConfig 虚拟列表采集参数
type HarvestConfig struct {
	TriggerThreshold  int           `mapstructure:"trigger_threshold"`   // 每新增多少条尝试一次"加载更多"
	SettleDelay       time.Duration `mapstructure:"settle_delay"`        // 触发"加载更多"后的等待
	MaxScrollAttempts int           `mapstructure:"max_scroll_attempts"` // 滚动轮数上限
	MaxIdleScrolls    int           `mapstructure:"max_idle_scrolls"`    // 连续空转轮数上限
	Jitter            JitterConfig  `mapstructure:"jitter"`
}

// DefaultHarvestConfig 默认采集参数
func DefaultHarvestConfig() HarvestConfig {
	return HarvestConfig{
		TriggerThreshold:  15,
		SettleDelay:       2 * time.Second,
		MaxScrollAttempts: 200,
		MaxIdleScrolls:    8,
		Jitter:            DefaultJitterConfig(),
	}
}

// Merge 用o中的非零字段覆盖当前值,用于站点级调参
func (h HarvestConfig) Merge(o HarvestConfig) HarvestConfig {
	if o.TriggerThreshold > 0 {
		h.TriggerThreshold = o.TriggerThreshold
	}
	if o.SettleDelay > 0 {
		h.SettleDelay = o.SettleDelay
	}
	if o.MaxScrollAttempts > 0 {
		h.MaxScrollAttempts = o.MaxScrollAttempts
	}
	if o.MaxIdleScrolls > 0 {
		h.MaxIdleScrolls = o.MaxIdleScrolls
	}
	j := o.Jitter
	if j.BurstMin > 0 {
		h.Jitter.BurstMin = j.BurstMin
	}
	if j.BurstMax > 0 {
		h.Jitter.BurstMax = j.BurstMax
	}
	if j.StepMin > 0 {
		h.Jitter.StepMin = j.StepMin
	}
	if j.StepMax > 0 {
		h.Jitter.StepMax = j.StepMax
	}
	if j.ShortDelayMin > 0 {
		h.Jitter.ShortDelayMin = j.ShortDelayMin
	}
	if j.ShortDelayMax > 0 {
		h.Jitter.ShortDelayMax = j.ShortDelayMax
	}
	if j.ReadPauseMin > 0 {
		h.Jitter.ReadPauseMin = j.ReadPauseMin
	}
	if j.ReadPauseMax > 0 {
		h.Jitter.ReadPauseMax = j.ReadPauseMax
	}
	return h
}

// Validate 验证采集参数
func (h HarvestConfig) Validate() error {
	if h.TriggerThreshold < 1 {
		return fmt.Errorf("trigger_threshold必须大于0,当前值: %d", h.TriggerThreshold)
	}
	if h.MaxScrollAttempts < 1 {
		return fmt.Errorf("max_scroll_attempts必须大于0,当前值: %d", h.MaxScrollAttempts)
	}
	if h.MaxIdleScrolls < 1 {
		return fmt.Errorf("max_idle_scrolls必须大于0,当前值: %d", h.MaxIdleScrolls)
	}
	return h.Jitter.Validate()
}

// TableConfig 增量表格采集参数
type TableConfig struct {
	ScrollPixels      int           `mapstructure:"scroll_pixels"`       // 每轮滚动像素
	RowIdleTimeout    time.Duration `mapstructure:"row_idle_timeout"`    // 新行防抖超时
	MaxScrollAttempts int           `mapstructure:"max_scroll_attempts"` // 滚动轮数上限
	MaxIdleCycles     int           `mapstructure:"max_idle_cycles"`     // 连续无新行轮数上限
	MaxWait           time.Duration `mapstructure:"max_wait"`            // 整体等待上限
}

// DefaultTableConfig 默认表格采集参数
func DefaultTableConfig() TableConfig {
	return TableConfig{
		ScrollPixels:      600,
		RowIdleTimeout:    1500 * time.Millisecond,
		MaxScrollAttempts: 80,
		MaxIdleCycles:     5,
		MaxWait:           3 * time.Minute,
	}
}

// Merge 用o中的非零字段覆盖当前值
func (t TableConfig) Merge(o TableConfig) TableConfig {
	if o.ScrollPixels > 0 {
		t.ScrollPixels = o.ScrollPixels
	}
	if o.RowIdleTimeout > 0 {
		t.RowIdleTimeout = o.RowIdleTimeout
	}
	if o.MaxScrollAttempts > 0 {
		t.MaxScrollAttempts = o.MaxScrollAttempts
	}
	if o.MaxIdleCycles > 0 {
		t.MaxIdleCycles = o.MaxIdleCycles
	}
	if o.MaxWait > 0 {
		t.MaxWait = o.MaxWait
	}
	return t
}

// Validate 验证表格采集参数
func (t TableConfig) Validate() error {
	if t.ScrollPixels < 1 {
		return fmt.Errorf("scroll_pixels必须大于0")
	}
	if t.RowIdleTimeout <= 0 || t.MaxWait <= 0 {
		return fmt.Errorf("row_idle_timeout和max_wait必须大于0")
	}
	if t.MaxScrollAttempts < 1 || t.MaxIdleCycles < 1 {
		return fmt.Errorf("max_scroll_attempts和max_idle_cycles必须大于0")
	}
	return nil
}

// TraversalConfig 遍历控制参数
type TraversalConfig struct {
	MaxItems        int           `mapstructure:"max_items"`         // 默认采集上限
	PollInterval    time.Duration `mapstructure:"poll_interval"`     // 暂停期间轮询间隔
	ElementTimeout  time.Duration `mapstructure:"element_timeout"`   // 等待元素超时
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout"` // 等待页面加载超时
	StableWindow    time.Duration `mapstructure:"stable_window"`     // 元素稳定判定窗口
	PauseKey        string        `mapstructure:"pause_key"`         // 页面内暂停/继续快捷键
	StopKey         string        `mapstructure:"stop_key"`          // 页面内停止快捷键
}

// DefaultTraversalConfig 默认遍历参数
func DefaultTraversalConfig() TraversalConfig {
	return TraversalConfig{
		MaxItems:        50,
		PollInterval:    2 * time.Second,
		ElementTimeout:  15 * time.Second,
		PageLoadTimeout: 30 * time.Second,
		StableWindow:    800 * time.Millisecond,
		PauseKey:        "F8",
		StopKey:         "F9",
	}
}

// Validate 验证遍历参数
func (t TraversalConfig) Validate() error {
	if t.MaxItems < 1 || t.MaxItems > 10000 {
		return fmt.Errorf("max_items必须在1-10000之间,当前值: %d", t.MaxItems)
	}
	if t.PollInterval <= 0 {
		return fmt.Errorf("poll_interval必须大于0")
	}
	if t.ElementTimeout <= 0 || t.PageLoadTimeout <= 0 {
		return fmt.Errorf("element_timeout和page_load_timeout必须大于0")
	}
	return nil
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless         bool   `mapstructure:"headless"`
	Stealth          bool   `mapstructure:"stealth"`            // 使用stealth脚本创建页面
	IgnoreCertErrors bool   `mapstructure:"ignore_cert_errors"` // 跳过TLS证书验证
	Bin              string `mapstructure:"bin"`                // 浏览器可执行文件,为空时自动下载/查找
	UserDataDir      string `mapstructure:"user_data_dir"`      // 保留登录态的用户目录
}

// ResourceConfig 资源监控配置
type ResourceConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	SafetyThreshold  int64         `mapstructure:"safety_threshold"`   // 可用内存阈值(MB),低于该值暂停导航
	CPULoadThreshold int           `mapstructure:"cpu_load_threshold"` // CPU负载阈值(%),>=200视为禁用
	MaxWait          time.Duration `mapstructure:"max_wait"`           // 等待资源恢复的最长时间
}

// DefaultResourceConfig 默认资源监控配置
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		Enabled:          true,
		SafetyThreshold:  300,
		CPULoadThreshold: 95,
		MaxWait:          30 * time.Second,
	}
}
