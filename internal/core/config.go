package core

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/listwalk/internal/crawlers"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Store     store.Options          `mapstructure:"store"`
	Logging   LoggingConfig          `mapstructure:"logging"`
	Output    OutputConfig           `mapstructure:"output"`
	Headers   HeadersConfig          `mapstructure:"headers"`
	Browser   models.BrowserConfig   `mapstructure:"browser"`
	Resource  models.ResourceConfig  `mapstructure:"resource"`
	Traversal models.TraversalConfig `mapstructure:"traversal"`
	Harvest   models.HarvestConfig   `mapstructure:"harvest"`
	Table     models.TableConfig     `mapstructure:"table"`
	Sites     []models.SiteConfig    `mapstructure:"sites"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir string `mapstructure:"dir"` // 条目写入 <dir>/<site>/items.jsonl
}

// HeadersConfig 自定义请求头部配置
type HeadersConfig struct {
	File string `mapstructure:"file"` // 为空时不使用头部配置文件
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".listwalk"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", store.BackendFile)
	v.SetDefault("store.dir", "state")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.dir", "output")
	v.SetDefault("headers.file", "configs/headers.yaml")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.ignore_cert_errors", false)
	v.SetDefault("browser.user_data_dir", "browser-data")

	res := models.DefaultResourceConfig()
	v.SetDefault("resource.enabled", res.Enabled)
	v.SetDefault("resource.safety_threshold", res.SafetyThreshold)
	v.SetDefault("resource.cpu_load_threshold", res.CPULoadThreshold)
	v.SetDefault("resource.max_wait", res.MaxWait)

	tr := models.DefaultTraversalConfig()
	v.SetDefault("traversal.max_items", tr.MaxItems)
	v.SetDefault("traversal.poll_interval", tr.PollInterval)
	v.SetDefault("traversal.element_timeout", tr.ElementTimeout)
	v.SetDefault("traversal.page_load_timeout", tr.PageLoadTimeout)
	v.SetDefault("traversal.stable_window", tr.StableWindow)
	v.SetDefault("traversal.pause_key", tr.PauseKey)
	v.SetDefault("traversal.stop_key", tr.StopKey)

	h := models.DefaultHarvestConfig()
	v.SetDefault("harvest.trigger_threshold", h.TriggerThreshold)
	v.SetDefault("harvest.settle_delay", h.SettleDelay)
	v.SetDefault("harvest.max_scroll_attempts", h.MaxScrollAttempts)
	v.SetDefault("harvest.max_idle_scrolls", h.MaxIdleScrolls)
	v.SetDefault("harvest.jitter.burst_min", h.Jitter.BurstMin)
	v.SetDefault("harvest.jitter.burst_max", h.Jitter.BurstMax)
	v.SetDefault("harvest.jitter.step_min", h.Jitter.StepMin)
	v.SetDefault("harvest.jitter.step_max", h.Jitter.StepMax)
	v.SetDefault("harvest.jitter.short_delay_min", h.Jitter.ShortDelayMin)
	v.SetDefault("harvest.jitter.short_delay_max", h.Jitter.ShortDelayMax)
	v.SetDefault("harvest.jitter.read_pause_min", h.Jitter.ReadPauseMin)
	v.SetDefault("harvest.jitter.read_pause_max", h.Jitter.ReadPauseMax)

	tb := models.DefaultTableConfig()
	v.SetDefault("table.scroll_pixels", tb.ScrollPixels)
	v.SetDefault("table.row_idle_timeout", tb.RowIdleTimeout)
	v.SetDefault("table.max_scroll_attempts", tb.MaxScrollAttempts)
	v.SetDefault("table.max_idle_cycles", tb.MaxIdleCycles)
	v.SetDefault("table.max_wait", tb.MaxWait)
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendFile, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("store.backend无效: %s (有效值: file, sqlite, memory)", c.Store.Backend)
	}
	if err := c.Traversal.Validate(); err != nil {
		return fmt.Errorf("traversal: %w", err)
	}
	if err := c.Harvest.Validate(); err != nil {
		return fmt.Errorf("harvest: %w", err)
	}
	if err := c.Table.Validate(); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	if len(c.Sites) == 0 {
		return fmt.Errorf("至少需要配置一个站点(sites)")
	}

	names := make(map[string]struct{}, len(c.Sites))
	for i := range c.Sites {
		site := &c.Sites[i]
		if err := site.Validate(); err != nil {
			return err
		}
		if _, dup := names[site.Name]; dup {
			return fmt.Errorf("站点名称重复: %s", site.Name)
		}
		names[site.Name] = struct{}{}

		// 站点级参数覆盖全局值后必须仍然有效
		if err := c.HarvestFor(site).Validate(); err != nil {
			return fmt.Errorf("站点 %s 的harvest: %w", site.Name, err)
		}
		if err := c.TableFor(site).Validate(); err != nil {
			return fmt.Errorf("站点 %s 的table_harvest: %w", site.Name, err)
		}
	}
	return nil
}

// Site 按名称查找站点
func (c *Config) Site(name string) (*models.SiteConfig, error) {
	for i := range c.Sites {
		if c.Sites[i].Name == name {
			return &c.Sites[i], nil
		}
	}
	return nil, fmt.Errorf("未找到站点配置: %s", name)
}

// SiteForURL 返回第一个能识别该URL的站点
func (c *Config) SiteForURL(rawURL string) (*models.SiteConfig, error) {
	for i := range c.Sites {
		if crawlers.NewClassifier(&c.Sites[i]).Classify(rawURL) != models.Unsupported {
			return &c.Sites[i], nil
		}
	}
	return nil, fmt.Errorf("没有站点规则匹配该URL: %s", rawURL)
}

// HarvestFor 站点级采集参数(覆盖全局值)
func (c *Config) HarvestFor(site *models.SiteConfig) models.HarvestConfig {
	return c.Harvest.Merge(site.Harvest)
}

// TableFor 站点级表格采集参数(覆盖全局值)
func (c *Config) TableFor(site *models.SiteConfig) models.TableConfig {
	return c.Table.Merge(site.TableHarvest)
}

// LogConfig 转换为日志初始化参数
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}

// CLIOverrides 命令行参数,零值表示未指定
type CLIOverrides struct {
	MaxItems  int
	Headless  *bool
	Backend   string
	StateDir  string
	OutputDir string
	LogLevel  string
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.MaxItems > 0 {
		c.Traversal.MaxItems = o.MaxItems
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.Backend != "" {
		c.Store.Backend = o.Backend
	}
	if o.StateDir != "" {
		c.Store.Dir = o.StateDir
	}
	if o.OutputDir != "" {
		c.Output.Dir = o.OutputDir
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}
