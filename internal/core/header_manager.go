package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/listwalk/internal/config"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/124.0.0.0 Safari/537.36"
)

// HeaderManager 合并三层请求头部,实现 models.HeaderProvider
// 优先级: 默认 < 头部配置文件 < 命令行
// 同一份头部同时供浏览器页面和静态抓取器使用,GetHeaders可并发调用
type HeaderManager struct {
	defaults http.Header
	file     http.Header
	cli      http.Header

	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor

	// loader为nil表示不使用头部配置文件
	loader *config.HeaderConfigLoader

	mu     sync.Mutex
	loaded bool
}

// NewHeaderManager 创建头部管理器
// headersFile为空时只使用默认头部与命令行头部
func NewHeaderManager(headersFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:  getDefaultHeaders(),
		file:      make(http.Header),
		cli:       make(http.Header),
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}
	if headersFile != "" {
		hm.loader = config.NewHeaderConfigLoader(headersFile)
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}
	return hm, nil
}

// getDefaultHeaders 内置默认头部
// Accept-Encoding由浏览器与抓取器各自设置,这里不提供
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept-Language": []string{"zh-CN,zh;q=0.9,en;q=0.8"},
	}
}

// LoadConfig 加载头部配置文件,只执行一次
func (hm *HeaderManager) LoadConfig() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.loaded || hm.loader == nil {
		hm.loaded = true
		return nil
	}

	cfg, err := hm.loader.LoadConfig()
	if err != nil {
		utils.Errorf("加载HTTP头部配置失败: %v", err)
		return err
	}
	for name, value := range cfg.Headers {
		hm.file.Set(name, value)
	}
	hm.loaded = true

	if len(cfg.Headers) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %s", len(cfg.Headers), hm.redactor.RedactToString(hm.file))
	}
	return nil
}

// Validate 按 默认 → 配置文件 → 命令行 的顺序验证
func (hm *HeaderManager) Validate() error {
	layers := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.file},
		{"命令行", hm.cli},
	}
	for _, l := range layers {
		if err := hm.validator.Validate(l.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", l.name, err)
			return err
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.file, hm.cli} {
		for name, values := range layer {
			result[http.CanonicalHeaderKey(name)] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}
