package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig headers.yaml的内容
type HeaderConfig struct {
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders --header 参数,每项格式为 "Name: Value"
type CliHeaders []string

// Parse 解析为http.Header
// 同名头部在命令行中出现多次时以最后一次为准,与浏览器SetExtraHeaders的语义一致
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header, len(ch))
	for i, s := range ch {
		name, value, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 缺少冒号分隔符,应为 'Name: Value'", i+1)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: 头部名称不能为空", i+1)
		}
		result.Set(name, strings.TrimSpace(value))
	}
	return result, nil
}

// HeaderProvider 为浏览器页面和静态抓取器提供同一份请求头部
// 返回值已按 默认 < 配置文件 < 命令行 合并并通过验证
type HeaderProvider interface {
	GetHeaders() (http.Header, error)
}

// ValidationError 头部验证失败
type ValidationError struct {
	Field      string // "name" 或 "value"
	HeaderName string
	Reason     string
	Suggestion string // 可为空
}

func (e *ValidationError) Error() string {
	if e.Suggestion == "" {
		return fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	}
	return fmt.Sprintf("头部验证失败 [%s]: %s (建议: %s)", e.HeaderName, e.Reason, e.Suggestion)
}

// ConfigError headers.yaml无法读取或解析
type ConfigError struct {
	FilePath string
	Cause    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
