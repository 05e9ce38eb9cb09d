package main

import (
	"fmt"
	"net/url"
)

// maxItemsLimit 单次遍历条目数上限
const maxItemsLimit = 10000

// ValidateURL 列表页URL必须是带主机名的http(s)地址
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// ValidateRunFlags 验证run命令的参数
func ValidateRunFlags(targetURL string, max int) error {
	if err := ValidateURL(targetURL); err != nil {
		return fmt.Errorf("无效的列表页URL: %w", err)
	}
	// 0表示使用配置文件中的值
	if max < 0 || max > maxItemsLimit {
		return fmt.Errorf("条目数必须在1-%d之间,当前值: %d", maxItemsLimit, max)
	}
	return nil
}
