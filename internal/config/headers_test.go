package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

func TestHeaderConfigLoader_LoadConfig(t *testing.T) {
	t.Run("首次运行自动生成模板", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "headers.yaml")
		cfg, err := NewHeaderConfigLoader(path).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("配置文件应该被自动生成: %v", err)
		}
		if cfg.Headers == nil || len(cfg.Headers) != 0 {
			t.Errorf("模板应解析为空头部, 实际 %v", cfg.Headers)
		}
	})

	t.Run("加载已存在的配置", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "headers.yaml")
		content := "headers:\n  User-Agent: \"Test Bot/1.0\"\n  Accept-Language: \"zh-CN\"\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := NewHeaderConfigLoader(path).LoadConfig()
		if err != nil {
			t.Fatalf("加载配置失败: %v", err)
		}
		// viper会将键名转换为小写
		if cfg.Headers["user-agent"] != "Test Bot/1.0" || cfg.Headers["accept-language"] != "zh-CN" {
			t.Errorf("头部内容错误: %v", cfg.Headers)
		}
	})

	t.Run("YAML格式错误", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(path, []byte("headers:\n  User-Agent: \"Test Bot\n  X: y\n"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := NewHeaderConfigLoader(path).LoadConfig()
		var ce *models.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("期望ConfigError, 实际 %v", err)
		}
	})

	t.Run("空headers节点", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(path, []byte("headers:"), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := NewHeaderConfigLoader(path).LoadConfig()
		if err != nil {
			t.Fatalf("加载空配置失败: %v", err)
		}
		if cfg.Headers == nil {
			t.Fatal("Headers应该被初始化为空map")
		}
	})

	t.Run("文件过大", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "headers.yaml")
		if err := os.WriteFile(path, make([]byte, MaxConfigFileSize+1), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewHeaderConfigLoader(path).LoadConfig(); err == nil {
			t.Fatal("超大配置文件应被拒绝")
		}
	})
}

func TestNewHeaderConfigLoaderDefaultPath(t *testing.T) {
	if got := NewHeaderConfigLoader("").Path(); got != DefaultConfigFile {
		t.Errorf("Path = %s, 期望 %s", got, DefaultConfigFile)
	}
}
