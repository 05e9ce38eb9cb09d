package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogConfig(t *testing.T, level string) LogConfig {
	t.Helper()
	return LogConfig{
		Level:      level,
		LogDir:     t.TempDir(),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	return string(data)
}

func TestInitLogger(t *testing.T) {
	cfg := testLogConfig(t, "debug")
	if err := InitLogger(cfg); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Infof("开始遍历 %s", "shop")
	Warnf("条目 %d 抓取失败", 3)
	Errorf("写入条目失败: %s", "磁盘已满")

	main := readLog(t, filepath.Join(cfg.LogDir, "listwalk.log"))
	for _, want := range []string{"开始遍历 shop", "条目 3 抓取失败", "写入条目失败: 磁盘已满"} {
		if !strings.Contains(main, want) {
			t.Errorf("主日志缺少 %q", want)
		}
	}

	// 错误日志只保留error及以上级别
	errLog := readLog(t, filepath.Join(cfg.LogDir, "listwalk_error.log"))
	if !strings.Contains(errLog, "写入条目失败") {
		t.Error("错误日志缺少error级别消息")
	}
	if strings.Contains(errLog, "开始遍历") || strings.Contains(errLog, "抓取失败") {
		t.Errorf("错误日志混入了低级别消息: %s", errLog)
	}
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantInfo  bool
	}{
		{"debug级别", "debug", true, true},
		{"info级别", "info", false, true},
		{"warn级别", "warn", false, false},
		{"无效级别回退info", "verbose", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testLogConfig(t, tt.level)
			if err := InitLogger(cfg); err != nil {
				t.Fatalf("初始化日志器失败: %v", err)
			}
			Debugf("调试消息")
			Info("信息消息")
			Warnf("警告消息")

			content := readLog(t, filepath.Join(cfg.LogDir, "listwalk.log"))
			if got := strings.Contains(content, "调试消息"); got != tt.wantDebug {
				t.Errorf("调试消息写入 = %v, 期望 %v", got, tt.wantDebug)
			}
			if got := strings.Contains(content, "信息消息"); got != tt.wantInfo {
				t.Errorf("信息消息写入 = %v, 期望 %v", got, tt.wantInfo)
			}
			if !strings.Contains(content, "警告消息") {
				t.Error("警告消息应始终写入")
			}
		})
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	if cfg.Level != "info" || cfg.LogDir != "logs" {
		t.Errorf("默认级别/目录错误: %s / %s", cfg.Level, cfg.LogDir)
	}
	if cfg.MaxSize != 10 || cfg.MaxBackups != 3 || cfg.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", cfg)
	}
	if !cfg.Compress {
		t.Error("默认应该启用压缩")
	}
}
