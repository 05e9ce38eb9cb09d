package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/RecoveryAshes/listwalk/internal/core"
	"github.com/go-rod/rod/lib/launcher"
)

func main() {
	fmt.Println("==============================================")
	fmt.Println("  listwalk 环境验证")
	fmt.Println("==============================================")
	fmt.Println()

	allOK := true

	goVersion := runtime.Version()
	fmt.Printf("✅ Go版本: %s\n", goVersion)
	fmt.Printf("✅ 操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	// 检查浏览器
	if path, ok := launcher.LookPath(); ok {
		fmt.Printf("✅ 浏览器: %s\n", path)
	} else {
		fmt.Println("⚠️  未找到本地Chrome/Chromium - 首次运行时rod会自动下载")
	}

	if checkCommand("sqlite3", "--version") {
		fmt.Printf("✅ sqlite3命令行: %s\n", strings.TrimSpace(getCommandOutput("sqlite3", "--version")))
	} else {
		fmt.Println("⚠️  sqlite3命令行未安装 - 不影响sqlite后端,仅用于手动查看状态")
	}

	// 检查配置
	fmt.Println()
	fmt.Println("检查配置...")
	cfg, err := core.LoadConfig("")
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		allOK = false
	} else if err := cfg.Validate(); err != nil {
		fmt.Printf("❌ 配置无效: %v\n", err)
		allOK = false
	} else {
		fmt.Printf("✅ 配置有效: %d 个站点, 存储后端 %s\n", len(cfg.Sites), cfg.Store.Backend)
	}

	// 检查项目结构
	fmt.Println()
	fmt.Println("检查项目结构...")
	requiredDirs := []string{
		"cmd/listwalk",
		"internal/core",
		"internal/crawlers",
		"internal/store",
		"internal/output",
		"internal/utils",
		"internal/models",
		"configs",
	}
	for _, dir := range requiredDirs {
		if _, err := os.Stat(dir); err == nil {
			fmt.Printf("✅ %s/\n", dir)
		} else {
			fmt.Printf("❌ %s/ 不存在\n", dir)
			allOK = false
		}
	}

	fmt.Println()
	fmt.Println("==============================================")
	if allOK {
		fmt.Println("✅ 环境验证通过!")
		fmt.Println()
		fmt.Println("下一步:")
		fmt.Println("  1. 在 configs/config.yaml 中配置站点")
		fmt.Println("  2. 运行 'go build ./cmd/listwalk' 构建")
		fmt.Println("  3. 运行 './listwalk run <列表页URL>' 开始遍历")
		os.Exit(0)
	}
	fmt.Println("❌ 环境验证失败,请解决上述问题。")
	os.Exit(1)
}

// checkCommand 检查命令是否可用
func checkCommand(name string, args ...string) bool {
	return exec.Command(name, args...).Run() == nil
}

// getCommandOutput 获取命令输出
func getCommandOutput(name string, args ...string) string {
	output, err := exec.Command(name, args...).Output()
	if err != nil {
		return ""
	}
	return string(output)
}
