package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/listwalk/internal/core"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	backend    string
	stateDir   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 已加载的配置,由PersistentPreRunE填充
	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "listwalk",
	Short: "虚拟列表采集与可恢复的条目遍历工具",
	Long: `listwalk - 在真实浏览器中采集虚拟列表并逐个访问条目详情页

工作流程:
  • 在列表页上滚动虚拟列表,按归一化标识去重收集条目
  • 依次导航到每个条目详情页,抽取字段并写入 JSONL
  • 遍历状态持久化,浏览器重启或进程退出后可以继续
  • 支持暂停/继续/停止 (页面按键、进程信号或 ctl 子命令)

示例:
  # 采集列表并遍历前30个条目
  listwalk run "https://shop.example.com/search?q=coat" --max 30

  # 另一个终端中暂停、继续或停止
  listwalk ctl pause
  listwalk ctl stop

  # 查看当前遍历状态
  listwalk status

  # 通过命令行追加HTTP头部
  listwalk run https://shop.example.com/search?q=coat -H "Referer: https://shop.example.com/"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		// 命令行参数覆盖配置文件
		config.MergeCLIFlags(core.CLIOverrides{
			Backend:  backend,
			StateDir: stateDir,
			LogLevel: logLevel,
		})

		if err := utils.InitLogger(config.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig()
		}
		return cmd.Help()
	},
}

// runValidateConfig 验证主配置与HTTP头部配置
func runValidateConfig() error {
	utils.Info("🔍 验证配置...")
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Headers.File, headers)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.LoadConfig(); err != nil {
		return fmt.Errorf("加载头部配置失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("头部配置验证失败: %w", err)
	}

	utils.Info("✅ 配置验证通过!")
	utils.Infof("已配置站点 (%d个):", len(appConfig.Sites))
	for _, site := range appConfig.Sites {
		mode := site.Mode
		if mode == "" {
			mode = "list"
		}
		utils.Infof("  %s (%s)", site.Name, mode)
	}
	safeHeaders := headerManager.GetSafeHeaders()
	utils.Infof("当前有效的HTTP头部 (%d个):", len(safeHeaders))
	for name, value := range safeHeaders {
		utils.Infof("  %s: %s", name, value)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("listwalk %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "状态存储后端 (file|sqlite|memory)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "状态存储目录")

	// HTTP头部参数
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(ctlCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
