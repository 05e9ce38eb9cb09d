package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/RecoveryAshes/listwalk/internal/core"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/spf13/cobra"
)

// 遍历参数
var (
	maxItems  int
	headless  bool
	outputDir string
	siteName  string
	watch     bool
)

var runCmd = &cobra.Command{
	Use:   "run <list-url>",
	Short: "打开列表页,采集条目并开始遍历",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetURL := args[0]
		if err := ValidateRunFlags(targetURL, maxItems); err != nil {
			return err
		}
		cfg, err := prepareConfig(cmd)
		if err != nil {
			return err
		}
		site, err := resolveSite(cfg, siteName, targetURL)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := openSession(ctx, cfg, site)
		if err != nil {
			return err
		}
		defer s.Close()
		stopSignals := core.WatchSignals(ctx, s.channel, cancel, exitNow)
		defer stopSignals()

		utils.Infof("🌐 打开列表页: %s (站点 %s)", targetURL, site.Name)
		if err := s.browser.Navigate(ctx, targetURL); err != nil {
			return err
		}
		current, err := s.browser.CurrentURL(ctx)
		if err != nil {
			return err
		}

		first, err := s.ctrl.Start(ctx, current, cfg.Traversal.MaxItems)
		switch {
		case errors.Is(err, models.ErrTraversalActive):
			return fmt.Errorf("%w (使用 resume 继续,或 ctl stop 停止)", err)
		case errors.Is(err, models.ErrNotListPage):
			return fmt.Errorf("%w,可能被重定向到登录页: %s", err, current)
		case errors.Is(err, context.Canceled):
			utils.Warnf("采集被中断")
			return nil
		case err != nil:
			return err
		}
		utils.Infof("📋 已采集 %d 个条目,开始遍历", len(first.State.Items))

		if err := s.run(ctx, first, watch); err != nil {
			return fmt.Errorf("遍历失败: %w", err)
		}
		utils.Info("✨ 遍历任务完成!")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "在新的浏览器会话中继续进行中的遍历",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := prepareConfig(cmd)
		if err != nil {
			return err
		}

		st, err := peekState(cfg)
		if err != nil {
			return err
		}
		if st == nil || !st.InProgress {
			return models.ErrNoActiveTraversal
		}
		name := siteName
		if name == "" {
			name = st.Site
		}
		site, err := cfg.Site(name)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := openSession(ctx, cfg, site)
		if err != nil {
			return err
		}
		defer s.Close()
		stopSignals := core.WatchSignals(ctx, s.channel, cancel, exitNow)
		defer stopSignals()

		first, err := s.ctrl.Resume(ctx)
		if err != nil {
			return err
		}
		if err := s.run(ctx, first, watch); err != nil {
			return fmt.Errorf("遍历失败: %w", err)
		}
		utils.Info("✨ 遍历任务完成!")
		return nil
	},
}

// prepareConfig 合并遍历相关的命令行参数并验证配置
func prepareConfig(cmd *cobra.Command) (*core.Config, error) {
	o := core.CLIOverrides{MaxItems: maxItems, OutputDir: outputDir}
	if cmd.Flags().Changed("headless") {
		o.Headless = &headless
	}
	appConfig.MergeCLIFlags(o)
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return appConfig, nil
}

// resolveSite 指定站点名称时按名称查找,否则按URL匹配
func resolveSite(cfg *core.Config, name, rawURL string) (*models.SiteConfig, error) {
	if name != "" {
		return cfg.Site(name)
	}
	return cfg.SiteForURL(rawURL)
}

// peekState 不启动浏览器读取遍历状态
func peekState(cfg *core.Config) (*models.TraversalState, error) {
	s, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("打开状态存储失败: %w", err)
	}
	defer s.Close()
	return store.LoadOrReset(context.Background(), s)
}

// exitNow 第二次中断时立即退出,遍历状态保留在存储中
func exitNow() {
	os.Exit(130)
}

func init() {
	for _, c := range []*cobra.Command{runCmd, resumeCmd} {
		c.Flags().StringVarP(&outputDir, "output", "o", "", "输出目录")
		c.Flags().StringVar(&siteName, "site", "", "站点名称 (默认按URL或遍历状态匹配)")
		c.Flags().BoolVar(&headless, "headless", false, "无头浏览器模式 (遍历中的登录需要有界面)")
		c.Flags().BoolVar(&watch, "watch", false, "遍历结束后保持浏览器,继续处理手动刷新与导航")
	}
	runCmd.Flags().IntVarP(&maxItems, "max", "n", 0, "最多采集的条目数 (默认使用配置 traversal.max_items)")
}
