package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// PageDriver 运行器使用的页面能力
type PageDriver interface {
	CurrentURL(ctx context.Context) (string, error)
	WaitUserNavigation(ctx context.Context) error
}

// RunnerOptions 运行器选项
type RunnerOptions struct {
	Watch    bool            // 遍历结束后继续等待页面加载(手动刷新、手动开始的遍历)
	Progress bool            // 显示进度条
	Reporter *utils.Reporter // 为空时不写报告
}

// Runner 驱动 页面加载 → 控制器 → 导航 循环
type Runner struct {
	ctrl *Controller
	page PageDriver
	opts RunnerOptions

	bar *progressbar.ProgressBar
}

// NewRunner 创建运行器
func NewRunner(ctrl *Controller, page PageDriver, opts RunnerOptions) *Runner {
	return &Runner{ctrl: ctrl, page: page, opts: opts}
}

// Run 从first开始循环处理页面加载,直到遍历结束
// first通常是Start或Resume的返回值,零值表示直接处理当前页面
func (r *Runner) Run(ctx context.Context, first Outcome) (err error) {
	defer func() {
		r.closeBar()
		r.writeReport(err)
	}()
	r.track(first)

	for {
		url, err := r.page.CurrentURL(ctx)
		if err != nil {
			return err
		}
		out, err := r.ctrl.OnPageLoad(ctx, url)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				utils.Warnf("遍历被中断,状态已保留,可使用 resume 继续")
				return nil
			}
			return err
		}
		log.Debug().Str("outcome", out.Kind.String()).Str("url", url).Msg("页面处理完成")
		r.track(out)

		if out.ExpectsNavigation() {
			continue
		}
		if !r.opts.Watch {
			return nil
		}
		utils.Debugf("等待页面加载...")
		if err := r.page.WaitUserNavigation(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// track 根据结果刷新进度条
func (r *Runner) track(out Outcome) {
	if !r.opts.Progress || out.State == nil {
		return
	}
	if r.bar == nil {
		r.bar = utils.NewProgressBar(len(out.State.Items), "遍历条目")
	}
	done := out.State.Cursor
	if out.Kind == OutcomeCompleted {
		done = len(out.State.Items)
	}
	_ = r.bar.Set(done)
}

func (r *Runner) closeBar() {
	if r.bar != nil {
		_ = r.bar.Finish()
		fmt.Println()
	}
}

// writeReport 遍历结束后写入统计报告
func (r *Runner) writeReport(runErr error) {
	rep := r.ctrl.Report()
	if r.opts.Reporter == nil || rep.RunID == "" {
		return
	}
	outcome := rep.Outcome
	switch {
	case runErr != nil:
		outcome = "error"
	case outcome == "":
		outcome = "interrupted"
	}
	rep.Finish(outcome)

	path, err := r.opts.Reporter.GenerateReport(rep)
	if err != nil {
		utils.Errorf("生成遍历报告失败: %v", err)
		return
	}
	utils.Infof("📊 本次处理 %d 个条目: 成功 %d, 失败 %d, 已投递 %d (%s)",
		rep.Visited, rep.Succeeded, rep.Failed, rep.Delivered, path)
}
