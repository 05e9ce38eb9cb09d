package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/crawlers"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/rs/zerolog/log"
)

// Harvester 列表采集器 (虚拟列表或增量表格)
type Harvester interface {
	Harvest(ctx context.Context, max int, total models.ReportedTotal) (*models.HarvestResult, error)
}

// Scraper 条目抓取器,每个条目只调用一次,不做内部重试
type Scraper interface {
	Scrape(ctx context.Context, tag models.SourceTag) (*models.ScrapeResult, error)
}

// Navigator 整页导航
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Notifier 阻塞式用户通知,只用于遍历结束的情况
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Sink 条目投递端
type Sink interface {
	Deliver(ctx context.Context, item *models.ScrapedItem) error
}

// OutcomeKind 一次页面加载处理后的结果
type OutcomeKind int

const (
	OutcomeIdle        OutcomeKind = iota // 没有进行中的遍历
	OutcomeNavigated                      // 已导航到下一个(或当前)条目
	OutcomeStopping                       // 已写入终态并导航回列表页
	OutcomeCompleted                      // 全部条目处理完毕,状态已清除并导航回列表页
	OutcomeStopped                        // 在列表页观察到终态并清除
	OutcomeUnsupported                    // 当前页面不属于该站点的列表页或详情页
)

// String 实现fmt.Stringer
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNavigated:
		return "navigated"
	case OutcomeStopping:
		return "stopping"
	case OutcomeCompleted:
		return "completed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeUnsupported:
		return "unsupported"
	default:
		return "idle"
	}
}

// Outcome OnPageLoad的返回值
type Outcome struct {
	Kind   OutcomeKind
	State  *models.TraversalState // 写入后的状态快照,已清除时为最后一次读到的状态
	Target models.Identifier      // 导航目标,未导航时为空
}

// ExpectsNavigation 控制器是否已发起导航,需要等待下一次页面加载
func (o Outcome) ExpectsNavigation() bool {
	return o.Kind == OutcomeNavigated || o.Kind == OutcomeStopping || o.Kind == OutcomeCompleted
}

// anchorPollInterval 等待列表页锚点稳定时的轮询间隔
const anchorPollInterval = 200 * time.Millisecond

var (
	// errHold 令Store.Update不写入
	errHold = errors.New("保持状态不变")
	// errRunReplaced 存储中的遍历已不是本次处理的那一个
	errRunReplaced = errors.New("遍历已被替换")
)

// ControllerDeps 控制器依赖
type ControllerDeps struct {
	Store     store.Store
	Site      *models.SiteConfig
	Traversal models.TraversalConfig
	Harvester Harvester
	Totals    crawlers.TotalReader // 可选
	Scraper   Scraper
	Navigator Navigator
	Notifier  Notifier       // 可选
	Sink      Sink           // 可选
	Anchor    crawlers.Scope // 可选,用于等待列表页锚点稳定
}

// Controller 遍历控制器
//
// 每次页面加载都是一次全新的执行,控制器在入口读取一次存储,
// 在每次状态转移时写入。暂停与停止只在抽取结束后的检查点和暂停轮询中生效,
// 已开始的条目抽取总会完整执行。
type Controller struct {
	store      store.Store
	site       *models.SiteConfig
	cfg        models.TraversalConfig
	classifier *crawlers.Classifier
	norm       *crawlers.Normalizer

	harvester Harvester
	totals    crawlers.TotalReader
	scraper   Scraper
	nav       Navigator
	notifier  Notifier
	sink      Sink
	anchor    crawlers.Scope

	sleep func(ctx context.Context, d time.Duration) error

	report *models.TraversalReport
}

// NewController 创建控制器
func NewController(d ControllerDeps) *Controller {
	return &Controller{
		store:      d.Store,
		site:       d.Site,
		cfg:        d.Traversal,
		classifier: crawlers.NewClassifier(d.Site),
		norm:       crawlers.NewNormalizer(d.Site.VolatileParams),
		harvester:  d.Harvester,
		totals:     d.Totals,
		scraper:    d.Scraper,
		nav:        d.Navigator,
		notifier:   d.Notifier,
		sink:       d.Sink,
		anchor:     d.Anchor,
		sleep:      crawlers.Sleep,
		report: &models.TraversalReport{
			Site:      d.Site.Name,
			StartTime: time.Now(),
		},
	}
}

// Report 本进程内的遍历统计
func (c *Controller) Report() *models.TraversalReport {
	return c.report
}

// Start 在列表页上采集条目并开始遍历
func (c *Controller) Start(ctx context.Context, currentURL string, max int) (Outcome, error) {
	if c.classifier.Classify(currentURL) != models.ListPage {
		return Outcome{}, fmt.Errorf("%w: %s", models.ErrNotListPage, currentURL)
	}

	existing, err := store.LoadOrReset(ctx, c.store)
	if err != nil {
		return Outcome{}, fmt.Errorf("读取遍历状态失败: %w", err)
	}
	if existing != nil {
		if existing.InProgress {
			return Outcome{}, fmt.Errorf("%w: run=%s 游标 %d/%d", models.ErrTraversalActive,
				existing.RunID, existing.Cursor+1, len(existing.Items))
		}
		// 上一次遍历的终态还没有被列表页消费
		if err := c.store.Clear(ctx); err != nil {
			return Outcome{}, fmt.Errorf("清除遍历状态失败: %w", err)
		}
	}

	origin, err := c.norm.Normalize(currentURL)
	if err != nil {
		return Outcome{}, fmt.Errorf("解析列表页地址失败: %w", err)
	}
	tag := c.classifier.SourceTag(currentURL)
	if max <= 0 {
		max = c.cfg.MaxItems
	}
	total := models.UnknownTotal
	if c.totals != nil {
		total = c.totals.ReportedTotal(ctx)
	}

	utils.Infof("🔍 开始采集列表: %s (上限 %d)", origin, max)
	res, err := c.harvester.Harvest(ctx, max, total)
	if err != nil {
		return Outcome{}, fmt.Errorf("采集列表失败: %w", err)
	}
	if len(res.Items) == 0 {
		return Outcome{}, models.ErrNothingHarvested
	}
	log.Info().
		Int("items", len(res.Items)).
		Str("reason", string(res.Reason)).
		Int("scrolls", res.ScrollAttempts).
		Bool("total_known", total.Known).
		Int("total", total.Value).
		Msg("列表采集完成")

	st, err := models.NewTraversalState(c.site.Name, origin, tag, res.Items)
	if err != nil {
		return Outcome{}, err
	}
	if err := c.store.Save(ctx, st); err != nil {
		return Outcome{}, fmt.Errorf("保存遍历状态失败: %w", err)
	}
	c.report.RunID = st.RunID
	c.report.Total = len(st.Items)

	target := st.Items[0]
	if err := c.nav.Navigate(ctx, target.String()); err != nil {
		return Outcome{}, fmt.Errorf("导航到第1个条目失败: %w", err)
	}
	return Outcome{Kind: OutcomeNavigated, State: st.Clone(), Target: target}, nil
}

// Resume 导航到进行中遍历的当前条目,用于浏览器重启后继续
func (c *Controller) Resume(ctx context.Context) (Outcome, error) {
	st, err := store.LoadOrReset(ctx, c.store)
	if err != nil {
		return Outcome{}, fmt.Errorf("读取遍历状态失败: %w", err)
	}
	if st == nil || !st.InProgress {
		return Outcome{}, models.ErrNoActiveTraversal
	}
	c.adopt(st)

	target, _ := st.Current()
	utils.Infof("▶️ 继续遍历 run=%s,从第 %d/%d 个条目开始", st.RunID, st.Cursor+1, len(st.Items))
	if err := c.nav.Navigate(ctx, target.String()); err != nil {
		return Outcome{}, fmt.Errorf("导航到当前条目失败: %w", err)
	}
	return Outcome{Kind: OutcomeNavigated, State: st, Target: target}, nil
}

// adopt 把统计归到存储中的遍历上
func (c *Controller) adopt(st *models.TraversalState) {
	if c.report.RunID == "" {
		c.report.RunID = st.RunID
		c.report.Total = len(st.Items)
	}
}

// OnPageLoad 页面加载后的入口
func (c *Controller) OnPageLoad(ctx context.Context, currentURL string) (Outcome, error) {
	st, err := store.LoadOrReset(ctx, c.store)
	if err != nil {
		return Outcome{}, fmt.Errorf("读取遍历状态失败: %w", err)
	}
	if st == nil {
		return Outcome{Kind: OutcomeIdle}, nil
	}

	kind := c.classifier.Classify(currentURL)

	if !st.InProgress {
		return c.finish(ctx, st, kind)
	}

	if st.Site != "" && st.Site != c.site.Name {
		log.Warn().Str("state_site", st.Site).Str("site", c.site.Name).Msg("遍历状态属于其他站点,忽略")
		return Outcome{Kind: OutcomeUnsupported, State: st}, nil
	}
	c.adopt(st)

	switch kind {
	case models.ItemPage:
		return c.process(ctx, st, currentURL)
	case models.ListPage:
		// 回到列表页但遍历仍在进行: 不前进,回到当前条目
		utils.Debugf("遍历进行中回到列表页,返回当前条目")
		return c.checkpoint(ctx, st.RunID, false)
	default:
		log.Warn().Str("url", currentURL).Msg("遍历进行中到达不支持的页面,保持状态不变")
		return Outcome{Kind: OutcomeUnsupported, State: st}, nil
	}
}

// finish 消费终态: 清除存储,在列表页上通知用户
func (c *Controller) finish(ctx context.Context, st *models.TraversalState, kind models.PageKind) (Outcome, error) {
	if err := c.store.Clear(ctx); err != nil {
		return Outcome{}, fmt.Errorf("清除遍历状态失败: %w", err)
	}
	if st.StopReason == nil || kind != models.ListPage {
		return Outcome{Kind: OutcomeStopped, State: st}, nil
	}

	var msg string
	switch *st.StopReason {
	case models.StopReasonLoginRequired:
		c.report.Outcome = string(models.StopReasonLoginRequired)
		c.waitAnchor(ctx)
		msg = fmt.Sprintf("需要登录,遍历已在第 %d/%d 个条目处停止。请登录后重新开始。", st.Cursor+1, len(st.Items))
	case models.StopReasonUserStop:
		c.report.Outcome = "stopped"
		msg = fmt.Sprintf("遍历已按要求停止 (已处理 %d/%d 个条目)。", st.Cursor+1, len(st.Items))
	}
	if c.notifier != nil && msg != "" {
		if err := c.notifier.Notify(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("通知用户失败")
		}
	}
	return Outcome{Kind: OutcomeStopped, State: st}, nil
}

// waitAnchor 等待列表页锚点元素稳定,超时只记录
func (c *Controller) waitAnchor(ctx context.Context) {
	sel := c.site.Item.OriginAnchor
	if c.anchor == nil || sel == "" {
		return
	}
	err := crawlers.Stable(ctx, c.cfg.ElementTimeout, c.cfg.StableWindow, anchorPollInterval,
		func(ctx context.Context) (string, bool, error) {
			return c.anchor.Text(ctx, sel, "")
		})
	if err != nil {
		log.Warn().Err(err).Str("selector", sel).Msg("列表页锚点未稳定")
	}
}

// process 抓取游标处的条目并投递,然后进入检查点
func (c *Controller) process(ctx context.Context, st *models.TraversalState, currentURL string) (Outcome, error) {
	id, _ := st.Current()
	if got, err := c.norm.Normalize(currentURL); err != nil || got != id {
		log.Warn().Str("url", currentURL).Str("expected", id.String()).Msg("当前页面与游标处条目不一致,按游标继续")
	}

	c.report.Visited++
	res, err := c.scraper.Scrape(ctx, st.SourceTag)
	switch {
	case err != nil:
		c.report.Failed++
		if errors.Is(err, models.ErrScopeMissing) || errors.Is(err, models.ErrElementNotFound) {
			log.Warn().Err(err).Str("item", id.String()).Int("cursor", st.Cursor).Msg("条目抽取失败,跳过")
		} else {
			log.Error().Err(err).Str("item", id.String()).Int("cursor", st.Cursor).Msg("条目抓取出错,跳过")
		}

	case res.LoginRequired():
		return c.stopForLogin(ctx, st.RunID)

	case res.Status != models.ScrapeSuccess:
		c.report.Failed++
		log.Warn().Str("item", id.String()).Str("status", string(res.Status)).Msg("条目抓取未成功,跳过")

	default:
		c.report.Succeeded++
		c.deliver(ctx, models.NewScrapedItem(st, id, res.Fields))
	}

	return c.checkpoint(ctx, st.RunID, true)
}

// deliver 投递失败只记录,不重试
func (c *Controller) deliver(ctx context.Context, item *models.ScrapedItem) {
	if c.sink == nil {
		return
	}
	if err := c.sink.Deliver(ctx, item); err != nil {
		if !errors.Is(err, models.ErrDeliveryFailed) {
			err = fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
		}
		log.Error().Err(err).Str("item", item.Identifier.String()).Msg("条目投递失败")
		return
	}
	c.report.Delivered++
}

// stopForLogin 写入login_required终态并返回列表页
func (c *Controller) stopForLogin(ctx context.Context, runID string) (Outcome, error) {
	utils.Warnf("🔒 条目需要登录,停止遍历")
	st, err := c.store.Update(ctx, func(st *models.TraversalState) error {
		if st.RunID != runID {
			return errRunReplaced
		}
		st.Stop(models.StopReasonLoginRequired)
		return nil
	})
	if err != nil {
		return c.updateFailed(err)
	}
	c.report.Outcome = string(models.StopReasonLoginRequired)
	return c.navigateOrigin(ctx, OutcomeStopping, st)
}

type checkpointAction int

const (
	actStop checkpointAction = iota
	actPause
	actComplete
	actNavigate
)

// checkpoint 抽取结束后的决策: 停止、暂停轮询、前进或完成
func (c *Controller) checkpoint(ctx context.Context, runID string, advance bool) (Outcome, error) {
	pausedLogged := false
	for {
		var (
			action checkpointAction
			snap   *models.TraversalState
		)
		_, err := c.store.Update(ctx, func(st *models.TraversalState) error {
			if st.RunID != runID {
				return errRunReplaced
			}
			switch {
			case !st.InProgress:
				action, snap = actStop, st.Clone()
				return errHold
			case st.StopPending():
				st.InProgress = false
				st.IsPaused = false
				action = actStop
			case st.IsPaused:
				action, snap = actPause, st.Clone()
				return errHold
			case !advance:
				action, snap = actNavigate, st.Clone()
				return errHold
			case st.Cursor+1 >= len(st.Items):
				action, snap = actComplete, st.Clone()
				return errHold
			default:
				st.Cursor++
				action = actNavigate
			}
			snap = st.Clone()
			return nil
		})
		if err != nil && !errors.Is(err, errHold) {
			return c.updateFailed(err)
		}

		switch action {
		case actStop:
			c.report.Outcome = "stopped"
			if pausedLogged {
				utils.Infof("⏹️ 暂停期间收到停止信号")
			} else {
				utils.Infof("⏹️ 收到停止信号,返回列表页")
			}
			return c.navigateOrigin(ctx, OutcomeStopping, snap)

		case actPause:
			if !pausedLogged {
				utils.Infof("⏸️ 遍历已暂停 (第 %d/%d 个条目之后),等待继续...", snap.Cursor+1, len(snap.Items))
				pausedLogged = true
			}
			if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
				return Outcome{}, err
			}
			continue

		case actComplete:
			if err := c.store.Clear(ctx); err != nil {
				return Outcome{}, fmt.Errorf("清除遍历状态失败: %w", err)
			}
			c.report.Outcome = "completed"
			utils.Infof("✅ 遍历完成,共 %d 个条目", len(snap.Items))
			return c.navigateOrigin(ctx, OutcomeCompleted, snap)

		default:
			if pausedLogged {
				utils.Infof("▶️ 遍历继续")
			}
			target, _ := snap.Current()
			log.Debug().Int("cursor", snap.Cursor).Int("total", len(snap.Items)).Str("target", target.String()).Msg("导航到条目")
			if err := c.nav.Navigate(ctx, target.String()); err != nil {
				return Outcome{}, fmt.Errorf("导航到第%d个条目失败: %w", snap.Cursor+1, err)
			}
			return Outcome{Kind: OutcomeNavigated, State: snap, Target: target}, nil
		}
	}
}

// updateFailed 状态在本次处理期间被清除或替换时不再继续
func (c *Controller) updateFailed(err error) (Outcome, error) {
	if errors.Is(err, models.ErrNoActiveTraversal) || errors.Is(err, errRunReplaced) {
		log.Warn().Err(err).Msg("遍历状态已被清除或替换,放弃本次检查点")
		return Outcome{Kind: OutcomeIdle}, nil
	}
	if errors.Is(err, models.ErrStateCorrupt) {
		if cerr := c.store.Clear(context.Background()); cerr != nil {
			log.Error().Err(cerr).Msg("清除损坏状态失败")
		}
		log.Warn().Err(err).Msg("遍历状态损坏,已清除")
		return Outcome{Kind: OutcomeIdle}, nil
	}
	return Outcome{}, fmt.Errorf("更新遍历状态失败: %w", err)
}

// navigateOrigin 返回列表页
func (c *Controller) navigateOrigin(ctx context.Context, kind OutcomeKind, st *models.TraversalState) (Outcome, error) {
	if err := c.nav.Navigate(ctx, st.OriginPage.String()); err != nil {
		return Outcome{}, fmt.Errorf("返回列表页失败: %w", err)
	}
	return Outcome{Kind: kind, State: st, Target: st.OriginPage}, nil
}
