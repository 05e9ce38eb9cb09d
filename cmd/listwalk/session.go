package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/core"
	"github.com/RecoveryAshes/listwalk/internal/crawlers"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/output"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
)

// monitorInterval 资源采样间隔
const monitorInterval = 5 * time.Second

// session 一次浏览器会话: 存储、浏览器、控制器及控制信号
type session struct {
	cfg     *core.Config
	site    *models.SiteConfig
	store   store.Store
	monitor *crawlers.ResourceMonitor
	browser *crawlers.Browser
	channel *core.Channel
	ctrl    *core.Controller

	unbindKeys func()
}

// openSession 启动浏览器并按站点配置组装控制器
func openSession(ctx context.Context, cfg *core.Config, site *models.SiteConfig) (*session, error) {
	headerManager, err := core.NewHeaderManager(cfg.Headers.File, headers)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if _, err := headerManager.GetHeaders(); err != nil {
		return nil, fmt.Errorf("HTTP头部配置无效: %w", err)
	}
	utils.Debugf("HTTP头部: %v", headerManager.GetSafeHeaders())

	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("打开状态存储失败: %w", err)
	}

	s := &session{cfg: cfg, site: site, store: st, channel: core.NewChannel(st)}

	s.monitor = crawlers.NewResourceMonitor(cfg.Resource)
	if cfg.Resource.Enabled {
		s.monitor.StartMonitoring(monitorInterval)
	}

	s.browser, err = crawlers.LaunchBrowser(cfg.Browser, headerManager, s.monitor, cfg.Traversal.PageLoadTimeout)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.unbindKeys, err = core.BindKeyboard(ctx, s.browser, s.channel, cfg.Traversal)
	if err != nil {
		utils.Warnf("绑定页面按键失败,只能通过信号或ctl命令控制: %v", err)
	}

	s.ctrl = core.NewController(core.ControllerDeps{
		Store:     st,
		Site:      site,
		Traversal: cfg.Traversal,
		Harvester: s.harvester(),
		Totals:    s.totals(),
		Scraper:   s.scraper(headerManager),
		Navigator: s.browser,
		Notifier:  s.browser,
		Sink:      output.NewJSONLSink(cfg.Output.Dir),
		Anchor:    crawlers.NewScope(s.browser, site.List.ShadowHost),
	})
	return s, nil
}

// harvester 按站点模式选择虚拟列表或增量表格采集器
func (s *session) harvester() core.Harvester {
	norm := crawlers.NewNormalizer(s.site.VolatileParams)
	if s.site.Mode == models.SiteModeTable {
		feed := crawlers.NewDOMRowFeed(s.browser, s.site.Table, norm)
		return crawlers.NewTableHarvester(feed, s.cfg.TableFor(s.site))
	}
	hc := s.cfg.HarvestFor(s.site)
	view := crawlers.NewDOMListView(s.browser, s.site.List)
	return crawlers.NewHarvester(view, norm, hc, crawlers.NewRandomJitter(hc.Jitter, 0))
}

func (s *session) totals() crawlers.TotalReader {
	if s.site.Mode == models.SiteModeTable {
		return crawlers.NewDOMTotalReader(crawlers.NewDocumentScope(s.browser), s.site.List.ReportedTotal)
	}
	return crawlers.NewDOMListView(s.browser, s.site.List)
}

func (s *session) scraper(headerManager *core.HeaderManager) core.Scraper {
	if s.site.Item.Static {
		return crawlers.NewStaticScraper(s.browser, headerManager, s.site.Item,
			s.cfg.Traversal.PageLoadTimeout, s.cfg.Browser.IgnoreCertErrors)
	}
	return crawlers.NewDOMScraper(s.browser, s.site.Item, s.cfg.Traversal.ElementTimeout)
}

// run 驱动页面循环直到遍历结束
func (s *session) run(ctx context.Context, first core.Outcome, watch bool) error {
	runner := core.NewRunner(s.ctrl, s.browser, core.RunnerOptions{
		Watch:    watch,
		Progress: true,
		Reporter: utils.NewReporter(s.cfg.Output.Dir, s.site.Name),
	})
	return runner.Run(ctx, first)
}

// Close 释放浏览器、资源监控与存储
func (s *session) Close() {
	if s.unbindKeys != nil {
		s.unbindKeys()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}
	if s.monitor != nil {
		s.monitor.StopMonitoring()
	}
	if err := s.store.Close(); err != nil {
		utils.Warnf("关闭状态存储失败: %v", err)
	}
}
