package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/rs/zerolog/log"
)

// Harvester 虚拟列表采集器
//
// 虚拟列表只渲染视口附近的条目,需要反复滚动或触发"加载更多"才能让后续条目出现在DOM中。
// 采集有两类终止条件: 内容(达到上限或声明总数)与活性(空转、卡住、滚动次数上限),
// 保证页面既不声明总数也从不稳定时仍然会结束。
type Harvester struct {
	view   ListView
	norm   *Normalizer
	cfg    models.HarvestConfig
	jitter Jitter
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHarvester 创建采集器
func NewHarvester(view ListView, norm *Normalizer, cfg models.HarvestConfig, jitter Jitter) *Harvester {
	return &Harvester{
		view:   view,
		norm:   norm,
		cfg:    cfg,
		jitter: jitter,
		sleep:  Sleep,
	}
}

// limitFor 本次采集的条目上限: max与已知总数中的较小者
func limitFor(max int, total models.ReportedTotal) (int, models.HarvestReason) {
	if total.Known && total.Value < max {
		return total.Value, models.HarvestTotalReached
	}
	return max, models.HarvestMaxReached
}

// Harvest 采集至多max个条目,按首次发现顺序返回且无重复
// 页面无法继续加载时以已采集部分正常返回,不视为错误
func (h *Harvester) Harvest(ctx context.Context, max int, total models.ReportedTotal) (*models.HarvestResult, error) {
	if max < 1 {
		return nil, fmt.Errorf("采集上限必须大于0,当前值: %d", max)
	}
	limit, limitReason := limitFor(max, total)
	s := models.NewHarvestSession(limit)

	logger := log.With().Int("max", max).Int("limit", limit).Bool("total_known", total.Known).Logger()
	logger.Info().Msg("📜 开始采集列表")

	finish := func(reason models.HarvestReason) (*models.HarvestResult, error) {
		res := &models.HarvestResult{
			Items:          s.First(max),
			Reason:         reason,
			ScrollAttempts: s.ScrollAttempts,
			Triggers:       s.Triggers,
		}
		logger.Info().
			Int("items", len(res.Items)).
			Str("reason", string(reason)).
			Int("scrolls", res.ScrollAttempts).
			Int("triggers", res.Triggers).
			Msg("采集结束")
		return res, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := h.scan(ctx, s, limit); err != nil {
			return nil, err
		}
		if s.Size() >= limit {
			return finish(limitReason)
		}

		if s.Size()-s.LastTriggerCount >= h.cfg.TriggerThreshold {
			ok, err := h.trigger(ctx, s)
			if err != nil {
				return nil, err
			}
			if ok {
				continue
			}
		}

		if s.ScrollAttempts >= h.cfg.MaxScrollAttempts {
			return finish(models.HarvestScrollLimit)
		}

		before, err := h.view.Viewport(ctx)
		if err != nil {
			return nil, err
		}
		sizeBefore := s.Size()
		if err := h.scrollCycle(ctx, before); err != nil {
			return nil, err
		}
		s.ScrollAttempts++

		if err := h.scan(ctx, s, limit); err != nil {
			return nil, err
		}
		if s.Size() >= limit {
			return finish(limitReason)
		}
		if s.Size() == sizeBefore {
			s.IdleScrolls++
		} else {
			s.IdleScrolls = 0
		}

		after, err := h.view.Viewport(ctx)
		if err != nil {
			return nil, err
		}
		if after.ScrollTop == before.ScrollTop || after.AtBottom() {
			// 卡住: 最后尝试一次"加载更多"
			ok, err := h.trigger(ctx, s)
			if err != nil {
				return nil, err
			}
			if ok {
				s.IdleScrolls = 0
				continue
			}
			// 给惰性加载一次机会,内容增长则继续
			if err := h.sleep(ctx, h.cfg.SettleDelay); err != nil {
				return nil, err
			}
			if err := h.scan(ctx, s, limit); err != nil {
				return nil, err
			}
			if s.Size() >= limit {
				return finish(limitReason)
			}
			grown, err := h.view.Viewport(ctx)
			if err != nil {
				return nil, err
			}
			if grown.ScrollHeight <= after.ScrollHeight {
				return finish(models.HarvestExhausted)
			}
			logger.Debug().Float64("height", grown.ScrollHeight).Msg("列表高度增长,继续滚动")
			s.IdleScrolls = 0
			continue
		}

		if s.IdleScrolls >= h.cfg.MaxIdleScrolls {
			return finish(models.HarvestIdleLimit)
		}
	}
}

// scan 扫描当前与视口相交的候选元素,按发现顺序加入会话,达到limit即停止
func (h *Harvester) scan(ctx context.Context, s *models.HarvestSession, limit int) error {
	vp, err := h.view.Viewport(ctx)
	if err != nil {
		return err
	}
	cands, err := h.view.Candidates(ctx)
	if err != nil {
		return err
	}
	for _, c := range cands {
		if s.Size() >= limit {
			return nil
		}
		if !vp.Intersects(c) {
			continue
		}
		id, err := h.norm.Normalize(c.Ref)
		if err != nil {
			log.Debug().Str("ref", c.Ref).Err(err).Msg("跳过无法归一化的引用")
			continue
		}
		if s.Add(id) {
			log.Debug().Str("id", id.String()).Int("seen", s.Size()).Msg("发现条目")
		}
	}
	return nil
}

// trigger 尝试"加载更多",成功后记录触发点并等待页面稳定
func (h *Harvester) trigger(ctx context.Context, s *models.HarvestSession) (bool, error) {
	ok, err := h.view.TriggerLoadMore(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	s.LastTriggerCount = s.Size()
	s.Triggers++
	log.Debug().Int("seen", s.Size()).Int("triggers", s.Triggers).Msg("已触发加载更多")
	return true, h.sleep(ctx, h.cfg.SettleDelay)
}

// scrollCycle 一轮随机小幅滚动加一次较长停顿
func (h *Harvester) scrollCycle(ctx context.Context, vp models.Viewport) error {
	n := h.jitter.BurstSize()
	for i := 0; i < n; i++ {
		if err := h.view.ScrollBy(ctx, vp.Height*h.jitter.StepFraction()); err != nil {
			return err
		}
		if err := h.sleep(ctx, h.jitter.ShortDelay()); err != nil {
			return err
		}
	}
	return h.sleep(ctx, h.jitter.ReadPause())
}
