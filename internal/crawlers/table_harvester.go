package crawlers

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/rs/zerolog/log"
)

// RowSource 增量渲染表格的行插入通知
type RowSource interface {
	// Rows 订阅行插入,先推送已渲染的行;stop取消订阅
	Rows(ctx context.Context) (rows <-chan models.Row, stop func(), err error)
	ScrollBy(ctx context.Context, px int) error
}

// TableHarvester 增量表格采集器
//
// 每出现一个新行就重置行空闲计时器,行空闲超时结束一轮收集;
// 另有全局等待上限,两者分别约束"停滞"与"缓慢滴入"两种情况。
type TableHarvester struct {
	src RowSource
	cfg models.TableConfig
}

// NewTableHarvester 创建表格采集器
func NewTableHarvester(src RowSource, cfg models.TableConfig) *TableHarvester {
	return &TableHarvester{src: src, cfg: cfg}
}

// resetTimer 安全地重置计时器
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// Harvest 采集至多max个条目,按行号排序返回
func (h *TableHarvester) Harvest(ctx context.Context, max int, total models.ReportedTotal) (*models.HarvestResult, error) {
	if max < 1 {
		return nil, fmt.Errorf("采集上限必须大于0,当前值: %d", max)
	}
	limit, limitReason := limitFor(max, total)

	rows, stop, err := h.src.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("订阅行插入失败: %w", err)
	}
	defer stop()

	byIndex := make(map[int]models.Identifier)
	unique := make(map[models.Identifier]struct{}) // 上限按不同条目计数,同一条目可能出现在多行
	deadline := time.NewTimer(h.cfg.MaxWait)
	defer deadline.Stop()
	attempts, idleCycles := 0, 0

	finish := func(reason models.HarvestReason) (*models.HarvestResult, error) {
		res := &models.HarvestResult{
			Items:          orderRows(byIndex, max),
			Reason:         reason,
			ScrollAttempts: attempts,
		}
		log.Info().
			Int("rows", len(byIndex)).
			Int("items", len(res.Items)).
			Str("reason", string(reason)).
			Int("scrolls", attempts).
			Msg("表格采集结束")
		return res, nil
	}

	// collect 收集新行直到行空闲超时;done表示已满足终止条件
	collect := func() (added int, reason models.HarvestReason, done bool, err error) {
		idle := time.NewTimer(h.cfg.RowIdleTimeout)
		defer idle.Stop()
		for {
			select {
			case <-ctx.Done():
				return added, "", true, ctx.Err()
			case <-deadline.C:
				return added, models.HarvestTimeout, true, nil
			case r, ok := <-rows:
				if !ok {
					rows = nil
					continue
				}
				if _, dup := byIndex[r.Index]; dup || r.Ref == "" {
					continue
				}
				byIndex[r.Index] = r.Ref
				resetTimer(idle, h.cfg.RowIdleTimeout)
				if _, seen := unique[r.Ref]; seen {
					continue
				}
				unique[r.Ref] = struct{}{}
				added++
				if len(unique) >= limit {
					return added, limitReason, true, nil
				}
			case <-idle.C:
				return added, "", false, nil
			}
		}
	}

	log.Info().Int("max", max).Int("limit", limit).Msg("📋 开始采集表格")

	if _, reason, done, err := collect(); err != nil {
		return nil, err
	} else if done {
		return finish(reason)
	}

	for attempts < h.cfg.MaxScrollAttempts {
		if err := h.src.ScrollBy(ctx, h.cfg.ScrollPixels); err != nil {
			return nil, err
		}
		attempts++

		added, reason, done, err := collect()
		if err != nil {
			return nil, err
		}
		if done {
			return finish(reason)
		}
		if added == 0 {
			idleCycles++
			if idleCycles >= h.cfg.MaxIdleCycles {
				return finish(models.HarvestIdleLimit)
			}
		} else {
			idleCycles = 0
		}
	}
	return finish(models.HarvestScrollLimit)
}

// orderRows 按行号排序,同一条目出现在多行时保留行号最小的一次
func orderRows(byIndex map[int]models.Identifier, max int) []models.Identifier {
	idx := make([]int, 0, len(byIndex))
	for i := range byIndex {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	seen := make(map[models.Identifier]struct{}, len(idx))
	out := make([]models.Identifier, 0, len(idx))
	for _, i := range idx {
		id := byIndex[i]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if len(out) >= max {
			break
		}
	}
	return out
}
