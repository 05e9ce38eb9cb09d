package crawlers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// fakeList 模拟虚拟列表: 只渲染视口附近的条目
type fakeList struct {
	refs      []string
	pending   [][]string // 每次"加载更多"追加一批
	rowHeight float64
	height    float64
	scrollTop float64
	frozen    bool    // 滚动无效
	extra     float64 // 额外的不可见高度

	scrollCalls  int
	triggerCalls int
}

func newFakeList(n int) *fakeList {
	f := &fakeList{rowHeight: 100, height: 500}
	for i := 0; i < n; i++ {
		f.refs = append(f.refs, fmt.Sprintf("https://shop.example.com/item/%d", i))
	}
	return f
}

func (f *fakeList) scrollHeight() float64 {
	return float64(len(f.refs))*f.rowHeight + f.extra
}

func (f *fakeList) Candidates(ctx context.Context) ([]models.Candidate, error) {
	var out []models.Candidate
	for i, ref := range f.refs {
		top := float64(i)*f.rowHeight - f.scrollTop
		if top+f.rowHeight < -f.rowHeight || top > f.height+f.rowHeight {
			continue
		}
		out = append(out, models.Candidate{Ref: ref, Top: top, Bottom: top + f.rowHeight})
	}
	return out, nil
}

func (f *fakeList) Viewport(ctx context.Context) (models.Viewport, error) {
	return models.Viewport{Height: f.height, ScrollTop: f.scrollTop, ScrollHeight: f.scrollHeight()}, nil
}

func (f *fakeList) ScrollBy(ctx context.Context, dy float64) error {
	f.scrollCalls++
	if f.frozen {
		return nil
	}
	maxTop := f.scrollHeight() - f.height
	if maxTop < 0 {
		maxTop = 0
	}
	f.scrollTop += dy
	if f.scrollTop > maxTop {
		f.scrollTop = maxTop
	}
	return nil
}

func (f *fakeList) TriggerLoadMore(ctx context.Context) (bool, error) {
	f.triggerCalls++
	if len(f.pending) == 0 {
		return false, nil
	}
	f.refs = append(f.refs, f.pending[0]...)
	f.pending = f.pending[1:]
	return true, nil
}

func testHarvestConfig() models.HarvestConfig {
	cfg := models.DefaultHarvestConfig()
	cfg.SettleDelay = 0
	return cfg
}

func newTestHarvester(view ListView, cfg models.HarvestConfig, volatile ...string) *Harvester {
	h := NewHarvester(view, NewNormalizer(volatile), cfg, FixedJitter{Burst: 3, Step: 0.25})
	h.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return h
}

func assertUnique(t *testing.T, items []models.Identifier) {
	t.Helper()
	seen := map[models.Identifier]bool{}
	for _, id := range items {
		if seen[id] {
			t.Fatalf("结果中存在重复条目: %s", id)
		}
		seen[id] = true
	}
}

func assertSequential(t *testing.T, items []models.Identifier) {
	t.Helper()
	for i, id := range items {
		want := models.Identifier(fmt.Sprintf("https://shop.example.com/item/%d", i))
		if id != want {
			t.Fatalf("第%d个条目 = %s, want %s (发现顺序被打乱)", i, id, want)
		}
	}
}

func TestHarvest_ReportedTotalBoundsResult(t *testing.T) {
	view := newFakeList(30)
	h := newTestHarvester(view, testHarvestConfig())

	res, err := h.Harvest(context.Background(), 50, models.KnownTotal(5))
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if len(res.Items) != 5 {
		t.Fatalf("条目数 = %d, want 5", len(res.Items))
	}
	if res.Reason != models.HarvestTotalReached {
		t.Errorf("Reason = %s, want %s", res.Reason, models.HarvestTotalReached)
	}
	// 首屏即可见5个条目,不应再滚动
	if res.ScrollAttempts != 0 || view.scrollCalls != 0 {
		t.Errorf("找到第5个条目后仍在滚动: attempts=%d", res.ScrollAttempts)
	}
	assertUnique(t, res.Items)
	assertSequential(t, res.Items)
}

func TestHarvest_MaxWithUnknownTotal(t *testing.T) {
	view := newFakeList(30)
	h := newTestHarvester(view, testHarvestConfig())

	res, err := h.Harvest(context.Background(), 3, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if len(res.Items) != 3 || res.Reason != models.HarvestMaxReached {
		t.Errorf("结果 = %d条 / %s, want 3条 / max_reached", len(res.Items), res.Reason)
	}
	assertSequential(t, res.Items)
}

func TestHarvest_ScrollsInDiscoveryOrder(t *testing.T) {
	view := newFakeList(40)
	cfg := testHarvestConfig()
	cfg.TriggerThreshold = 1000
	h := newTestHarvester(view, cfg)

	res, err := h.Harvest(context.Background(), 20, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if len(res.Items) != 20 {
		t.Fatalf("条目数 = %d, want 20", len(res.Items))
	}
	if res.ScrollAttempts == 0 {
		t.Error("需要滚动才能采集到20个条目")
	}
	assertUnique(t, res.Items)
	assertSequential(t, res.Items)
}

func TestHarvest_VolatileQueryDedup(t *testing.T) {
	view := &fakeList{rowHeight: 100, height: 500, refs: []string{
		"https://shop.example.com/item/1?utm_source=feed&sid=aaa",
		"https://shop.example.com/item/1?sid=bbb&utm_source=banner",
		"https://shop.example.com/item/2?sid=ccc#reviews",
	}}
	h := newTestHarvester(view, testHarvestConfig(), "sid")

	res, err := h.Harvest(context.Background(), 10, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	want := []models.Identifier{"https://shop.example.com/item/1", "https://shop.example.com/item/2"}
	if len(res.Items) != len(want) {
		t.Fatalf("Items = %v, want %v", res.Items, want)
	}
	for i := range want {
		if res.Items[i] != want[i] {
			t.Errorf("Items[%d] = %s, want %s", i, res.Items[i], want[i])
		}
	}
}

func TestHarvest_StuckWithoutLoadMoreIsPartial(t *testing.T) {
	view := newFakeList(30)
	view.frozen = true
	h := newTestHarvester(view, testHarvestConfig())

	res, err := h.Harvest(context.Background(), 50, models.UnknownTotal)
	if err != nil {
		t.Fatalf("卡住不应返回错误: %v", err)
	}
	if res.Reason != models.HarvestExhausted {
		t.Errorf("Reason = %s, want exhausted", res.Reason)
	}
	if len(res.Items) != 5 {
		t.Errorf("条目数 = %d, want 5(首屏可见部分)", len(res.Items))
	}
	if view.triggerCalls == 0 {
		t.Error("卡住时应尝试加载更多")
	}
}

func TestHarvest_ReachesBottom(t *testing.T) {
	view := newFakeList(10)
	cfg := testHarvestConfig()
	cfg.TriggerThreshold = 1000
	h := newTestHarvester(view, cfg)

	res, err := h.Harvest(context.Background(), 50, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if res.Reason != models.HarvestExhausted || len(res.Items) != 10 {
		t.Errorf("结果 = %d条 / %s, want 10条 / exhausted", len(res.Items), res.Reason)
	}
	assertSequential(t, res.Items)
}

func TestHarvest_LoadMoreTrigger(t *testing.T) {
	view := newFakeList(8)
	for b := 0; b < 3; b++ {
		var batch []string
		for i := 0; i < 8; i++ {
			batch = append(batch, fmt.Sprintf("https://shop.example.com/item/%d", 8+b*8+i))
		}
		view.pending = append(view.pending, batch)
	}
	cfg := testHarvestConfig()
	cfg.TriggerThreshold = 5
	h := newTestHarvester(view, cfg)

	res, err := h.Harvest(context.Background(), 20, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if len(res.Items) != 20 {
		t.Fatalf("条目数 = %d, want 20", len(res.Items))
	}
	if res.Triggers == 0 {
		t.Error("应触发过加载更多")
	}
	assertUnique(t, res.Items)
	assertSequential(t, res.Items)
}

func TestHarvest_IdleLimit(t *testing.T) {
	// 可以一直滚动但从不出现候选元素
	view := &fakeList{rowHeight: 100, height: 500, extra: 1e6}
	cfg := testHarvestConfig()
	cfg.MaxIdleScrolls = 3
	h := newTestHarvester(view, cfg)

	res, err := h.Harvest(context.Background(), 10, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if res.Reason != models.HarvestIdleLimit {
		t.Errorf("Reason = %s, want idle_limit", res.Reason)
	}
	if res.ScrollAttempts != 3 {
		t.Errorf("ScrollAttempts = %d, want 3", res.ScrollAttempts)
	}
	if len(res.Items) != 0 {
		t.Errorf("不应采集到条目: %v", res.Items)
	}
}

func TestHarvest_ScrollLimit(t *testing.T) {
	view := newFakeList(1000)
	cfg := testHarvestConfig()
	cfg.TriggerThreshold = 10000
	cfg.MaxScrollAttempts = 2
	h := newTestHarvester(view, cfg)

	res, err := h.Harvest(context.Background(), 1000, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if res.Reason != models.HarvestScrollLimit || res.ScrollAttempts != 2 {
		t.Errorf("结果 = %s / %d次滚动, want scroll_limit / 2", res.Reason, res.ScrollAttempts)
	}
	if len(res.Items) == 0 || len(res.Items) >= 1000 {
		t.Errorf("条目数 = %d", len(res.Items))
	}
}

func TestHarvest_ContextCancel(t *testing.T) {
	view := newFakeList(100)
	h := newTestHarvester(view, testHarvestConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Harvest(ctx, 50, models.UnknownTotal); !errors.Is(err, context.Canceled) {
		t.Errorf("Harvest() error = %v, want context.Canceled", err)
	}
}

func TestHarvest_InvalidMax(t *testing.T) {
	h := newTestHarvester(newFakeList(1), testHarvestConfig())
	if _, err := h.Harvest(context.Background(), 0, models.UnknownTotal); err == nil {
		t.Error("max为0应该报错")
	}
}

func TestHarvest_SkipsOffscreenCandidates(t *testing.T) {
	view := &fakeList{rowHeight: 100, height: 500, refs: []string{
		"https://shop.example.com/item/0",
	}}
	// 已滚过第一个条目,它仍在DOM中但不可见
	view.extra = 2000
	view.scrollTop = 150

	cfg := testHarvestConfig()
	cfg.MaxIdleScrolls = 1
	h := newTestHarvester(view, cfg)
	res, err := h.Harvest(context.Background(), 5, models.UnknownTotal)
	if err != nil {
		t.Fatalf("Harvest() error = %v", err)
	}
	if len(res.Items) != 0 {
		t.Errorf("视口外的候选元素不应被采集: %v", res.Items)
	}
}
