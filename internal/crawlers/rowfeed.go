package crawlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/go-rod/rod"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

const observeRowsJS = `(name, sel) => {
	const box = sel.container ? document.querySelector(sel.container) : document.body;
	if (!box) return false;
	const emit = (row) => {
		if (!row.matches || !row.matches(sel.row)) return;
		let idx = "";
		if (sel.indexAttr) {
			idx = row.getAttribute(sel.indexAttr) || "";
		} else {
			const cell = row.querySelector("td, th, [role=cell], [role=gridcell]") || row;
			idx = cell.textContent || "";
		}
		const a = row.querySelector(sel.link);
		if (!a) return;
		window[name]({index: idx.trim(), ref: a.href || a.getAttribute("href") || ""});
	};
	const prev = window["__" + name + "_observer"];
	if (prev) prev.disconnect();
	box.querySelectorAll(sel.row).forEach(emit);
	const obs = new MutationObserver((records) => {
		for (const m of records) {
			for (const n of m.addedNodes) {
				if (n.nodeType !== 1) continue;
				emit(n);
				n.querySelectorAll(sel.row).forEach(emit);
			}
		}
	});
	obs.observe(box, {childList: true, subtree: true});
	window["__" + name + "_observer"] = obs;
	return true;
}`

const disconnectRowsJS = `(name) => {
	const obs = window["__" + name + "_observer"];
	if (obs) obs.disconnect();
	delete window["__" + name + "_observer"];
}`

const scrollTableJS = `(sel, px) => {
	const box = sel.container ? document.querySelector(sel.container) : null;
	if (box) { box.scrollBy(0, px); } else { window.scrollBy(0, px); }
}`

type jsTableSelectors struct {
	Container string `json:"container"`
	Row       string `json:"row"`
	IndexAttr string `json:"indexAttr"`
	Link      string `json:"link"`
}

// DOMRowFeed 通过MutationObserver推送行插入,回调经rod Expose绑定回Go
type DOMRowFeed struct {
	page    *rod.Page
	eval    Evaluator
	sel     jsTableSelectors
	norm    *Normalizer
	binding string
}

// NewDOMRowFeed 创建行插入源
func NewDOMRowFeed(b *Browser, sel models.TableSelectors, norm *Normalizer) *DOMRowFeed {
	return &DOMRowFeed{
		page: b.Page(),
		eval: b,
		sel: jsTableSelectors{
			Container: sel.Container,
			Row:       sel.Row,
			IndexAttr: sel.IndexAttr,
			Link:      sel.Link,
		},
		norm:    norm,
		binding: "listwalkRow",
	}
}

// parseRowIndex 解析显示的行号,如 "12" 或 "#12"
func parseRowIndex(s string) (int, bool) {
	m := totalNumber.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Rows 实现RowSource
func (f *DOMRowFeed) Rows(ctx context.Context) (<-chan models.Row, func(), error) {
	out := make(chan models.Row, 256)
	done := make(chan struct{})

	unbind, err := f.page.Expose(f.binding, func(j gson.JSON) (interface{}, error) {
		idx, ok := parseRowIndex(j.Get("index").Str())
		if !ok {
			log.Debug().Str("index", j.Get("index").Str()).Msg("跳过无行号的行")
			return nil, nil
		}
		id, err := f.norm.Normalize(j.Get("ref").Str())
		if err != nil {
			log.Debug().Err(err).Int("index", idx).Msg("跳过无法归一化的行")
			return nil, nil
		}
		select {
		case out <- models.Row{Index: idx, Ref: id}:
		case <-done:
		case <-ctx.Done():
		}
		return nil, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("绑定行回调失败: %w", err)
	}

	var installed bool
	if err := f.eval.EvalJSON(ctx, observeRowsJS, &installed, f.binding, f.sel); err != nil {
		_ = unbind()
		return nil, nil, fmt.Errorf("安装MutationObserver失败: %w", err)
	}
	if !installed {
		_ = unbind()
		return nil, nil, fmt.Errorf("%w: 表格容器 %s", models.ErrElementNotFound, f.sel.Container)
	}

	stop := func() {
		close(done)
		if err := f.eval.EvalJSON(context.Background(), disconnectRowsJS, nil, f.binding); err != nil {
			log.Debug().Err(err).Msg("断开MutationObserver失败")
		}
		if err := unbind(); err != nil {
			log.Debug().Err(err).Msg("解除行回调失败")
		}
	}
	return out, stop, nil
}

// ScrollBy 实现RowSource
func (f *DOMRowFeed) ScrollBy(ctx context.Context, px int) error {
	if err := f.eval.EvalJSON(ctx, scrollTableJS, nil, f.sel, px); err != nil {
		return fmt.Errorf("滚动表格失败: %w", err)
	}
	return nil
}
