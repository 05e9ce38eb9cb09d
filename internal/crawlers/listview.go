package crawlers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// ListView 虚拟列表的页面抽象
type ListView interface {
	// Candidates 当前已渲染的候选元素,坐标相对滚动容器的可视区域
	Candidates(ctx context.Context) ([]models.Candidate, error)
	Viewport(ctx context.Context) (models.Viewport, error)
	ScrollBy(ctx context.Context, dy float64) error
	// TriggerLoadMore 激活"加载更多"控件,控件不存在或不可用时返回false
	TriggerLoadMore(ctx context.Context) (bool, error)
}

// TotalReader 读取页面声明的条目总数
type TotalReader interface {
	ReportedTotal(ctx context.Context) models.ReportedTotal
}

// containerExpr 在root中求出滚动容器,未配置时为文档滚动元素
const containerExpr = `(sel.container ? root.querySelector(sel.container) : null)`

func listJS(body string) string {
	return `(host, sel) => {
	const root = ` + rootExpr + `;
	if (!root) return null;
	const box = ` + containerExpr + `;
	` + body + `
}`
}

var (
	candidatesJS = listJS(`
	const top = box ? box.getBoundingClientRect().top : 0;
	const attr = sel.linkAttr || "href";
	const out = [];
	for (const el of root.querySelectorAll(sel.item)) {
		const a = el.hasAttribute(attr) ? el : el.querySelector("[" + attr + "]");
		if (!a) continue;
		let ref = a.getAttribute(attr) || "";
		try { ref = new URL(ref, document.baseURI).href; } catch (e) {}
		const r = el.getBoundingClientRect();
		out.push({ref: ref, top: r.top - top, bottom: r.bottom - top});
	}
	return out;`)

	viewportJS = listJS(`
	if (box) return {height: box.clientHeight, scrollTop: box.scrollTop, scrollHeight: box.scrollHeight};
	const d = document.scrollingElement || document.documentElement;
	return {height: window.innerHeight, scrollTop: d.scrollTop, scrollHeight: d.scrollHeight};`)

	scrollJS = `(host, sel, dy) => {
	const root = ` + rootExpr + `;
	const box = root ? ` + containerExpr + ` : null;
	if (box) { box.scrollBy(0, dy); } else { window.scrollBy(0, dy); }
	return true;
}`

	loadMoreJS = listJS(`
	if (!sel.loadMore) return false;
	const el = root.querySelector(sel.loadMore);
	if (!el || el.disabled || el.getAttribute("aria-disabled") === "true") return false;
	const r = el.getBoundingClientRect();
	if (r.width === 0 && r.height === 0) return false;
	el.scrollIntoView({block: "center"});
	el.click();
	return true;`)
)

// jsListSelectors 传给页面脚本的选择器
type jsListSelectors struct {
	Container string `json:"container"`
	Item      string `json:"item"`
	LinkAttr  string `json:"linkAttr"`
	LoadMore  string `json:"loadMore"`
}

type jsCandidate struct {
	Ref    string  `json:"ref"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

type jsViewport struct {
	Height       float64 `json:"height"`
	ScrollTop    float64 `json:"scrollTop"`
	ScrollHeight float64 `json:"scrollHeight"`
}

// DOMListView 基于页面脚本的ListView实现
type DOMListView struct {
	eval  Evaluator
	host  string
	sel   jsListSelectors
	total *DOMTotalReader
}

// NewDOMListView 创建列表视图
func NewDOMListView(eval Evaluator, sel models.ListSelectors) *DOMListView {
	return &DOMListView{
		eval: eval,
		host: sel.ShadowHost,
		sel: jsListSelectors{
			Container: sel.Container,
			Item:      sel.Item,
			LinkAttr:  sel.LinkAttr,
			LoadMore:  sel.LoadMore,
		},
		total: NewDOMTotalReader(NewScope(eval, sel.ShadowHost), sel.ReportedTotal),
	}
}

// Candidates 实现ListView
func (v *DOMListView) Candidates(ctx context.Context) ([]models.Candidate, error) {
	var raw []jsCandidate
	if err := v.eval.EvalJSON(ctx, candidatesJS, &raw, v.host, v.sel); err != nil {
		return nil, fmt.Errorf("读取候选元素失败: %w", err)
	}
	out := make([]models.Candidate, 0, len(raw))
	for _, c := range raw {
		out = append(out, models.Candidate{Ref: c.Ref, Top: c.Top, Bottom: c.Bottom})
	}
	return out, nil
}

// Viewport 实现ListView
func (v *DOMListView) Viewport(ctx context.Context) (models.Viewport, error) {
	var vp *jsViewport
	if err := v.eval.EvalJSON(ctx, viewportJS, &vp, v.host, v.sel); err != nil {
		return models.Viewport{}, fmt.Errorf("读取视口失败: %w", err)
	}
	if vp == nil {
		return models.Viewport{}, fmt.Errorf("%w: %s", models.ErrScopeMissing, v.host)
	}
	return models.Viewport{Height: vp.Height, ScrollTop: vp.ScrollTop, ScrollHeight: vp.ScrollHeight}, nil
}

// ScrollBy 实现ListView
func (v *DOMListView) ScrollBy(ctx context.Context, dy float64) error {
	if err := v.eval.EvalJSON(ctx, scrollJS, nil, v.host, v.sel, dy); err != nil {
		return fmt.Errorf("滚动失败: %w", err)
	}
	return nil
}

// TriggerLoadMore 实现ListView
func (v *DOMListView) TriggerLoadMore(ctx context.Context) (bool, error) {
	var ok *bool
	if err := v.eval.EvalJSON(ctx, loadMoreJS, &ok, v.host, v.sel); err != nil {
		return false, fmt.Errorf("触发加载更多失败: %w", err)
	}
	return ok != nil && *ok, nil
}

// ReportedTotal 实现TotalReader
func (v *DOMListView) ReportedTotal(ctx context.Context) models.ReportedTotal {
	return v.total.ReportedTotal(ctx)
}

// DOMTotalReader 从作用域内的元素读取声明总数
type DOMTotalReader struct {
	scope   Scope
	sel     models.ReportedTotalSelector
	pattern *regexp.Regexp
	invalid bool // pattern无法编译,总数始终未知
}

// NewDOMTotalReader 创建总数读取器
func NewDOMTotalReader(scope Scope, sel models.ReportedTotalSelector) *DOMTotalReader {
	r := &DOMTotalReader{scope: scope, sel: sel}
	if sel.Pattern != "" {
		re, err := regexp.Compile(sel.Pattern)
		if err != nil || re.NumSubexp() < 1 {
			r.invalid = true
		} else {
			r.pattern = re
		}
	}
	return r
}

// ReportedTotal 缺失或无法解析时返回未知
func (r *DOMTotalReader) ReportedTotal(ctx context.Context) models.ReportedTotal {
	if r.sel.Selector == "" || r.invalid {
		return models.UnknownTotal
	}
	v, found, err := r.scope.Text(ctx, r.sel.Selector, r.sel.Attr)
	if err != nil || !found {
		return models.UnknownTotal
	}
	if r.pattern != nil {
		return ParseReportedTotalPattern(v, r.pattern)
	}
	return ParseReportedTotal(v)
}

// 千位分隔符只接受三位一组,"12.5"会被拆成两个数字
var totalNumber = regexp.MustCompile(`\d{1,3}(?:[,.'\x{00a0}\x{202f}]\d{3})+|\d+`)

// ParseReportedTotal 文本中恰好有一个数字时返回该数字,如 "共 1,234 条" -> 1234
// 含多个数字(如 "第 1 页,共 345 条")无法判断哪个是总数,返回未知
func ParseReportedTotal(s string) models.ReportedTotal {
	nums := totalNumber.FindAllString(s, -1)
	if len(nums) != 1 {
		return models.UnknownTotal
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, nums[0])
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return models.UnknownTotal
	}
	return models.KnownTotal(n)
}

// ParseReportedTotalPattern 用站点配置的正则取第一个捕获组再解析
func ParseReportedTotalPattern(s string, re *regexp.Regexp) models.ReportedTotal {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return models.UnknownTotal
	}
	return ParseReportedTotal(m[1])
}
