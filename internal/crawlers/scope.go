package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// Evaluator 在页面中执行JS函数并把返回值解码到out
type Evaluator interface {
	EvalJSON(ctx context.Context, js string, out any, args ...any) error
}

// Scope 在文档或嵌套作用域(shadow root)内定位元素
type Scope interface {
	Exists(ctx context.Context, selector string) (bool, error)
	WaitAppear(ctx context.Context, selector string, timeout time.Duration) error
	WaitGone(ctx context.Context, selector string, timeout time.Duration) error
	Text(ctx context.Context, selector, attr string) (value string, found bool, err error)
	HTML(ctx context.Context) (string, error)
}

// rootExpr 根据宿主选择器求出查询根,宿主不存在或没有shadowRoot时为null
const rootExpr = `((host) => {
	if (!host) return document;
	const h = document.querySelector(host);
	return h && h.shadowRoot ? h.shadowRoot : null;
})(host)`

// withRoot 生成以查询根为上下文的JS函数
func withRoot(body string) string {
	return `(host, sel, attr) => { const root = ` + rootExpr + `; ` + body + ` }`
}

var (
	probeJS = withRoot(`
		if (!root) return {scope: false, found: false, value: ""};
		const el = sel ? root.querySelector(sel) : null;
		if (!el) return {scope: true, found: false, value: ""};
		const v = attr ? (el.getAttribute(attr) || "") : (el.textContent || "").trim();
		return {scope: true, found: true, value: v};`)

	htmlJS = withRoot(`
		if (!root) return {scope: false, found: false, value: ""};
		const v = root === document ? document.documentElement.outerHTML : root.innerHTML;
		return {scope: true, found: true, value: v};`)
)

type probeResult struct {
	Scope bool   `json:"scope"`
	Found bool   `json:"found"`
	Value string `json:"value"`
}

// domScope 文档与shadow root两种作用域的共同实现,host为空即整个文档
type domScope struct {
	eval     Evaluator
	host     string
	interval time.Duration
}

// NewDocumentScope 整个文档作用域
func NewDocumentScope(eval Evaluator) Scope {
	return &domScope{eval: eval, interval: 200 * time.Millisecond}
}

// NewShadowScope 宿主元素shadow root作用域
func NewShadowScope(eval Evaluator, host string) Scope {
	return &domScope{eval: eval, host: host, interval: 200 * time.Millisecond}
}

// NewScope 按宿主选择器选择作用域
func NewScope(eval Evaluator, host string) Scope {
	if host == "" {
		return NewDocumentScope(eval)
	}
	return NewShadowScope(eval, host)
}

func (s *domScope) probe(ctx context.Context, selector, attr string) (probeResult, error) {
	var r probeResult
	if err := s.eval.EvalJSON(ctx, probeJS, &r, s.host, selector, attr); err != nil {
		return r, fmt.Errorf("查询元素失败 [%s]: %w", selector, err)
	}
	return r, nil
}

func (s *domScope) scopeErr() error {
	return fmt.Errorf("%w: %s", models.ErrScopeMissing, s.host)
}

// Exists 元素当前是否存在
func (s *domScope) Exists(ctx context.Context, selector string) (bool, error) {
	r, err := s.probe(ctx, selector, "")
	if err != nil {
		return false, err
	}
	if !r.Scope {
		return false, s.scopeErr()
	}
	return r.Found, nil
}

// WaitAppear 等待元素出现,超时返回ErrElementNotFound;作用域始终不存在时返回ErrScopeMissing
func (s *domScope) WaitAppear(ctx context.Context, selector string, timeout time.Duration) error {
	scopeSeen := false
	err := Until(ctx, timeout, s.interval, func(ctx context.Context) (bool, error) {
		r, err := s.probe(ctx, selector, "")
		if err != nil {
			return false, err
		}
		scopeSeen = scopeSeen || r.Scope
		return r.Found, nil
	})
	if errors.Is(err, ErrWaitTimeout) {
		if !scopeSeen {
			return s.scopeErr()
		}
		return fmt.Errorf("%w: %s", models.ErrElementNotFound, selector)
	}
	return err
}

// WaitGone 等待元素消失,作用域不存在视为已消失
func (s *domScope) WaitGone(ctx context.Context, selector string, timeout time.Duration) error {
	err := Until(ctx, timeout, s.interval, func(ctx context.Context) (bool, error) {
		r, err := s.probe(ctx, selector, "")
		if err != nil {
			return false, err
		}
		return !r.Found, nil
	})
	if errors.Is(err, ErrWaitTimeout) {
		return fmt.Errorf("元素未消失 [%s]: %w", selector, err)
	}
	return err
}

// Text 读取元素文本或属性
func (s *domScope) Text(ctx context.Context, selector, attr string) (string, bool, error) {
	r, err := s.probe(ctx, selector, attr)
	if err != nil {
		return "", false, err
	}
	if !r.Scope {
		return "", false, s.scopeErr()
	}
	return r.Value, r.Found, nil
}

// HTML 作用域内的HTML
func (s *domScope) HTML(ctx context.Context) (string, error) {
	var r probeResult
	if err := s.eval.EvalJSON(ctx, htmlJS, &r, s.host, "", ""); err != nil {
		return "", fmt.Errorf("读取HTML失败: %w", err)
	}
	if !r.Scope {
		return "", s.scopeErr()
	}
	return r.Value, nil
}
