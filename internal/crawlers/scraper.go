package crawlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/rs/zerolog/log"
)

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// cleanText 合并连续空白
func cleanText(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// ExtractFields 用goquery从HTML中按字段规则抽取值
// scopeSel非空时字段只在该元素内查找,元素不存在返回ErrScopeMissing;
// 必填字段缺失返回ErrElementNotFound,可选字段缺失时不出现在结果中
func ExtractFields(html, scopeSel string, fields []models.FieldSpec) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败: %w", err)
	}

	root := doc.Selection
	if scopeSel != "" {
		root = doc.Find(scopeSel).First()
		if root.Length() == 0 {
			return nil, fmt.Errorf("%w: %s", models.ErrScopeMissing, scopeSel)
		}
	}

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		sel := root.Find(f.Selector).First()
		if sel.Length() == 0 {
			if f.Required {
				return nil, fmt.Errorf("%w: 字段 %s (%s)", models.ErrElementNotFound, f.Name, f.Selector)
			}
			continue
		}

		var v string
		if f.Attr != "" {
			attr, ok := sel.Attr(f.Attr)
			if !ok && f.Required {
				return nil, fmt.Errorf("%w: 字段 %s 缺少属性 %s", models.ErrElementNotFound, f.Name, f.Attr)
			}
			v = strings.TrimSpace(attr)
		} else {
			v = cleanText(sel.Text())
		}
		out[f.Name] = v
	}
	return out, nil
}

// DOMScraper 在浏览器渲染后的DOM上抽取详情页字段
type DOMScraper struct {
	eval    Evaluator
	sel     models.ItemSelectors
	timeout time.Duration
}

// NewDOMScraper 创建DOM抽取器
func NewDOMScraper(eval Evaluator, sel models.ItemSelectors, timeout time.Duration) *DOMScraper {
	return &DOMScraper{eval: eval, sel: sel, timeout: timeout}
}

// loginRequired 登录选择器是否出现在文档中
func (s *DOMScraper) loginRequired(ctx context.Context) (bool, error) {
	if s.sel.LoginSelector == "" {
		return false, nil
	}
	return NewDocumentScope(s.eval).Exists(ctx, s.sel.LoginSelector)
}

// Scrape 抽取当前详情页
func (s *DOMScraper) Scrape(ctx context.Context, tag models.SourceTag) (*models.ScrapeResult, error) {
	login, err := s.loginRequired(ctx)
	if err != nil {
		return nil, err
	}
	if login {
		return &models.ScrapeResult{Status: models.ScrapeLoginRequired}, nil
	}

	scope := NewScope(s.eval, s.sel.ShadowHost)
	if s.sel.Loading != "" {
		if err := scope.WaitGone(ctx, s.sel.Loading, s.timeout); err != nil {
			return nil, err
		}
	}
	if s.sel.Ready != "" {
		if err := scope.WaitAppear(ctx, s.sel.Ready, s.timeout); err != nil {
			// 登录墙可能在加载过程中替换了内容
			if again, lerr := s.loginRequired(ctx); lerr == nil && again {
				return &models.ScrapeResult{Status: models.ScrapeLoginRequired}, nil
			}
			return nil, err
		}
	}

	html, err := scope.HTML(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := ExtractFields(html, s.sel.Scope, s.sel.FieldsFor(tag))
	if err != nil {
		if errors.Is(err, models.ErrScopeMissing) || errors.Is(err, models.ErrElementNotFound) {
			log.Debug().Err(err).Msg("字段抽取失败")
		}
		return nil, err
	}
	return &models.ScrapeResult{Status: models.ScrapeSuccess, Fields: fields}, nil
}
