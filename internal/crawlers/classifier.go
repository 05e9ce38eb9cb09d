package crawlers

import (
	"net/url"
	"strings"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// Classifier 按站点规则判断页面类型,无状态、无副作用
type Classifier struct {
	listRules []models.ClassifierRule
	itemRules []models.ClassifierRule
}

// NewClassifier 从站点配置创建分类器
func NewClassifier(site *models.SiteConfig) *Classifier {
	return &Classifier{
		listRules: site.ListRules,
		itemRules: site.ItemRules,
	}
}

// Classify 判断URL对应的页面类型,详情规则优先于列表规则
func (c *Classifier) Classify(rawURL string) models.PageKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.Unsupported
	}
	if _, ok := firstMatch(c.itemRules, rawURL, u); ok {
		return models.ItemPage
	}
	if _, ok := firstMatch(c.listRules, rawURL, u); ok {
		return models.ListPage
	}
	return models.Unsupported
}

// SourceTag 返回匹配的列表规则所声明的来源分类
func (c *Classifier) SourceTag(rawURL string) models.SourceTag {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.SourceTagDefault
	}
	r, ok := firstMatch(c.listRules, rawURL, u)
	if !ok {
		return models.SourceTagDefault
	}
	tag, err := models.ParseSourceTag(r.SourceTag)
	if err != nil {
		return models.SourceTagDefault
	}
	return tag
}

func firstMatch(rules []models.ClassifierRule, raw string, u *url.URL) (models.ClassifierRule, bool) {
	for _, r := range rules {
		if matchRule(r, raw, u) {
			return r, true
		}
	}
	return models.ClassifierRule{}, false
}

func matchRule(r models.ClassifierRule, raw string, u *url.URL) bool {
	if !strings.HasPrefix(raw, r.URLPrefix) {
		return false
	}
	if r.PathFragment != "" && !strings.Contains(u.Path, r.PathFragment) {
		return false
	}
	if r.QueryMarker != "" && !u.Query().Has(r.QueryMarker) {
		return false
	}
	return true
}
