package crawlers

import (
	"testing"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

func testSite() *models.SiteConfig {
	return &models.SiteConfig{
		Name: "shop",
		ListRules: []models.ClassifierRule{
			{URLPrefix: "https://shop.example.com/", PathFragment: "/search", QueryMarker: "q", SourceTag: "search"},
			{URLPrefix: "https://shop.example.com/", PathFragment: "/campaign/", SourceTag: "campaign"},
			{URLPrefix: "https://shop.example.com/", PathFragment: "/list"},
		},
		ItemRules: []models.ClassifierRule{
			{URLPrefix: "https://shop.example.com/", PathFragment: "/item/"},
			// 详情页也可能以查询参数标识
			{URLPrefix: "https://shop.example.com/list", QueryMarker: "itemId"},
		},
		List: models.ListSelectors{Item: ".card"},
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(testSite())

	tests := []struct {
		name string
		url  string
		want models.PageKind
		tag  models.SourceTag
	}{
		{"搜索列表", "https://shop.example.com/search?q=coat", models.ListPage, models.SourceTagSearch},
		{"搜索页缺少标记参数", "https://shop.example.com/search", models.Unsupported, models.SourceTagDefault},
		{"活动列表", "https://shop.example.com/campaign/spring", models.ListPage, models.SourceTagCampaign},
		{"普通列表", "https://shop.example.com/list/coats", models.ListPage, models.SourceTagDefault},
		{"详情页", "https://shop.example.com/item/12", models.ItemPage, models.SourceTagDefault},
		{"详情规则优先", "https://shop.example.com/list/coats?itemId=3", models.ItemPage, models.SourceTagDefault},
		{"其他站点", "https://other.example.com/item/12", models.Unsupported, models.SourceTagDefault},
		{"无法解析", "://bad", models.Unsupported, models.SourceTagDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%s) = %s, 期望 %s", tt.url, got, tt.want)
			}
			if tt.want == models.ListPage {
				if got := c.SourceTag(tt.url); got != tt.tag {
					t.Errorf("SourceTag(%s) = %s, 期望 %s", tt.url, got, tt.tag)
				}
			}
		})
	}
}
