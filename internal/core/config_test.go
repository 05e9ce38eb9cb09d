package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
)

const sampleConfig = `
store:
  backend: sqlite
  dir: /tmp/listwalk-state
traversal:
  poll_interval: 500ms
  max_items: 20
harvest:
  max_idle_scrolls: 6
sites:
  - name: shop
    list_rules:
      - url_prefix: https://shop.example.com/search
        query_marker: q
        source_tag: search
      - url_prefix: https://shop.example.com/promo
        source_tag: campaign
    item_rules:
      - url_prefix: https://shop.example.com/item/
    volatile_params: [spm, "trk_*"]
    list:
      shadow_host: shop-results
      item: a.card
      load_more: button.more
      reported_total:
        selector: "#total"
        attr: data-count
    item:
      scope: main.detail
      login_selector: form#login
      fields:
        - name: title
          selector: h1
          required: true
        - name: image
          selector: img.hero
          attr: src
      tag_fields:
        campaign:
          - name: promo_price
            selector: .promo
    harvest:
      trigger_threshold: 30
      settle_delay: 3s
  - name: orders
    mode: table
    list_rules:
      - url_prefix: https://erp.example.com/orders
    item_rules:
      - url_prefix: https://erp.example.com/order/
    table:
      row: tr.order
      link: a.order-link
      index_attr: data-row
    table_harvest:
      max_wait: 1m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("LoadConfig失败: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate失败: %v", err)
	}

	if cfg.Store.Backend != store.BackendSQLite || cfg.Store.Dir != "/tmp/listwalk-state" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Traversal.PollInterval != 500*time.Millisecond || cfg.Traversal.MaxItems != 20 {
		t.Errorf("traversal = %+v", cfg.Traversal)
	}
	// 未写出的值使用默认
	if cfg.Traversal.ElementTimeout != models.DefaultTraversalConfig().ElementTimeout {
		t.Errorf("element_timeout = %v, 期望默认值", cfg.Traversal.ElementTimeout)
	}
	if cfg.Output.Dir != "output" || !cfg.Browser.Stealth || cfg.Browser.Headless {
		t.Errorf("默认值错误: output=%s browser=%+v", cfg.Output.Dir, cfg.Browser)
	}
	if cfg.Resource.SafetyThreshold != models.DefaultResourceConfig().SafetyThreshold {
		t.Errorf("resource = %+v", cfg.Resource)
	}

	if len(cfg.Sites) != 2 {
		t.Fatalf("站点数 = %d, 期望 2", len(cfg.Sites))
	}
	shop, err := cfg.Site("shop")
	if err != nil {
		t.Fatal(err)
	}
	if shop.List.ReportedTotal.Attr != "data-count" || shop.List.ShadowHost != "shop-results" {
		t.Errorf("list = %+v", shop.List)
	}
	if len(shop.Item.Fields) != 2 || !shop.Item.Fields[0].Required || shop.Item.Fields[1].Attr != "src" {
		t.Errorf("fields = %+v", shop.Item.Fields)
	}
	if fields := shop.Item.FieldsFor(models.SourceTagCampaign); len(fields) != 3 {
		t.Errorf("campaign字段数 = %d, 期望 3", len(fields))
	}
	if len(shop.VolatileParams) != 2 {
		t.Errorf("volatile_params = %v", shop.VolatileParams)
	}

	t.Run("站点级采集参数覆盖全局值", func(t *testing.T) {
		h := cfg.HarvestFor(shop)
		if h.TriggerThreshold != 30 || h.SettleDelay != 3*time.Second {
			t.Errorf("站点覆盖未生效: %+v", h)
		}
		if h.MaxIdleScrolls != 6 {
			t.Errorf("max_idle_scrolls = %d, 期望全局值 6", h.MaxIdleScrolls)
		}
		if h.Jitter != models.DefaultJitterConfig() {
			t.Errorf("jitter = %+v, 期望默认值", h.Jitter)
		}

		orders, _ := cfg.Site("orders")
		tb := cfg.TableFor(orders)
		if tb.MaxWait != time.Minute || tb.ScrollPixels != models.DefaultTableConfig().ScrollPixels {
			t.Errorf("table = %+v", tb)
		}
	})

	t.Run("按URL查找站点", func(t *testing.T) {
		tests := []struct {
			url     string
			want    string
			wantErr bool
		}{
			{"https://shop.example.com/search?q=coat", "shop", false},
			{"https://shop.example.com/item/42", "shop", false},
			{"https://erp.example.com/orders?page=2", "orders", false},
			{"https://shop.example.com/search", "", true}, // 缺少q参数
			{"https://unknown.example.com/", "", true},
		}
		for _, tt := range tests {
			site, err := cfg.SiteForURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("SiteForURL(%s) error = %v", tt.url, err)
				continue
			}
			if err == nil && site.Name != tt.want {
				t.Errorf("SiteForURL(%s) = %s, 期望 %s", tt.url, site.Name, tt.want)
			}
		}
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig失败: %v", err)
	}
	if cfg.Store.Backend != store.BackendFile || cfg.Store.Dir != "state" {
		t.Errorf("store默认值 = %+v", cfg.Store)
	}
	if cfg.Harvest != models.DefaultHarvestConfig() {
		t.Errorf("harvest默认值 = %+v", cfg.Harvest)
	}
	if cfg.Table != models.DefaultTableConfig() {
		t.Errorf("table默认值 = %+v", cfg.Table)
	}
	lc := cfg.LogConfig()
	if lc.Level != "debug" || lc.LogDir != "logs" || lc.MaxSize != 10 {
		t.Errorf("LogConfig = %+v", lc)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "站点") {
		t.Errorf("没有站点时应验证失败, 实际 %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"无效的存储后端", func(c *Config) { c.Store.Backend = "redis" }},
		{"轮询间隔为0", func(c *Config) { c.Traversal.PollInterval = 0 }},
		{"站点名称重复", func(c *Config) { c.Sites = append(c.Sites, c.Sites[0]) }},
		{"站点缺少item规则", func(c *Config) { c.Sites[0].ItemRules = nil }},
		{"站点覆盖后参数无效", func(c *Config) { c.Sites[0].Harvest.Jitter.StepMax = 2 }},
		{"无效的mode", func(c *Config) { c.Sites[1].Mode = "grid" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, sampleConfig))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("期望验证失败, 但成功了")
			}
		})
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	headless := true
	cfg.MergeCLIFlags(CLIOverrides{
		MaxItems:  5,
		Headless:  &headless,
		Backend:   store.BackendMemory,
		OutputDir: "out",
	})
	if cfg.Traversal.MaxItems != 5 || !cfg.Browser.Headless || cfg.Store.Backend != store.BackendMemory || cfg.Output.Dir != "out" {
		t.Errorf("命令行参数未生效: %+v", cfg)
	}
	if cfg.Store.Dir != "/tmp/listwalk-state" || cfg.Logging.Level != "info" {
		t.Error("未指定的命令行参数不应覆盖配置")
	}
}
