package models

import (
	"fmt"
	"regexp"
	"strings"
)

// PageKind 页面分类
type PageKind int

const (
	Unsupported PageKind = iota // 不支持的页面
	ListPage                    // 列表页
	ItemPage                    // 条目详情页
)

// String 实现fmt.Stringer
func (k PageKind) String() string {
	switch k {
	case ListPage:
		return "list"
	case ItemPage:
		return "item"
	default:
		return "unsupported"
	}
}

// ClassifierRule 页面分类规则
// URL以URLPrefix开头、路径包含PathFragment、且(若配置)查询串包含QueryMarker参数时匹配
type ClassifierRule struct {
	URLPrefix    string `mapstructure:"url_prefix" yaml:"url_prefix"`
	PathFragment string `mapstructure:"path_fragment" yaml:"path_fragment"`
	QueryMarker  string `mapstructure:"query_marker" yaml:"query_marker"`
	SourceTag    string `mapstructure:"source_tag" yaml:"source_tag"` // 仅对列表页规则有意义
}

// Validate 验证规则
func (r ClassifierRule) Validate() error {
	if strings.TrimSpace(r.URLPrefix) == "" {
		return fmt.Errorf("分类规则缺少url_prefix")
	}
	if _, err := ParseSourceTag(r.SourceTag); err != nil {
		return err
	}
	return nil
}

// FieldSpec 详情页字段抽取规则
type FieldSpec struct {
	Name     string `mapstructure:"name"`
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`     // 为空时取文本
	Required bool   `mapstructure:"required"` // 必填字段缺失视为元素未找到
}

// ReportedTotalSelector 页面声明总数的读取位置
type ReportedTotalSelector struct {
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`    // 为空时取文本
	Pattern  string `mapstructure:"pattern"` // 第一个捕获组为总数,文本含多个数字时使用
}

// ListSelectors 虚拟列表相关选择器
type ListSelectors struct {
	ShadowHost    string                `mapstructure:"shadow_host"` // 列表位于该宿主的shadow root内
	Container     string                `mapstructure:"container"`   // 滚动容器,为空时滚动window
	Item          string                `mapstructure:"item"`        // 候选元素
	LinkAttr      string                `mapstructure:"link_attr"`   // 默认href
	LoadMore      string                `mapstructure:"load_more"`   // "加载更多"控件
	ReportedTotal ReportedTotalSelector `mapstructure:"reported_total"`
}

// TableSelectors 增量渲染表格相关选择器
type TableSelectors struct {
	Container string `mapstructure:"container"`  // 表格滚动容器
	Row       string `mapstructure:"row"`        // 行选择器
	IndexAttr string `mapstructure:"index_attr"` // 行号属性,为空时读取首个单元格文本
	Link      string `mapstructure:"link"`       // 行内链接选择器
}

// ItemSelectors 详情页相关选择器
type ItemSelectors struct {
	ShadowHost    string      `mapstructure:"shadow_host"`    // 字段位于该宿主的shadow root内
	Scope         string      `mapstructure:"scope"`          // 必须存在的嵌套作用域
	Ready         string      `mapstructure:"ready"`          // 抽取前等待出现的元素
	LoginSelector string      `mapstructure:"login_selector"` // 出现即判定需要登录
	Loading       string      `mapstructure:"loading"`        // 抽取前等待消失的加载遮罩
	OriginAnchor  string      `mapstructure:"origin_anchor"`  // 返回列表页后等待稳定的元素
	Static        bool        `mapstructure:"static"`         // 使用静态抓取器
	Fields        []FieldSpec `mapstructure:"fields"`

	// TagFields 按来源分类追加的字段,如活动列表进入的详情页额外抽取活动价
	TagFields map[string][]FieldSpec `mapstructure:"tag_fields"`
}

// FieldsFor 返回某来源分类适用的全部字段
func (s ItemSelectors) FieldsFor(tag SourceTag) []FieldSpec {
	extra := s.TagFields[string(tag)]
	if len(extra) == 0 {
		return s.Fields
	}
	out := make([]FieldSpec, 0, len(s.Fields)+len(extra))
	out = append(out, s.Fields...)
	return append(out, extra...)
}

// SiteConfig 单个站点的配置
type SiteConfig struct {
	Name           string           `mapstructure:"name"`
	Mode           string           `mapstructure:"mode"` // list(虚拟列表) 或 table(增量表格)
	ListRules      []ClassifierRule `mapstructure:"list_rules"`
	ItemRules      []ClassifierRule `mapstructure:"item_rules"`
	VolatileParams []string         `mapstructure:"volatile_params"`
	List           ListSelectors    `mapstructure:"list"`
	Table          TableSelectors   `mapstructure:"table"`
	Item           ItemSelectors    `mapstructure:"item"`
	Harvest        HarvestConfig    `mapstructure:"harvest"` // 非零字段覆盖全局值
	TableHarvest   TableConfig      `mapstructure:"table_harvest"`
}

const (
	SiteModeList  = "list"
	SiteModeTable = "table"
)

// Validate 验证站点配置
func (s *SiteConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("站点缺少name")
	}
	if len(s.ListRules) == 0 || len(s.ItemRules) == 0 {
		return fmt.Errorf("站点 %s 必须同时配置list_rules和item_rules", s.Name)
	}
	for _, r := range append(append([]ClassifierRule(nil), s.ListRules...), s.ItemRules...) {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("站点 %s: %w", s.Name, err)
		}
	}

	switch s.Mode {
	case "", SiteModeList:
		if s.List.Item == "" {
			return fmt.Errorf("站点 %s 缺少list.item选择器", s.Name)
		}
	case SiteModeTable:
		if s.Table.Row == "" || s.Table.Link == "" {
			return fmt.Errorf("站点 %s 缺少table.row或table.link选择器", s.Name)
		}
	default:
		return fmt.Errorf("站点 %s 的mode无效: %s (有效值: list, table)", s.Name, s.Mode)
	}

	if p := s.List.ReportedTotal.Pattern; p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("站点 %s 的reported_total.pattern无效: %w", s.Name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("站点 %s 的reported_total.pattern缺少捕获组", s.Name)
		}
	}

	for _, f := range s.Item.Fields {
		if f.Name == "" || f.Selector == "" {
			return fmt.Errorf("站点 %s 存在缺少name或selector的字段", s.Name)
		}
	}
	for tag, fields := range s.Item.TagFields {
		if _, err := ParseSourceTag(tag); err != nil {
			return fmt.Errorf("站点 %s 的tag_fields: %w", s.Name, err)
		}
		for _, f := range fields {
			if f.Name == "" || f.Selector == "" {
				return fmt.Errorf("站点 %s 的tag_fields[%s]存在缺少name或selector的字段", s.Name, tag)
			}
		}
	}
	return nil
}
