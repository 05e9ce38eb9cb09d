package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Identifier 条目的规范化稳定键(通常是去掉易变查询参数后的URL)
type Identifier string

// String 实现fmt.Stringer
func (id Identifier) String() string {
	return string(id)
}

// StopReason 遍历终止原因
type StopReason string

const (
	StopReasonLoginRequired StopReason = "login_required" // 详情页要求登录
	StopReasonUserStop      StopReason = "user_stop"      // 用户发出停止信号
)

// Valid 检查终止原因是否为已知取值
func (r StopReason) Valid() bool {
	return r == StopReasonLoginRequired || r == StopReasonUserStop
}

// SourceTag 来源分类,原样转交给条目抓取器
type SourceTag string

const (
	SourceTagDefault   SourceTag = "default"   // 未配置来源规则
	SourceTagSearch    SourceTag = "search"    // 搜索结果列表
	SourceTagCampaign  SourceTag = "campaign"  // 活动/投放列表
	SourceTagRecommend SourceTag = "recommend" // 推荐列表
)

// ParseSourceTag 解析来源分类,空值回落为default
func ParseSourceTag(s string) (SourceTag, error) {
	switch SourceTag(s) {
	case "":
		return SourceTagDefault, nil
	case SourceTagDefault, SourceTagSearch, SourceTagCampaign, SourceTagRecommend:
		return SourceTag(s), nil
	default:
		return "", fmt.Errorf("未知的来源分类: %s", s)
	}
}

// TraversalState 持久化的遍历状态
// 跨页面导航存活,同一时刻只存在一份,由控制器在每次页面加载时读取
type TraversalState struct {
	// 运行信息
	RunID string `json:"runId,omitempty"` // 本次遍历的唯一ID (UUID)
	Site  string `json:"site,omitempty"`  // 站点配置名称

	// 控制标志
	InProgress bool `json:"inProgress"` // 多条目遍历是否进行中
	IsPaused   bool `json:"isPaused"`   // 协作式暂停标志

	// 进度
	Items  []Identifier `json:"items"`  // 采集到的条目序列,创建后不可变
	Cursor int          `json:"cursor"` // 当前处理的条目下标,只增不减

	OriginPage Identifier  `json:"originPage"` // 结束后返回的列表页
	SourceTag  SourceTag   `json:"sourceTag"`  // 来源分类
	StopReason *StopReason `json:"stopReason"` // 终止原因(可选)

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewTraversalState 创建新的遍历状态(cursor=0, inProgress=true)
func NewTraversalState(site string, origin Identifier, tag SourceTag, items []Identifier) (*TraversalState, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("条目序列不能为空")
	}
	if tag == "" {
		tag = SourceTagDefault
	}

	now := time.Now()
	st := &TraversalState{
		RunID:      uuid.NewString(),
		Site:       site,
		InProgress: true,
		Items:      append([]Identifier(nil), items...),
		Cursor:     0,
		OriginPage: origin,
		SourceTag:  tag,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return st, nil
}

// Validate 检查状态不变量
func (s *TraversalState) Validate() error {
	if len(s.Items) == 0 {
		return fmt.Errorf("条目序列为空")
	}
	if s.OriginPage == "" {
		return fmt.Errorf("缺少列表页地址")
	}
	if s.InProgress {
		if s.Cursor < 0 || s.Cursor >= len(s.Items) {
			return fmt.Errorf("游标越界: %d (条目数 %d)", s.Cursor, len(s.Items))
		}
	} else if s.Cursor < 0 || s.Cursor > len(s.Items) {
		return fmt.Errorf("游标越界: %d (条目数 %d)", s.Cursor, len(s.Items))
	}
	if s.StopReason != nil && !s.StopReason.Valid() {
		return fmt.Errorf("未知的终止原因: %s", *s.StopReason)
	}

	seen := make(map[Identifier]struct{}, len(s.Items))
	for i, id := range s.Items {
		if id == "" {
			return fmt.Errorf("第%d个条目为空", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("条目重复: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Current 返回游标处的条目
func (s *TraversalState) Current() (Identifier, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Items) {
		return "", false
	}
	return s.Items[s.Cursor], true
}

// Remaining 返回游标之后(含)尚未处理的条目
func (s *TraversalState) Remaining() []Identifier {
	if s.Cursor >= len(s.Items) {
		return nil
	}
	return append([]Identifier(nil), s.Items[s.Cursor:]...)
}

// StopPending 是否有尚未生效的停止信号
func (s *TraversalState) StopPending() bool {
	return s.InProgress && s.StopReason != nil
}

// Stop 标记遍历结束,inProgress=false 为终态
func (s *TraversalState) Stop(reason StopReason) {
	r := reason
	s.StopReason = &r
	s.InProgress = false
	s.IsPaused = false
	s.Touch()
}

// Touch 更新修改时间
func (s *TraversalState) Touch() {
	s.UpdatedAt = time.Now()
}

// Clone 深拷贝,避免调用方修改共享的条目切片
func (s *TraversalState) Clone() *TraversalState {
	if s == nil {
		return nil
	}
	c := *s
	c.Items = append([]Identifier(nil), s.Items...)
	if s.StopReason != nil {
		r := *s.StopReason
		c.StopReason = &r
	}
	return &c
}

// ToJSON 序列化为JSON
func (s *TraversalState) ToJSON() ([]byte, error) {
	return json.Marshal(s)
}

// ParseTraversalState 反序列化并校验,失败时返回ErrStateCorrupt
func ParseTraversalState(data []byte) (*TraversalState, error) {
	var st TraversalState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorrupt, err)
	}
	return &st, nil
}
