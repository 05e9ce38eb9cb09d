package models

// HarvestReason 采集结束原因
type HarvestReason string

const (
	HarvestMaxReached   HarvestReason = "max_reached"            // 达到用户指定上限
	HarvestTotalReached HarvestReason = "reported_total_reached" // 达到页面声明的总数
	HarvestExhausted    HarvestReason = "exhausted"              // 无法继续滚动且无"加载更多"
	HarvestIdleLimit    HarvestReason = "idle_limit"             // 连续空转滚动次数达到上限
	HarvestScrollLimit  HarvestReason = "scroll_limit"           // 滚动次数达到上限
	HarvestTimeout      HarvestReason = "timeout"                // 整体等待超时(表格采集)
)

// ReportedTotal 页面声明的条目总数,未知时Known=false
type ReportedTotal struct {
	Value int
	Known bool
}

// UnknownTotal 未知总数
var UnknownTotal = ReportedTotal{}

// KnownTotal 构造已知总数
func KnownTotal(n int) ReportedTotal {
	return ReportedTotal{Value: n, Known: true}
}

// Candidate 列表中一个已渲染的候选元素
// Top/Bottom 为相对视口的垂直坐标
type Candidate struct {
	Ref    string  // 原始引用(通常为href)
	Top    float64 // 元素上边缘
	Bottom float64 // 元素下边缘
}

// Viewport 视口与滚动位置
type Viewport struct {
	Height       float64 // 视口高度
	ScrollTop    float64 // 当前滚动位置
	ScrollHeight float64 // 可滚动内容总高度
}

// AtBottom 是否已滚动到底部
func (v Viewport) AtBottom() bool {
	return v.ScrollTop+v.Height >= v.ScrollHeight-1
}

// Intersects 候选元素是否与视口在垂直方向相交
func (v Viewport) Intersects(c Candidate) bool {
	return c.Bottom > 0 && c.Top < v.Height
}

// HarvestSession 单次采集的临时会话,采集返回后即丢弃
type HarvestSession struct {
	seen    map[Identifier]struct{}
	ordered []Identifier

	TargetCount      int
	ScrollAttempts   int
	IdleScrolls      int
	LastTriggerCount int
	Triggers         int
}

// NewHarvestSession 创建采集会话
func NewHarvestSession(target int) *HarvestSession {
	return &HarvestSession{
		seen:        make(map[Identifier]struct{}),
		ordered:     make([]Identifier, 0, target),
		TargetCount: target,
	}
}

// Add 按发现顺序加入条目,已存在时返回false
func (s *HarvestSession) Add(id Identifier) bool {
	if id == "" {
		return false
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	s.ordered = append(s.ordered, id)
	return true
}

// Size 已发现条目数
func (s *HarvestSession) Size() int {
	return len(s.ordered)
}

// First 返回前n个已发现条目
func (s *HarvestSession) First(n int) []Identifier {
	if n > len(s.ordered) || n < 0 {
		n = len(s.ordered)
	}
	return append([]Identifier(nil), s.ordered[:n]...)
}

// HarvestResult 采集结果
type HarvestResult struct {
	Items          []Identifier  `json:"items"`
	Reason         HarvestReason `json:"reason"`
	ScrollAttempts int           `json:"scroll_attempts"`
	Triggers       int           `json:"triggers"`
}

// Row 增量渲染表格中的一行
type Row struct {
	Index int        // 页面显示的行号
	Ref   Identifier // 行对应的条目
}
