package models

import "time"

// ScrapeStatus 条目抓取结果状态
type ScrapeStatus string

const (
	ScrapeSuccess       ScrapeStatus = "success"
	ScrapeError         ScrapeStatus = "error"
	ScrapeLoginRequired ScrapeStatus = "login_required"
)

// ScrapeResult 条目抓取器的返回值
type ScrapeResult struct {
	Status ScrapeStatus      `json:"status"`
	Fields map[string]string `json:"fields,omitempty"`
}

// LoginRequired 是否需要登录
func (r *ScrapeResult) LoginRequired() bool {
	return r != nil && r.Status == ScrapeLoginRequired
}

// ScrapedItem 投递到输出端的单条记录
type ScrapedItem struct {
	RunID      string            `json:"runId"`
	Site       string            `json:"site"`
	Identifier Identifier        `json:"identifier"`
	Cursor     int               `json:"cursor"`
	SourceTag  SourceTag         `json:"sourceTag"`
	Fields     map[string]string `json:"fields"`
	ScrapedAt  time.Time         `json:"scrapedAt"`
}

// NewScrapedItem 根据当前遍历状态构造投递记录
func NewScrapedItem(st *TraversalState, id Identifier, fields map[string]string) *ScrapedItem {
	return &ScrapedItem{
		RunID:      st.RunID,
		Site:       st.Site,
		Identifier: id,
		Cursor:     st.Cursor,
		SourceTag:  st.SourceTag,
		Fields:     fields,
		ScrapedAt:  time.Now(),
	}
}
