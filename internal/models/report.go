package models

import "time"

// TraversalReport 一次遍历的统计
// 每次页面加载都会重建进程上下文,因此统计只覆盖当前进程内经过的条目
type TraversalReport struct {
	RunID     string        `json:"runId"`
	Site      string        `json:"site"`
	Total     int           `json:"total"`     // 采集到的条目数
	Visited   int           `json:"visited"`   // 本进程处理的条目数
	Succeeded int           `json:"succeeded"` // 抓取成功
	Failed    int           `json:"failed"`    // 抓取失败(已跳过)
	Delivered int           `json:"delivered"` // 投递成功
	Outcome   string        `json:"outcome"`   // completed / stopped / login_required
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
}

// Finish 记录结束时间
func (r *TraversalReport) Finish(outcome string) {
	r.Outcome = outcome
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}
