package models

import "errors"

// 条目级与遍历级错误
var (
	ErrElementNotFound = errors.New("等待元素超时")
	ErrScopeMissing    = errors.New("嵌套DOM作用域不存在")
	ErrStateCorrupt    = errors.New("遍历状态已损坏")
	ErrDeliveryFailed  = errors.New("条目投递失败")

	ErrNotListPage       = errors.New("当前页面不是列表页")
	ErrTraversalActive   = errors.New("已有进行中的遍历")
	ErrNothingHarvested  = errors.New("列表中未采集到任何条目")
	ErrNoActiveTraversal = errors.New("没有进行中的遍历")
)
