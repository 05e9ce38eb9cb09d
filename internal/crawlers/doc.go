// Package crawlers 提供浏览器驱动的列表采集与详情页抓取功能
//
// # 概述
//
// crawlers包围绕唯一的rod页面工作:判断页面类型、在虚拟列表中滚动收集条目、
// 在详情页上等待元素并抽取字段。遍历状态不在本包维护,由core包的控制器负责。
//
// # 核心组件
//
// ## Browser
//
// 基于go-rod的浏览器会话,可选stealth页面与自定义请求头部。
// 实现Evaluator接口,本包所有DOM访问都经由EvalJSON执行一段JS函数。
//
//	b, err := LaunchBrowser(cfg.Browser, headerManager, monitor, 30*time.Second)
//	if err != nil { /* 处理错误 */ }
//	defer b.Close()
//
// ## Harvester (虚拟列表采集器)
//
// 虚拟列表只渲染视口附近的元素,采集器以"小幅滚动若干次 + 阅读停顿"为一轮,
// 每轮后重新扫描可见候选并按归一化标识去重,直到达到上限、达到页面声明总数或列表耗尽。
// 滚动卡住时尝试点击"加载更多",仍无进展则返回已收集的部分结果。
//
//	view := NewDOMListView(b, site.List)
//	h := NewHarvester(view, NewNormalizer(site.VolatileParams), harvestCfg, NewRandomJitter(harvestCfg.Jitter, 0))
//	res, err := h.Harvest(ctx, 50, view.ReportedTotal(ctx))
//
// ## TableHarvester (增量表格采集器)
//
// 表格按行号增量渲染时,通过MutationObserver把新行推回Go(rod Expose),
// 每收到一行重置防抖计时器,计时器到期后滚动固定像素,整体受max_wait约束。
//
// ## Scope
//
// 文档或shadow root内的元素定位,WaitAppear超时返回ErrElementNotFound,
// 宿主始终不存在时返回ErrScopeMissing。
//
// ## DOMScraper / StaticScraper
//
// DOMScraper在渲染后的DOM上用goquery抽取字段;StaticScraper带着浏览器cookie
// 用colly重新请求当前页面,适用于服务端直出的详情页。
//
// ## ResourceMonitor (资源监控器)
//
// 用gopsutil采样系统可用内存和CPU负载,导航前资源不足时等待恢复,
// 超过max_wait后记录警告并继续。
package crawlers
