package crawlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// ErrBrowserCrashed 页面操作中发生panic
var ErrBrowserCrashed = errors.New("浏览器崩溃")

// Browser 持有唯一的浏览器页面,遍历全程只使用这一个标签页
type Browser struct {
	browser *rod.Browser
	page    *rod.Page
	cfg     models.BrowserConfig
	monitor *ResourceMonitor

	loadTimeout time.Duration
}

// LaunchBrowser 启动浏览器并创建页面
func LaunchBrowser(cfg models.BrowserConfig, headers models.HeaderProvider, monitor *ResourceMonitor, loadTimeout time.Duration) (*Browser, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.UserDataDir != "" {
		// 保留登录态,遍历过程中的重新登录不会丢失
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.IgnoreCertErrors {
		l = l.Set("ignore-certificate-errors")
		utils.Warnf("浏览器已配置为跳过HTTPS证书验证,适用于内网/开发环境的自签名证书")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已启动: %s", controlURL)

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(rb)
	} else {
		page, err = rb.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		_ = rb.Close()
		return nil, fmt.Errorf("创建页面失败: %w", err)
	}

	if headers != nil {
		if err := applyExtraHeaders(page, headers); err != nil {
			_ = rb.Close()
			return nil, err
		}
	}

	if loadTimeout <= 0 {
		loadTimeout = 30 * time.Second
	}
	return &Browser{
		browser:     rb,
		page:        page,
		cfg:         cfg,
		monitor:     monitor,
		loadTimeout: loadTimeout,
	}, nil
}

// applyExtraHeaders 把自定义头部设置到页面发出的每个请求上
func applyExtraHeaders(page *rod.Page, provider models.HeaderProvider) error {
	headers, err := provider.GetHeaders()
	if err != nil {
		return fmt.Errorf("获取HTTP头部失败: %w", err)
	}

	var dict []string
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		// 浏览器自行管理这些头部
		switch strings.ToLower(name) {
		case "host", "content-length", "accept-encoding":
			continue
		}
		dict = append(dict, name, values[0])
	}
	if len(dict) == 0 {
		return nil
	}
	if _, err := page.SetExtraHeaders(dict); err != nil {
		return fmt.Errorf("设置HTTP头部失败: %w", err)
	}
	log.Debug().Int("count", len(dict)/2).Msg("已应用自定义HTTP头部")
	return nil
}

// Page 返回底层rod页面
func (b *Browser) Page() *rod.Page {
	return b.page
}

// Headless 是否无头模式
func (b *Browser) Headless() bool {
	return b.cfg.Headless
}

// EvalJSON 实现Evaluator
// js必须是函数表达式,返回值(包括Promise)按JSON解码到out,out为nil时丢弃
func (b *Browser) EvalJSON(ctx context.Context, js string, out any, args ...any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("页面求值发生panic")
			err = fmt.Errorf("%w: %v", ErrBrowserCrashed, r)
		}
	}()

	res, err := b.page.Context(ctx).Evaluate(rod.Eval(js, args...).ByPromise())
	if err != nil {
		return fmt.Errorf("执行页面脚本失败: %w", err)
	}
	if out == nil {
		return nil
	}
	if err := res.Value.Unmarshal(out); err != nil {
		return fmt.Errorf("解码页面脚本结果失败: %w", err)
	}
	return nil
}

// Navigate 导航并等待页面加载完成
// 资源紧张时先等待资源监控器放行
func (b *Browser) Navigate(ctx context.Context, target string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("url", target).Msg("导航发生panic")
			err = fmt.Errorf("%w: %v", ErrBrowserCrashed, r)
		}
	}()

	if err := b.monitor.WaitForCapacity(ctx); err != nil {
		return err
	}

	p := b.page.Context(ctx).Timeout(b.loadTimeout)
	if err := p.Navigate(target); err != nil {
		return fmt.Errorf("导航到 %s 失败: %w", target, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", target, err)
	}
	log.Debug().Str("url", target).Msg("页面已加载")
	return nil
}

// WaitUserNavigation 阻塞直到页面发生下一次加载(例如用户手动跳转或刷新)
func (b *Browser) WaitUserNavigation(ctx context.Context) error {
	wait := b.page.Context(ctx).WaitNavigation(proto.PageLifecycleEventNameLoad)
	wait()
	return ctx.Err()
}

// CurrentURL 返回当前页面地址
func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("读取页面信息失败: %w", err)
	}
	return info.URL, nil
}

// Cookies 返回浏览器中对pageURL可见的cookie
func (b *Browser) Cookies(ctx context.Context, pageURL string) ([]*http.Cookie, error) {
	cookies, err := b.page.Context(ctx).Cookies([]string{pageURL})
	if err != nil {
		return nil, fmt.Errorf("读取cookie失败: %w", err)
	}
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		})
	}
	return out, nil
}

const alertJS = `(msg) => { setTimeout(() => alert(msg), 0); }`

// Notify 发出阻塞式提示,无头模式下只记录日志
func (b *Browser) Notify(ctx context.Context, msg string) error {
	utils.Warnf("🔔 %s", msg)
	if b.cfg.Headless {
		return nil
	}
	return b.EvalJSON(ctx, alertJS, nil, msg)
}

const controlKeysJS = `(binding, keys) => {
	if (window.__listwalkKeys) return;
	window.__listwalkKeys = true;
	document.addEventListener("keydown", (e) => {
		const cmd = keys[e.key];
		if (!cmd || typeof window[binding] !== "function") return;
		e.preventDefault();
		window[binding](cmd);
	}, true);
}`

// BindControlKeys 把页面内按键映射为控制命令,keys为 按键 -> 命令
// 绑定在每次加载新文档时重新安装
func (b *Browser) BindControlKeys(keys map[string]string, fn func(cmd string)) (func(), error) {
	const binding = "listwalkControl"

	unbind, err := b.page.Expose(binding, func(j gson.JSON) (interface{}, error) {
		fn(j.Str())
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("绑定按键回调失败: %w", err)
	}

	keysJSON := gson.New(keys).JSON("", "")
	script := fmt.Sprintf("(%s)(%q, %s)", controlKeysJS, binding, keysJSON)
	remove, err := b.page.EvalOnNewDocument(script)
	if err != nil {
		_ = unbind()
		return nil, fmt.Errorf("安装按键监听失败: %w", err)
	}
	// 当前文档也立即生效
	if err := b.EvalJSON(context.Background(), controlKeysJS, nil, binding, keys); err != nil {
		log.Debug().Err(err).Msg("当前页面安装按键监听失败")
	}

	return func() {
		if err := remove(); err != nil {
			log.Debug().Err(err).Msg("移除按键监听失败")
		}
		if err := unbind(); err != nil {
			log.Debug().Err(err).Msg("解除按键回调失败")
		}
	}, nil
}

// Close 关闭浏览器
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	if err := b.browser.Close(); err != nil {
		return fmt.Errorf("关闭浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已关闭")
	return nil
}
