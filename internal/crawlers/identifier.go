package crawlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

// 广告点击标识,任何站点都不会用它区分条目
// spm、from等参数含义因站点而异,由站点的volatile_params配置
var defaultVolatileParams = []string{"fbclid", "gclid"}

// Normalizer 将原始引用归一化为稳定的条目标识
// 两个原始引用归一化结果相同即视为同一条目
type Normalizer struct {
	volatile map[string]struct{}
	prefixes []string
}

// NewNormalizer 创建归一化器,volatile为站点配置的易变查询参数
// 以"*"结尾的参数名按前缀匹配,utm_* 始终被移除
func NewNormalizer(volatile []string) *Normalizer {
	n := &Normalizer{
		volatile: make(map[string]struct{}),
		prefixes: []string{"utm_"},
	}
	for _, p := range append(append([]string(nil), defaultVolatileParams...), volatile...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			n.prefixes = append(n.prefixes, strings.TrimSuffix(p, "*"))
			continue
		}
		n.volatile[p] = struct{}{}
	}
	return n
}

func (n *Normalizer) isVolatile(key string) bool {
	k := strings.ToLower(key)
	if _, ok := n.volatile[k]; ok {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(k, p) {
			return true
		}
	}
	return false
}

// Normalize 归一化绝对URL
func (n *Normalizer) Normalize(raw string) (models.Identifier, error) {
	return n.NormalizeRef(raw, "")
}

// NormalizeRef 以base为基准解析相对引用后归一化
func (n *Normalizer) NormalizeRef(raw, base string) (models.Identifier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("引用为空")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("解析引用失败: %w", err)
	}
	if !u.IsAbs() && base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("解析基准URL失败: %w", err)
		}
		u = b.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("不支持的协议: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("缺少主机名: %s", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for key := range q {
		if n.isVolatile(key) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode() // Encode按键排序
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return models.Identifier(u.String()), nil
}
