package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/publicsuffix"
)

// CookieSource 提供当前页面地址及其cookie,通常是浏览器会话
type CookieSource interface {
	CurrentURL(ctx context.Context) (string, error)
	Cookies(ctx context.Context, pageURL string) ([]*http.Cookie, error)
}

// StaticScraper 静态抓取器(使用Colly)
// 带着浏览器的登录态重新请求当前详情页,适用于服务端直出字段的站点
type StaticScraper struct {
	src            CookieSource
	headerProvider models.HeaderProvider
	sel            models.ItemSelectors
	client         *http.Client
}

// NewStaticScraper 创建静态抓取器
func NewStaticScraper(src CookieSource, headers models.HeaderProvider, sel models.ItemSelectors, timeout time.Duration, ignoreCertErrors bool) *StaticScraper {
	transport := &http.Transport{}
	if ignoreCertErrors {
		// 跳过证书验证,允许访问自签名、过期或主机名不匹配的HTTPS站点
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		utils.Debugf("静态抓取器: TLS证书验证已禁用")
	}
	return &StaticScraper{
		src:            src,
		headerProvider: headers,
		sel:            sel,
		client:         &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Scrape 抓取当前详情页
func (s *StaticScraper) Scrape(ctx context.Context, tag models.SourceTag) (*models.ScrapeResult, error) {
	pageURL, err := s.src.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("解析页面URL失败: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}
	cookies, err := s.src.Cookies(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	jar.SetCookies(u, cookies)

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.SetClient(s.client)
	c.SetCookieJar(jar)

	var (
		result  *models.ScrapeResult
		scrapeE error
	)

	c.OnRequest(func(r *colly.Request) {
		if s.headerProvider != nil {
			headers, err := s.headerProvider.GetHeaders()
			if err != nil {
				utils.Warnf("获取HTTP头部失败: %v", err)
			} else {
				for name, values := range headers {
					if len(values) > 0 {
						r.Headers.Set(name, values[0])
					}
				}
			}
		}
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		utils.Debugf("静态抓取: %s", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		if r.StatusCode == http.StatusUnauthorized || r.StatusCode == http.StatusForbidden {
			result = &models.ScrapeResult{Status: models.ScrapeLoginRequired}
			return
		}
		if r.StatusCode >= 400 {
			scrapeE = fmt.Errorf("静态抓取失败 [%s]: HTTP %d", pageURL, r.StatusCode)
			return
		}

		body := decodeBody(r.Headers.Get("Content-Encoding"), r.Body)
		result, scrapeE = s.extract(string(body), tag)
	})

	c.OnError(func(r *colly.Response, err error) {
		utils.Errorf("静态抓取错误 [%s]: %v", r.Request.URL, err)
		scrapeE = err
	})

	if err := c.Visit(pageURL); err != nil && scrapeE == nil {
		scrapeE = fmt.Errorf("静态抓取失败 [%s]: %w", pageURL, err)
	}
	if scrapeE != nil {
		return nil, scrapeE
	}
	if result == nil {
		return nil, fmt.Errorf("静态抓取没有收到响应: %s", pageURL)
	}
	return result, nil
}

// extract 在响应HTML上做登录检测与字段抽取
func (s *StaticScraper) extract(html string, tag models.SourceTag) (*models.ScrapeResult, error) {
	if s.sel.LoginSelector != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("解析HTML失败: %w", err)
		}
		if doc.Find(s.sel.LoginSelector).Length() > 0 {
			return &models.ScrapeResult{Status: models.ScrapeLoginRequired}, nil
		}
	}

	fields, err := ExtractFields(html, s.sel.Scope, s.sel.FieldsFor(tag))
	if err != nil {
		return nil, err
	}
	return &models.ScrapeResult{Status: models.ScrapeSuccess, Fields: fields}, nil
}

// decodeBody 解压响应体,失败时沿用原始内容
// colly会自行解开gzip,此时头部仍是gzip而内容已是明文
func decodeBody(contentEncoding string, body []byte) []byte {
	if contentEncoding == "" {
		return body
	}
	decompressed, err := decompressResponse(contentEncoding, body)
	if err != nil {
		utils.Debugf("解压响应失败 (编码=%s),使用原始内容: %v", contentEncoding, err)
		return body
	}
	return decompressed
}

// decompressResponse 根据Content-Encoding头部解压响应体
// 支持 gzip, deflate, br (Brotli) 三种压缩格式
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		// 未知编码,返回原始内容
		utils.Warnf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
