package utils

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/RecoveryAshes/listwalk/internal/models"
)

func TestHeaderValidator_ValidateHeader(t *testing.T) {
	validator := NewHeaderValidator()

	tests := []struct {
		name        string
		headerName  string
		headerValue string
		expectError bool
		field       string
	}{
		{"合法头部", "User-Agent", "Mozilla/5.0", false, ""},
		{"名称含数字", "X-Request-ID-123", "abc", false, ""},
		{"值含引号", "X-Quote", `value "with" quotes`, false, ""},
		{"值含制表符", "X-Tab", "a\tb", false, ""},
		{"空名称", "", "v", true, "name"},
		{"名称含空格", "User Agent", "v", true, "name"},
		{"名称含下划线", "User_Agent", "v", true, "name"},
		{"禁止的Host", "host", "example.com", true, "name"},
		{"Cookie取自浏览器会话", "Cookie", "sid=1", true, "name"},
		{"值含中文", "X-Chinese", "测试中文", true, "value"},
		{"值含换行", "X-Inject", "a\r\nX-Evil: 1", true, "value"},
		{"值过长", "X-Long", strings.Repeat("a", MaxHeaderValueLength+1), true, "value"},
		{"值恰好达到上限", "X-Long", strings.Repeat("a", MaxHeaderValueLength), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateHeader(tt.headerName, tt.headerValue)
			if (err != nil) != tt.expectError {
				t.Fatalf("期望错误=%v, 实际错误=%v", tt.expectError, err)
			}
			if err == nil {
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("错误类型应为ValidationError, 实际 %T", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %s, 期望 %s", ve.Field, tt.field)
			}
		})
	}
}

func TestHeaderValidator_Validate(t *testing.T) {
	validator := NewHeaderValidator()

	ok := http.Header{"User-Agent": {"listwalk"}, "Accept-Language": {"zh-CN"}}
	if err := validator.Validate(ok); err != nil {
		t.Errorf("合法头部验证失败: %v", err)
	}
	bad := http.Header{"Accept": {"*/*"}, "Connection": {"close"}}
	if err := validator.Validate(bad); err == nil {
		t.Error("包含禁止头部时应返回错误")
	}
	if err := validator.Validate(nil); err != nil {
		t.Errorf("nil头部不应出错: %v", err)
	}
}

func TestHeaderRedactor(t *testing.T) {
	redactor := NewHeaderRedactor()

	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"非敏感头部原样输出", "User-Agent", "Mozilla/5.0", "Mozilla/5.0"},
		{"Bearer令牌", "Authorization", "Bearer abcdefghijk", "Bearer ***"},
		{"长密钥保留首尾", "X-Api-Key", "1234567890abcdef", "1234***cdef"},
		{"短密钥完全隐藏", "X-Token", "short", "***"},
		{"会话头部", "X-Session-Id", "s1", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redactor.RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactHeaderValue = %q, 期望 %q", got, tt.want)
			}
		})
	}

	headers := http.Header{
		"X-Token":    {"secret-value-123"},
		"User-Agent": {"listwalk"},
	}
	if got := redactor.RedactToString(headers); got != "User-Agent: listwalk, X-Token: secr***-123" {
		t.Errorf("RedactToString = %q", got)
	}
}
