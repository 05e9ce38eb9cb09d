package main

import (
	"testing"

	"github.com/RecoveryAshes/listwalk/internal/store"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"HTTPS列表页", "https://shop.example.com/search?q=coat", false},
		{"HTTP列表页", "http://erp.example.com/orders", false},
		{"不支持的协议", "ftp://shop.example.com", true},
		{"非URL文本", "not a url", true},
		{"空URL", "", true},
		{"缺少协议", "shop.example.com", true},
		{"缺少主机名", "https:///search", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateURL(tt.url); (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		max     int
		wantErr bool
	}{
		{"有效参数", "https://shop.example.com/search?q=coat", 30, false},
		{"使用配置中的上限", "https://shop.example.com/search", 0, false},
		{"缺少协议", "shop.example.com/search", 30, true},
		{"不支持的协议", "ftp://shop.example.com/", 30, true},
		{"负数上限", "https://shop.example.com/search", -1, true},
		{"上限过大", "https://shop.example.com/search", maxItemsLimit + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunFlags(tt.url, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunFlags(%q, %d) error = %v, wantErr %v", tt.url, tt.max, err, tt.wantErr)
			}
		})
	}
}

func TestCtlBackendWarning(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		wantWarn bool
	}{
		{"默认后端", "", true},
		{"文件后端", store.BackendFile, true},
		{"sqlite后端", store.BackendSQLite, false},
		{"内存后端", store.BackendMemory, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ctlBackendWarning(tt.backend) != ""; got != tt.wantWarn {
				t.Errorf("ctlBackendWarning(%q) 警告 = %v, 期望 %v", tt.backend, got, tt.wantWarn)
			}
		})
	}
}
