package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Reporter 报告生成器
type Reporter struct {
	outputDir string
	site      string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string, site string) *Reporter {
	return &Reporter{
		outputDir: outputDir,
		site:      site,
	}
}

// Dir 报告目录
func (r *Reporter) Dir() string {
	return filepath.Join(r.outputDir, r.site, "reports")
}

// GenerateReport 生成遍历报告,返回报告文件路径
func (r *Reporter) GenerateReport(report *models.TraversalReport) (string, error) {
	reportsDir := r.Dir()
	if err := os.MkdirAll(reportsDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	name := "traversal_report.json"
	if report.RunID != "" {
		name = fmt.Sprintf("traversal_%s.json", report.RunID)
	}
	path, err := r.saveJSONReport(reportsDir, name, report)
	if err != nil {
		return "", err
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(dir string, filename string, data interface{}) (string, error) {
	path := filepath.Join(dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return path, nil
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
