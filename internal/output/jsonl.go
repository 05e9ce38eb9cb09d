// Package output 把抓取到的条目投递到本地文件
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/rs/zerolog/log"
)

// JSONLSink 以JSON Lines格式追加写入 <dir>/<site>/items.jsonl
// 每次投递单独打开文件并fsync,进程在两次页面加载之间退出也不会丢失已投递的记录
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLSink 创建投递端
func NewJSONLSink(dir string) *JSONLSink {
	if dir == "" {
		dir = "output"
	}
	return &JSONLSink{dir: dir}
}

// Path 站点对应的输出文件
func (s *JSONLSink) Path(site string) string {
	if site == "" {
		site = "default"
	}
	return filepath.Join(s.dir, site, "items.jsonl")
}

// Deliver 写入一条记录,失败时返回包装了ErrDeliveryFailed的错误
func (s *JSONLSink) Deliver(ctx context.Context, item *models.ScrapedItem) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrDeliveryFailed, err)
	}
	line, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%w: 序列化失败: %v", models.ErrDeliveryFailed, err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(item.Site)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: 创建输出目录失败: %v", models.ErrDeliveryFailed, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("%w: 打开输出文件失败: %v", models.ErrDeliveryFailed, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("%w: 写入失败: %v", models.ErrDeliveryFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: 同步失败: %v", models.ErrDeliveryFailed, err)
	}

	log.Debug().Str("identifier", item.Identifier.String()).Int("cursor", item.Cursor).Msg("条目已投递")
	return nil
}
