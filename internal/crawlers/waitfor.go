package crawlers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout 等待条件超时
var ErrWaitTimeout = errors.New("等待条件超时")

// Condition 在实时视图上求值的条件
type Condition func(ctx context.Context) (bool, error)

// Until 轮询cond直到其成立、出错、超时或ctx取消
// 超时返回包装了ErrWaitTimeout的错误
func Until(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w (%v)", ErrWaitTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// Sample 读取一次观测值,present=false表示目标不存在
type Sample func(ctx context.Context) (value string, present bool, err error)

// Stable 等待观测值出现并在window时长内保持不变
func Stable(ctx context.Context, timeout, window, interval time.Duration, sample Sample) error {
	var (
		last  string
		since time.Time
		seen  bool
	)
	return Until(ctx, timeout, interval, func(ctx context.Context) (bool, error) {
		v, present, err := sample(ctx)
		if err != nil {
			return false, err
		}
		if !present {
			seen = false
			return false, nil
		}
		if !seen || v != last {
			last, since, seen = v, time.Now(), true
			return window <= 0, nil
		}
		return time.Since(since) >= window, nil
	})
}

// Sleep 可被ctx打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
