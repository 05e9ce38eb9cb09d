package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/rs/zerolog/log"
)

// Command 控制命令
type Command string

const (
	CommandPauseOrResume Command = "pause-or-resume"
	CommandStop          Command = "stop"
)

// ParseCommand 解析命令行给出的控制命令
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pause", "resume", "toggle", string(CommandPauseOrResume):
		return CommandPauseOrResume, nil
	case string(CommandStop):
		return CommandStop, nil
	default:
		return "", fmt.Errorf("未知的控制命令: %s (有效值: pause, resume, stop)", s)
	}
}

// Channel 控制信号通道
// 只修改存储中的标志位,由控制器在检查点观察
type Channel struct {
	store store.Store
}

// NewChannel 创建控制信号通道
func NewChannel(s store.Store) *Channel {
	return &Channel{store: s}
}

// Send 发送命令,没有进行中的遍历时只记录日志
func (ch *Channel) Send(ctx context.Context, cmd Command) error {
	_, err := ch.send(ctx, cmd)
	return err
}

// send 返回命令是否作用到了某次遍历上
func (ch *Channel) send(ctx context.Context, cmd Command) (bool, error) {
	st, err := ch.store.Update(ctx, func(st *models.TraversalState) error {
		if !st.InProgress {
			return models.ErrNoActiveTraversal
		}
		switch cmd {
		case CommandPauseOrResume:
			st.IsPaused = !st.IsPaused
		case CommandStop:
			if st.StopReason == nil {
				r := models.StopReasonUserStop
				st.StopReason = &r
			}
		default:
			return fmt.Errorf("未知的控制命令: %s", cmd)
		}
		return nil
	})
	switch {
	case errors.Is(err, models.ErrNoActiveTraversal):
		utils.Warnf("没有进行中的遍历,忽略命令: %s", cmd)
		return false, nil
	case errors.Is(err, models.ErrStateCorrupt):
		utils.Warnf("遍历状态已损坏,忽略命令: %s", cmd)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("发送控制命令失败: %w", err)
	}

	switch {
	case cmd == CommandStop:
		utils.Infof("⏹️ 已请求停止,将在当前条目结束后返回列表页")
	case st.IsPaused:
		utils.Infof("⏸️ 已请求暂停,将在当前条目结束后暂停")
	default:
		utils.Infof("▶️ 已请求继续")
	}
	log.Debug().Str("command", string(cmd)).Str("run", st.RunID).Int("cursor", st.Cursor).Msg("控制命令已写入")
	return true, nil
}

// WatchSignals 把进程信号转换成控制命令
//
// 暂停信号(非Windows为SIGUSR1)切换暂停;第一次SIGINT/SIGTERM请求停止,
// 没有进行中的遍历时调用cancel;第二次调用exit。返回的函数取消监听。
func WatchSignals(ctx context.Context, ch *Channel, cancel context.CancelFunc, exit func()) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	registerPauseSignal(sigCh)

	done := make(chan struct{})
	go func() {
		interrupted := false
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if isPauseSignal(sig) {
					if err := ch.Send(ctx, CommandPauseOrResume); err != nil {
						utils.Errorf("%v", err)
					}
					continue
				}
				if interrupted {
					utils.Warnf("\n再次收到中断信号: %v, 立即退出", sig)
					exit()
					return
				}
				interrupted = true
				utils.Warnf("\n收到中断信号: %v, 正在停止遍历 (再按一次立即退出)...", sig)
				applied, err := ch.send(ctx, CommandStop)
				if err != nil {
					utils.Errorf("%v", err)
				}
				if !applied && cancel != nil {
					cancel()
				}
			}
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// KeyBinder 把页面按键绑定到回调
type KeyBinder interface {
	BindControlKeys(keys map[string]string, fn func(cmd string)) (func(), error)
}

// BindKeyboard 页面按键 → 控制命令
func BindKeyboard(ctx context.Context, b KeyBinder, ch *Channel, cfg models.TraversalConfig) (func(), error) {
	keys := map[string]string{}
	if cfg.PauseKey != "" {
		keys[cfg.PauseKey] = string(CommandPauseOrResume)
	}
	if cfg.StopKey != "" {
		keys[cfg.StopKey] = string(CommandStop)
	}
	if len(keys) == 0 {
		return func() {}, nil
	}
	return b.BindControlKeys(keys, func(cmd string) {
		c, err := ParseCommand(cmd)
		if err != nil {
			log.Warn().Err(err).Msg("忽略页面按键")
			return
		}
		if err := ch.Send(ctx, c); err != nil {
			utils.Errorf("%v", err)
		}
	})
}
