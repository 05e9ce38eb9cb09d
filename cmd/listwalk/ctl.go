package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/RecoveryAshes/listwalk/internal/core"
	"github.com/RecoveryAshes/listwalk/internal/models"
	"github.com/RecoveryAshes/listwalk/internal/store"
	"github.com/RecoveryAshes/listwalk/internal/utils"
	"github.com/spf13/cobra"
)

var statusJSON bool

var ctlCmd = &cobra.Command{
	Use:   "ctl <pause|resume|stop>",
	Short: "向进行中的遍历发送控制命令",
	Long: `向进行中的遍历发送控制命令,命令写入共享的状态存储,
由遍历进程在当前条目结束后的检查点生效。

跨进程控制建议使用 sqlite 后端 (--backend sqlite)。`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"pause", "resume", "stop"},
	RunE: func(cmd *cobra.Command, args []string) error {
		command, err := core.ParseCommand(args[0])
		if err != nil {
			return err
		}
		if w := ctlBackendWarning(appConfig.Store.Backend); w != "" {
			utils.Warnf("%s", w)
		}
		s, err := store.Open(appConfig.Store)
		if err != nil {
			return fmt.Errorf("打开状态存储失败: %w", err)
		}
		defer s.Close()
		return core.NewChannel(s).Send(context.Background(), command)
	},
}

// ctlBackendWarning 文件后端的读-改-写不跨进程加锁,ctl的写入可能被遍历进程的检查点覆盖
func ctlBackendWarning(backend string) string {
	if backend != "" && backend != store.BackendFile {
		return ""
	}
	return "⚠️ 文件后端不支持跨进程加锁,本次命令可能被遍历进程的检查点覆盖;可用 status 确认,或改用 --backend sqlite"
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示当前遍历状态",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := peekState(appConfig)
		if err != nil {
			return err
		}
		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		printStatus(st)
		return nil
	},
}

// printStatus 输出人类可读的状态
func printStatus(st *models.TraversalState) {
	if st == nil {
		fmt.Println("没有遍历状态")
		return
	}

	phase := "进行中"
	switch {
	case !st.InProgress:
		phase = "已结束 (等待返回列表页)"
	case st.StopPending():
		phase = "停止中"
	case st.IsPaused:
		phase = "已暂停"
	}

	fmt.Println("==================================================")
	fmt.Println("📋 遍历状态")
	fmt.Println("==================================================")
	fmt.Printf("运行ID:   %s\n", st.RunID)
	fmt.Printf("站点:     %s\n", st.Site)
	fmt.Printf("状态:     %s\n", phase)
	fmt.Printf("进度:     %d/%d\n", st.Cursor+1, len(st.Items))
	fmt.Printf("来源分类: %s\n", st.SourceTag)
	fmt.Printf("列表页:   %s\n", st.OriginPage)
	if cur, ok := st.Current(); ok {
		fmt.Printf("当前条目: %s\n", cur)
	}
	if st.StopReason != nil {
		fmt.Printf("终止原因: %s\n", *st.StopReason)
	}
	fmt.Printf("更新时间: %s\n", st.UpdatedAt.Format(time.DateTime))
	fmt.Println("==================================================")
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "以JSON格式输出")
}
