//go:build windows

package core

import "os"

// Windows没有SIGUSR1,暂停只能通过ctl命令或页面按键
func registerPauseSignal(sigCh chan<- os.Signal) {}

func isPauseSignal(sig os.Signal) bool { return false }
