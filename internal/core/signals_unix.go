//go:build !windows

package core

import (
	"os"
	"os/signal"
	"syscall"
)

func registerPauseSignal(sigCh chan<- os.Signal) {
	signal.Notify(sigCh, syscall.SIGUSR1)
}

func isPauseSignal(sig os.Signal) bool {
	return sig == syscall.SIGUSR1
}
