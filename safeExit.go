package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var SafeExitInst *SafeExit

func InitSafeExit() {
	SafeExitInst = new(SafeExit)
	go SafeExitInst.ListenSignal()
}

// SafeExit runs registered cleanups when the process is told to stop.
type SafeExit struct {
	funcs []func()
	mu    sync.Mutex
	exit  func(code int)
}

func (s *SafeExit) Register(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.funcs = append(s.funcs, f)
}

// Run calls the cleanups, latest registered first, then exits with code.
func (s *SafeExit) Run(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.funcs) - 1; i >= 0; i-- {
		s.funcs[i]()
	}
	s.funcs = nil
	if s.exit != nil {
		s.exit(code)
		return
	}
	os.Exit(code)
}

func (s *SafeExit) ListenSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for sig := range sigs {
		log.Warnf("received signal %s, stopping task, please wait", sig)
		s.Run(1)
	}
}
