package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalManager scopes a conversation loop to SIGINT and SIGTERM.
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager derives a context from parent that is cancelled on the
// first interrupt. A nil parent means context.Background.
func NewSignalManager(parent context.Context) *SignalManager {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return &SignalManager{ctx: ctx, cancel: cancel}
}

// Context is done once a signal arrives, parent is cancelled or Stop is called.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop unregisters the signal handler. Safe to call more than once.
func (sm *SignalManager) Stop() {
	sm.cancel()
}
