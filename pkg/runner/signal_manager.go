package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalManager scopes SIGINT and SIGTERM to one task at a time. The
// context it hands out ends on a signal or when parent ends; after a
// signal-driven interrupt, Reset arms a fresh context for the next task.
type SignalManager struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	resets int
}

// NewSignalManager starts listening immediately.
func NewSignalManager(parent context.Context) *SignalManager {
	sm := &SignalManager{parent: parent}
	sm.arm()
	return sm
}

// Context returns the current signal context.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Interrupted reports whether the current context ended because of a
// signal rather than because parent was cancelled.
func (sm *SignalManager) Interrupted() bool {
	return sm.ctx.Err() != nil && sm.parent.Err() == nil
}

// Interrupts counts the signal interrupts handled through Reset.
func (sm *SignalManager) Interrupts() int {
	return sm.resets
}

// Reset re-arms the listener after an interrupt. It does nothing while the
// current context is live or once parent is done.
func (sm *SignalManager) Reset() {
	if !sm.Interrupted() {
		return
	}
	sm.resets++
	sm.arm()
}

// Stop permanently stops the signal listener.
func (sm *SignalManager) Stop() {
	if sm.cancel != nil {
		sm.cancel()
	}
}

// CheckRace waits briefly to see if a context cancellation follows an error.
// On Windows consoles Ctrl+C can surface as a read error slightly before the
// signal context is cancelled.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() == nil {
		select {
		case <-sm.ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (sm *SignalManager) arm() {
	if sm.cancel != nil {
		sm.cancel()
	}
	sm.ctx, sm.cancel = signal.NotifyContext(sm.parent, os.Interrupt, syscall.SIGTERM)
}
