package pool

import (
	"context"
	"errors"
	"sync/atomic"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is between iterations.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is inside an iteration.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop after its current iteration.
	VUStateStopping
	// VUStateStopped indicates the VU goroutine has exited.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var errVUStopping = errors.New("virtual user is stopping")

// IterationFunc is one workload iteration executed by a virtual user.
type IterationFunc func(ctx context.Context) error

// VirtualUser is a single simulated client running a workload loop.
type VirtualUser struct {
	ID int

	state atomic.Int32

	// Stop signal, closed once by RequestStop
	stopCh chan struct{}

	iteration atomic.Int64
}

// NewVirtualUser creates a new idle virtual user.
func NewVirtualUser(id int) *VirtualUser {
	return &VirtualUser{
		ID:     id,
		stopCh: make(chan struct{}),
	}
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// GetIteration returns the number of iterations started.
func (vu *VirtualUser) GetIteration() int64 {
	return vu.iteration.Load()
}

// Stopping reports whether a stop was requested or the VU already stopped.
func (vu *VirtualUser) Stopping() bool {
	s := vu.GetState()
	return s == VUStateStopping || s == VUStateStopped
}

// RunIteration executes fn once.
//
// The VU never interrupts fn: a stop request only takes effect once fn
// returns. fn's error is returned as-is.
func (vu *VirtualUser) RunIteration(ctx context.Context, fn IterationFunc) error {
	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return errVUStopping
	}
	vu.iteration.Add(1)

	err := fn(ctx)

	// A concurrent RequestStop moves Running to Stopping; keep that.
	vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle))
	return err
}

// RequestStop signals the VU to stop after completing the current iteration.
//
// The state may flip between Idle and Running concurrently, so the swap is
// retried until it lands or another caller already moved the VU to
// Stopping or Stopped.
func (vu *VirtualUser) RequestStop() {
	for {
		cur := VUState(vu.state.Load())
		if cur == VUStateStopping || cur == VUStateStopped {
			return
		}
		if vu.state.CompareAndSwap(int32(cur), int32(VUStateStopping)) {
			close(vu.stopCh)
			return
		}
	}
}

// StopCh is closed when a stop has been requested.
func (vu *VirtualUser) StopCh() <-chan struct{} {
	return vu.stopCh
}

// MarkStopped marks the VU as fully stopped.
// Called by the pool when the VU goroutine exits.
func (vu *VirtualUser) MarkStopped() {
	vu.state.Store(int32(VUStateStopped))
}
