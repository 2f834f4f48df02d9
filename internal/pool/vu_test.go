package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestVirtualUser_Lifecycle(t *testing.T) {
	vu := NewVirtualUser(1)
	if vu.GetState() != VUStateIdle {
		t.Fatalf("initial state = %v, want idle", vu.GetState())
	}

	err := vu.RunIteration(context.Background(), func(ctx context.Context) error {
		if vu.GetState() != VUStateRunning {
			t.Errorf("state during iteration = %v, want running", vu.GetState())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if vu.GetIteration() != 1 {
		t.Errorf("GetIteration() = %d, want 1", vu.GetIteration())
	}
	if vu.GetState() != VUStateIdle {
		t.Errorf("state after iteration = %v, want idle", vu.GetState())
	}
}

func TestVirtualUser_StopDuringIterationIsKept(t *testing.T) {
	vu := NewVirtualUser(2)

	_ = vu.RunIteration(context.Background(), func(ctx context.Context) error {
		vu.RequestStop()
		return nil
	})

	if vu.GetState() != VUStateStopping {
		t.Fatalf("state = %v, want stopping", vu.GetState())
	}
	if err := vu.RunIteration(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, errVUStopping) {
		t.Errorf("RunIteration() after stop error = %v, want errVUStopping", err)
	}

	select {
	case <-vu.StopCh():
	default:
		t.Error("StopCh() not closed after RequestStop")
	}

	// Second stop request is a no-op
	vu.RequestStop()

	vu.MarkStopped()
	vu.RequestStop()
	if vu.GetState().String() != "stopped" {
		t.Errorf("String() = %s, want stopped", vu.GetState())
	}
}

func TestVirtualUser_IterationErrorPropagates(t *testing.T) {
	vu := NewVirtualUser(3)
	want := errors.New("request failed")

	if err := vu.RunIteration(context.Background(), func(ctx context.Context) error { return want }); !errors.Is(err, want) {
		t.Errorf("RunIteration() error = %v, want %v", err, want)
	}
	if vu.GetState() != VUStateIdle {
		t.Errorf("state after failed iteration = %v, want idle", vu.GetState())
	}
}

func TestVirtualUser_StopNeverLostWhileIterating(t *testing.T) {
	for trial := 0; trial < 500; trial++ {
		vu := NewVirtualUser(trial)
		started := make(chan struct{})
		done := make(chan struct{})

		go func() {
			defer close(done)
			close(started)
			for {
				if err := vu.RunIteration(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
					return
				}
			}
		}()

		<-started
		vu.RequestStop()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("trial %d: stop request lost, state = %v", trial, vu.GetState())
		}
		select {
		case <-vu.StopCh():
		default:
			t.Fatalf("trial %d: StopCh() not closed", trial)
		}
	}
}
