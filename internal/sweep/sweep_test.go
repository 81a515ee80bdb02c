package sweep

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSweeperRunsUntilStopped(t *testing.T) {
	var calls atomic.Int64
	s := Start(5*time.Millisecond, nil, Task{Name: "count", Run: func() int {
		calls.Add(1)
		return 0
	}})

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not run")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Fatal("sweeper kept running after Stop")
	}

	s.Stop()
}

func TestSweeperDisabledInterval(t *testing.T) {
	var calls atomic.Int64
	s := Start(0, nil, Task{Name: "noop", Run: func() int {
		calls.Add(1)
		return 1
	}})
	time.Sleep(10 * time.Millisecond)
	s.Stop()

	if calls.Load() != 0 {
		t.Fatal("expected disabled sweeper to never run")
	}

	s.RunOnce()
	if calls.Load() != 1 {
		t.Fatal("expected RunOnce to run tasks synchronously")
	}
}
