// Package sweep runs owned periodic maintenance tasks (session and throttle
// reclamation). A Sweeper is started explicitly and must be stopped by its
// owner; nothing here outlives Stop.
package sweep

import (
	"log/slog"
	"sync"
	"time"
)

// Task is one maintenance pass. It returns how many items it reclaimed.
type Task struct {
	Name string
	Run  func() int
}

// Sweeper calls every task once per interval on a single goroutine.
type Sweeper struct {
	interval time.Duration
	tasks    []Task
	logger   *slog.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start launches the sweep loop. A non-positive interval returns a Sweeper
// whose Stop is a no-op and which never runs.
func Start(interval time.Duration, logger *slog.Logger, tasks ...Task) *Sweeper {
	s := &Sweeper{
		interval: interval,
		tasks:    tasks,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if interval <= 0 || len(tasks) == 0 {
		return s
	}

	s.wg.Add(1)
	go s.loop()
	return s
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-s.done:
			return
		}
	}
}

// RunOnce executes every task immediately on the caller's goroutine.
func (s *Sweeper) RunOnce() {
	for _, task := range s.tasks {
		n := task.Run()
		if n > 0 && s.logger != nil {
			s.logger.Debug("sweep reclaimed entries", "task", task.Name, "count", n)
		}
	}
}

// Stop halts the loop and waits for an in-flight pass to finish. It is safe
// to call more than once.
func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
