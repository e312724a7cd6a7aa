package services

import (
	"sync"
	"time"
)

// TickerAlarm wakes a callback on a fixed interval from its own goroutine
type TickerAlarm struct {
	mu   sync.Mutex
	stop chan struct{}
}

func NewTickerAlarm() *TickerAlarm {
	return &TickerAlarm{}
}

// Schedule replaces any running registration
func (a *TickerAlarm) Schedule(interval time.Duration, wake func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cancelLocked()
	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	a.stop = stop
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				wake()
			case <-stop:
				return
			}
		}
	}()
}

// Cancel stops future wake-ups
func (a *TickerAlarm) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
}

func (a *TickerAlarm) cancelLocked() {
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
}
