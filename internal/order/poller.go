package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// Poll is one bounded background status loop for a single order: fixed
// interval, capped attempts, early exit on a terminal status. It never
// blocks the caller and individual poll failures only skip the tick.
type Poll struct {
	scheduler *gocron.Scheduler
	done      chan struct{}
	once      sync.Once

	mu       sync.Mutex
	attempts int
}

// StartPolling launches the status loop for an order. The returned Poll
// can be cancelled deterministically with Stop; abandoning it after the
// attempt budget leaves the order in its last-known status.
func (m *Manager) StartPolling(orderID string) (*Poll, error) {
	s := gocron.NewScheduler(time.UTC)
	p := &Poll{scheduler: s, done: make(chan struct{})}

	_, err := s.Every(m.pollInterval).LimitRunsTo(m.pollMaxAttempts).StartImmediately().Do(func() {
		p.tick(m, orderID)
	})
	if err != nil {
		return nil, err
	}
	s.StartAsync()

	go func() {
		<-p.done
		s.Stop()
	}()
	return p, nil
}

func (p *Poll) tick(m *Manager, orderID string) {
	p.mu.Lock()
	p.attempts++
	n := p.attempts
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp, err := m.client.OrderStatus(ctx, orderID)
	if err != nil {
		// Transient; try again on the next tick.
		log.WithError(err).WithField("order", orderID).Debug("status poll failed")
		if n >= m.pollMaxAttempts {
			p.finish()
		}
		return
	}

	if status, ok := ParseStatus(resp.Status); ok {
		if err := m.store.UpdateStatus(ctx, orderID, status); err != nil {
			log.WithError(err).WithField("order", orderID).Warn("persist polled status")
		}
		if status.Terminal() {
			p.finish()
			return
		}
	} else {
		log.WithFields(log.Fields{"order": orderID, "status": resp.Status}).
			Warn("provider reported unknown order status")
	}

	if n >= m.pollMaxAttempts {
		p.finish()
	}
}

func (p *Poll) finish() {
	p.once.Do(func() { close(p.done) })
}

// Stop cancels the loop. Safe to call more than once; the already-submitted
// order is unaffected.
func (p *Poll) Stop() {
	p.finish()
}

// Done is closed when the loop has ended, by terminal status, exhausted
// attempts, or Stop.
func (p *Poll) Done() <-chan struct{} {
	return p.done
}

// Attempts returns how many poll ticks have run.
func (p *Poll) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
