package match

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired hitboxes are cleared.
const DefaultSweepInterval = 50 * time.Millisecond

// Sweeper periodically clears expired hitboxes in every live match.
// Deadlines are absolute, so a late tick never extends a hitbox.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	log      *zap.Logger
	observe  func(d time.Duration, cleared int)

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewSweeper creates a stopped sweeper. observe, if set, receives the
// duration and cleared count of every pass.
func NewSweeper(mg *Manager, interval time.Duration, log *zap.Logger, observe func(time.Duration, int)) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{manager: mg, interval: interval, log: log, observe: observe}
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stopChan, s.done)
	s.log.Info("sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the loop and waits for the current pass.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Sweeper) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce()
		case <-stop:
			return
		}
	}
}

// SweepOnce runs a single pass over every live match and returns the
// number of hitboxes cleared.
func (s *Sweeper) SweepOnce() int {
	start := time.Now()
	cleared := 0
	s.manager.ForEach(func(m *Match) {
		n := m.Sweep()
		if n > 0 {
			s.manager.emit(EventSweep, m.ID(), "", map[string]int{"cleared": n})
		}
		cleared += n
	})
	if s.observe != nil {
		s.observe(time.Since(start), cleared)
	}
	return cleared
}
