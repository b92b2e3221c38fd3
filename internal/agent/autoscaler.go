package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AutoScaler grows a role's crew when everyone is busy and trims idle
// surplus, within the roster's per-role scaling bounds. It also drives the
// scheduler's retry sweep so queued tasks are picked up once capacity
// appears.
type AutoScaler struct {
	registry *Registry
	clock    clockwork.Clock
	interval time.Duration
	onScale  func()

	mu     sync.RWMutex
	roster *Roster
}

// NewAutoScaler creates an autoscaler. onScale runs after every cycle that
// changed capacity; the daemon wires it to the scheduler's sweep.
func NewAutoScaler(roster *Roster, registry *Registry, clock clockwork.Clock, interval time.Duration, onScale func()) *AutoScaler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &AutoScaler{
		registry: registry,
		clock:    clock,
		interval: interval,
		onScale:  onScale,
		roster:   roster,
	}
}

// SetRoster swaps scaling bounds, used on roster hot-reload.
func (s *AutoScaler) SetRoster(roster *Roster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster = roster
}

// Run scales on a fixed cadence until ctx is done.
func (s *AutoScaler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if s.PerformScaling() && s.onScale != nil {
				s.onScale()
			}
		}
	}
}

// PerformScaling runs one scaling pass and reports whether capacity
// changed.
func (s *AutoScaler) PerformScaling() bool {
	s.mu.RLock()
	roster := s.roster
	s.mu.RUnlock()

	changed := false
	for _, rc := range roster.Agents {
		if rc.Scaling == nil || !rc.Scaling.Auto {
			continue
		}

		agents := s.registry.AgentsByRole(rc.Role)
		if len(agents) == 0 {
			continue
		}
		busy, idle := s.registry.CountByStatus(rc.Role)
		total := len(agents)

		if busy == total && total < rc.Scaling.Max {
			a := s.registry.Register(rc.Role)
			slog.Info("scaled up", "role", rc.Role, "agent", a.ID())
			changed = true
			continue
		}

		if idle >= 2 && total > rc.Scaling.Min {
			if s.removeOneIdle(agents) {
				changed = true
			}
		}
	}
	return changed
}

func (s *AutoScaler) removeOneIdle(agents []*Agent) bool {
	for _, a := range agents {
		if a.Status() != StatusIdle {
			continue
		}
		if err := s.registry.Remove(a.ID()); err != nil {
			slog.Error("scale down failed", "agent", a.ID(), "error", err)
			return false
		}
		slog.Info("scaled down", "role", a.Role(), "agent", a.ID())
		return true
	}
	return false
}
