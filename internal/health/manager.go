package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager periodically runs registered checkers and caches their results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	results  map[string]CheckResult
	interval time.Duration
	logger   *zap.Logger
}

// NewManager creates a manager that refreshes checks at the given interval.
func NewManager(interval time.Duration, logger *zap.Logger) *Manager {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Manager{
		results:  make(map[string]CheckResult),
		interval: interval,
		logger:   logger,
	}
}

// RegisterChecker adds a checker. Register before Start.
func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Start runs the check loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.runChecks(ctx)
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.runChecks(ctx)
			}
		}
	}()
}

func (m *Manager) runChecks(ctx context.Context) {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	for _, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		result := c.Check(checkCtx)
		cancel()

		if result.Status != StatusHealthy {
			m.logger.Warn("Health check not healthy",
				zap.String("checker", c.Name()),
				zap.String("status", string(result.Status)),
				zap.String("message", result.Message),
			)
		}

		m.mu.Lock()
		m.results[c.Name()] = result
		m.mu.Unlock()
	}
}

// GetOverallHealth returns the worst status across components plus each
// component's latest result.
func (m *Manager) GetOverallHealth() (CheckStatus, map[string]CheckResult) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make(map[string]CheckResult, len(m.results))
	overall := StatusHealthy
	if len(m.results) == 0 {
		overall = StatusUnknown
	}
	for name, result := range m.results {
		results[name] = result
		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}
	return overall, results
}

// IsReady reports whether the service can take traffic.
func (m *Manager) IsReady() bool {
	overall, _ := m.GetOverallHealth()
	return overall == StatusHealthy || overall == StatusDegraded
}
