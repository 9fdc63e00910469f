package orchestrator

import (
	"sync"

	"github.com/sony/gobreaker"

	"vcenterprovision.io/controlplane/internal/hypervisor"
	"vcenterprovision.io/controlplane/internal/pkg/metrics"
)

// breakerManager holds one circuit breaker per tenant-vCenter pair, lazily
// created on first use. A tenant whose vCenter is flaky trips independently
// of every other tenant; one bad vCenter never throttles the whole fleet.
//
// Grounded on jordigilh-kubernaut's circuitbreaker.Manager usage
// (gobreaker.Settings{MaxRequests, Interval, Timeout, ReadyToTrip,
// OnStateChange}), adapted to key breakers by tenant id instead of
// notification channel.
type breakerManager struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*hypervisor.CreateResult]
}

func newBreakerManager() *breakerManager {
	return &breakerManager{breakers: make(map[string]*gobreaker.CircuitBreaker[*hypervisor.CreateResult])}
}

func (m *breakerManager) forTenant(tenantID string) *gobreaker.CircuitBreaker[*hypervisor.CreateResult] {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[tenantID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker[*hypervisor.CreateResult](gobreaker.Settings{
		Name:        tenantID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
	m.breakers[tenantID] = cb
	return cb
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
