package trader

import (
	"sync"

	"github.com/skybotdev/skybot/internal/domain"
)

// exposureAccumulator tracks the exposure admitted during the current cycle
// so a city's sizing decision observes every placement already made this
// cycle, never an empty list. It is shared across city workers and mutated
// under a mutex.
type exposureAccumulator struct {
	mu    sync.Mutex
	items []domain.OpenExposure
}

func newExposureAccumulator() *exposureAccumulator {
	return &exposureAccumulator{}
}

// Add records one admitted placement.
func (a *exposureAccumulator) Add(e domain.OpenExposure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, e)
}

// Snapshot returns a copy of the accumulated exposure.
func (a *exposureAccumulator) Snapshot() []domain.OpenExposure {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.OpenExposure, len(a.items))
	copy(out, a.items)
	return out
}
