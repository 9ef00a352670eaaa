// Package strategy defines the strategy capability and its implementations.
package strategy

import (
	"fmt"
	"sort"

	"github.com/skybotdev/skybot/internal/domain"
)

// Inputs bundles the snapshots a strategy evaluates. Strategies are pure:
// identical inputs and params must produce identical outputs, so CreatedAt
// on the returned signal is left zero for the caller to stamp.
type Inputs struct {
	Weather domain.WeatherSnapshot
	Market  domain.MarketSnapshot
}

// Params carries the configuration a strategy needs. It is derived from the
// single configuration source at wiring time.
type Params struct {
	MinEdgeAfterCosts float64
	MaxUncertainty    float64
	Bankroll          float64
	MaxTradeRiskPct   float64
	MaxPositionSize   int
}

// Strategy maps snapshots to a trading signal.
type Strategy interface {
	Name() string
	Evaluate(in Inputs, p Params) domain.Signal
}

// Registry holds named strategies.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. It returns an error if the name is taken.
func (r *Registry) Register(s Strategy) error {
	if _, exists := r.strategies[s.Name()]; exists {
		return fmt.Errorf("strategy %q: %w", s.Name(), domain.ErrAlreadyExists)
	}
	r.strategies[s.Name()] = s
	return nil
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, domain.ErrNotFound)
	}
	return s, nil
}

// List returns all registered names in sorted order.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
