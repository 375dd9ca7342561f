// Package strategy defines the Strategy interface for signal generators and
// a Registry of named strategy factories.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"meridian/internal/event"
	"meridian/internal/market"
)

// Strategy turns market heartbeats into signals. It may only read bars
// through the BarReader passed to Init.
type Strategy interface {
	// Name returns the identifier stamped on emitted signals.
	Name() string

	// Init binds the strategy to the data it may read. It is called once
	// before the first heartbeat.
	Init(ctx context.Context, bars market.BarReader) error

	// OnMarket is called for every Market event and returns zero or more
	// signals.
	OnMarket(ctx context.Context, ev event.Market) ([]event.Signal, error)
}

// Params carries the configuration a factory may use.
type Params struct {
	Symbols     []string
	ShortWindow int
	LongWindow  int
}

// Factory builds a fresh strategy instance.
type Factory func(p Params) (Strategy, error)

// Registry holds named strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds the strategy registered under name.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have %v)", name, r.List())
	}
	s, err := f(p)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	return s, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.factories[name]
	return ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
