package oracle

import (
	"context"
	"math/rand"
	"sync"
)

// MockOracle serves prices from an in-memory table, optionally drifting them
// with a small random walk on each read. Used for local development and tests.
type MockOracle struct {
	mu     sync.RWMutex
	prices map[string]float64
	Step   float64
}

func NewMockOracle() *MockOracle {
	return &MockOracle{prices: make(map[string]float64)}
}

// SetPrice pins a symbol's price.
func (m *MockOracle) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

// Price returns the pinned price, random-walked by Step when it is non-zero.
// Unknown symbols are unavailable, same as a real feed outage.
func (m *MockOracle) Price(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prices[symbol]
	if !ok {
		return 0, ErrPriceUnavailable
	}
	if m.Step != 0 {
		p += (rand.Float64()*2 - 1) * m.Step
		m.prices[symbol] = p
	}
	return p, nil
}

// Unavailable is an oracle that always fails; used to exercise the
// retry-on-next-sweep path.
type Unavailable struct{}

func (Unavailable) Price(context.Context, string) (float64, error) {
	return 0, ErrPriceUnavailable
}
