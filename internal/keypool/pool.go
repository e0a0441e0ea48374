package keypool

import (
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/npv2k1/open-gateway/internal/config"
)

// ErrKeyExhausted is returned when a pool has no enabled keys. Callers treat
// this as a configuration failure, not a transient one.
var ErrKeyExhausted = errors.New("key pool has no enabled keys")

// Key is a selectable API key entry.
type Key struct {
	Value  string
	Weight int
	ID     string // identifier safe for logs and metrics, never the secret
}

// Pool holds the selection state for one named key pool. The entry list is
// immutable after build; only the round-robin cursor mutates. Pools are
// rebuilt wholesale on config reload, which is how disabled entries leave
// the selectable set.
type Pool struct {
	Name       string
	HeaderName string // non-empty for header injection
	QueryParam string // non-empty for query parameter injection

	keys        []Key // enabled entries only, declaration order
	totalWeight int
	cursor      atomic.Uint64
	selectFn    func(*Pool) (Key, error) // chosen once per strategy at build
	strategy    config.Strategy
}

// New builds a pool from configuration. Disabled entries are filtered out at
// build time so selection never has to skip them.
func New(name string, pc config.KeyPoolConfig) *Pool {
	p := &Pool{
		Name:       name,
		HeaderName: pc.HeaderName,
		QueryParam: pc.QueryParam,
		strategy:   pc.Strategy,
	}

	for _, kc := range pc.Keys {
		if !kc.IsEnabled() {
			continue
		}
		key := Key{
			Value:  kc.Key,
			Weight: kc.WeightValue(),
			ID:     kc.ID,
		}
		if key.ID == "" {
			key.ID = maskKey(kc.Key)
		}
		p.keys = append(p.keys, key)
		p.totalWeight += key.Weight
	}

	switch pc.Strategy {
	case config.StrategyRandom:
		p.selectFn = (*Pool).selectRandom
	case config.StrategyWeighted:
		p.selectFn = (*Pool).selectWeighted
	default:
		p.selectFn = (*Pool).selectRoundRobin
	}

	return p
}

// Select returns the next key per the pool's strategy, or ErrKeyExhausted.
// Safe for concurrent callers across all server bindings.
func (p *Pool) Select() (Key, error) {
	if len(p.keys) == 0 {
		return Key{}, ErrKeyExhausted
	}
	return p.selectFn(p)
}

// selectRoundRobin advances the shared cursor atomically; the result sequence
// is equivalent to an atomically incremented index modulo the enabled count.
func (p *Pool) selectRoundRobin() (Key, error) {
	idx := p.cursor.Add(1) - 1
	return p.keys[idx%uint64(len(p.keys))], nil
}

func (p *Pool) selectRandom() (Key, error) {
	return p.keys[rand.Intn(len(p.keys))], nil
}

// selectWeighted draws proportionally to weight using a cumulative roll.
// Entries with weight 0 occupy no slots and are never selected.
func (p *Pool) selectWeighted() (Key, error) {
	if p.totalWeight <= 0 {
		return Key{}, ErrKeyExhausted
	}
	roll := rand.Intn(p.totalWeight)
	cumulative := 0
	for _, k := range p.keys {
		cumulative += k.Weight
		if roll < cumulative {
			return k, nil
		}
	}
	// Unreachable while totalWeight equals the sum of weights
	return p.keys[len(p.keys)-1], nil
}

// Strategy returns the pool's configured selection strategy.
func (p *Pool) Strategy() config.Strategy {
	return p.strategy
}

// Len returns the number of enabled keys.
func (p *Pool) Len() int {
	return len(p.keys)
}

// Keys returns the enabled entries in declaration order.
func (p *Pool) Keys() []Key {
	return p.keys
}

// maskKey produces a loggable identifier from a secret value.
func maskKey(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "****"
}
