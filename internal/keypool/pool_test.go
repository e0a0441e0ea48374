package keypool

import (
	"sync"
	"testing"

	"github.com/npv2k1/open-gateway/internal/config"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }

func testPoolConfig(strategy config.Strategy) config.KeyPoolConfig {
	return config.KeyPoolConfig{
		Strategy:   strategy,
		HeaderName: "X-API-Key",
		Keys: []config.KeyConfig{
			{Key: "key1", Weight: intPtr(1)},
			{Key: "key2", Weight: intPtr(2)},
			{Key: "key3", Weight: intPtr(1), Enabled: boolPtr(false)},
		},
	}
}

func TestRoundRobinCycles(t *testing.T) {
	p := New("p", testPoolConfig(config.StrategyRoundRobin))

	// key3 is disabled, so only two keys cycle
	if p.Len() != 2 {
		t.Fatalf("expected 2 enabled keys, got %d", p.Len())
	}

	want := []string{"key1", "key2", "key1", "key2"}
	for i, w := range want {
		k, err := p.Select()
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if k.Value != w {
			t.Errorf("call %d: got %q, want %q", i, k.Value, w)
		}
	}
}

func TestRoundRobinFairnessUnderConcurrency(t *testing.T) {
	p := New("p", config.KeyPoolConfig{
		Strategy: config.StrategyRoundRobin,
		Keys: []config.KeyConfig{
			{Key: "a"}, {Key: "b"}, {Key: "c"},
		},
	})

	const goroutines = 8
	const perGoroutine = 300

	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < perGoroutine; i++ {
				k, err := p.Select()
				if err != nil {
					t.Error(err)
					return
				}
				local[k.Value]++
			}
			mu.Lock()
			for v, n := range local {
				counts[v] += n
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// 8*300 = 2400 selections over 3 keys: exactly 800 each
	for _, v := range []string{"a", "b", "c"} {
		if counts[v] != goroutines*perGoroutine/3 {
			t.Errorf("key %s selected %d times, want %d", v, counts[v], goroutines*perGoroutine/3)
		}
	}
}

func TestRandomStaysWithinEnabled(t *testing.T) {
	p := New("p", testPoolConfig(config.StrategyRandom))

	for i := 0; i < 100; i++ {
		k, err := p.Select()
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if k.Value != "key1" && k.Value != "key2" {
			t.Fatalf("selected disabled or unknown key %q", k.Value)
		}
	}
}

func TestWeightedDistribution(t *testing.T) {
	p := New("p", testPoolConfig(config.StrategyWeighted))

	const draws = 30000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		k, err := p.Select()
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		counts[k.Value]++
	}

	// key2 has weight 2, key1 weight 1: expect ~2/3 for key2
	ratio := float64(counts["key2"]) / float64(draws)
	if ratio < 0.62 || ratio > 0.71 {
		t.Errorf("key2 frequency %.3f, want ~0.667", ratio)
	}
	if counts["key3"] != 0 {
		t.Error("disabled key selected")
	}
}

func TestWeightZeroNeverSelected(t *testing.T) {
	p := New("p", config.KeyPoolConfig{
		Strategy: config.StrategyWeighted,
		Keys: []config.KeyConfig{
			{Key: "zero", Weight: intPtr(0)},
			{Key: "one", Weight: intPtr(1)},
		},
	})

	for i := 0; i < 200; i++ {
		k, err := p.Select()
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if k.Value == "zero" {
			t.Fatal("weight-0 key was selected")
		}
	}
}

func TestExhaustedPool(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.KeyPoolConfig
	}{
		{"empty", config.KeyPoolConfig{Strategy: config.StrategyRoundRobin}},
		{"all disabled", config.KeyPoolConfig{
			Strategy: config.StrategyRoundRobin,
			Keys:     []config.KeyConfig{{Key: "k", Enabled: boolPtr(false)}},
		}},
		{"weighted all zero", config.KeyPoolConfig{
			Strategy: config.StrategyWeighted,
			Keys:     []config.KeyConfig{{Key: "k", Weight: intPtr(0)}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("p", tt.cfg)
			if _, err := p.Select(); err != ErrKeyExhausted {
				t.Errorf("expected ErrKeyExhausted, got %v", err)
			}
		})
	}
}

func TestRebuildExcludesNewlyDisabled(t *testing.T) {
	cfg := config.KeyPoolConfig{
		Strategy: config.StrategyRoundRobin,
		Keys:     []config.KeyConfig{{Key: "k1"}, {Key: "k2"}},
	}
	p := New("p", cfg)
	if k, _ := p.Select(); k.Value != "k1" {
		t.Fatalf("expected k1 first, got %q", k.Value)
	}

	// Reload rebuilds the pool; fresh cursor, disabled key excluded
	cfg.Keys[0].Enabled = boolPtr(false)
	p = New("p", cfg)
	for i := 0; i < 5; i++ {
		k, err := p.Select()
		if err != nil {
			t.Fatalf("Select failed: %v", err)
		}
		if k.Value != "k2" {
			t.Fatalf("disabled key still selected: %q", k.Value)
		}
	}
}

func TestKeyIdentifierMasked(t *testing.T) {
	p := New("p", config.KeyPoolConfig{
		Strategy: config.StrategyRoundRobin,
		Keys: []config.KeyConfig{
			{Key: "sk-live-abcdef123456"},
			{Key: "k2", ID: "backup"},
		},
	})

	keys := p.Keys()
	if keys[0].ID != "sk-l****" {
		t.Errorf("unexpected masked ID %q", keys[0].ID)
	}
	if keys[1].ID != "backup" {
		t.Errorf("explicit ID not honored: %q", keys[1].ID)
	}
}
