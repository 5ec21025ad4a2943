package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Rule is one named limit.
type Rule struct {
	MaxCalls int
	Window   time.Duration
}

// Set holds named limiters (one per command). Replace swaps the whole set;
// limiters whose rule is unchanged keep their history.
type Set struct {
	mu    sync.RWMutex
	items map[string]*Limiter
	opts  []Option
}

func NewSet(rules map[string]Rule, opts ...Option) (*Set, error) {
	s := &Set{opts: opts}
	if err := s.Replace(rules); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) Replace(rules map[string]Rule) error {
	next := make(map[string]*Limiter, len(rules))

	s.mu.RLock()
	prev := s.items
	s.mu.RUnlock()

	for name, r := range rules {
		if old, ok := prev[name]; ok && old.maxCalls == r.MaxCalls && old.window == r.Window {
			next[name] = old
			continue
		}
		l, err := New(r.MaxCalls, r.Window, s.opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		next[name] = l
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return nil
}

// Get returns the limiter for name, or nil when the name is unlimited.
func (s *Set) Get(name string) *Limiter {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[name]
}

func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
