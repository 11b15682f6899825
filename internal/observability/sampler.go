package observability

import (
	"math/rand"
	"strings"
	"sync"
)

// Sampler decides, per route, whether a request's trace tree is exported.
// Route overrides are matched exactly first, then by longest prefix; routes
// without an override use the global ratio. Ratios are clamped to [0, 1].
//
// Update may be called concurrently with Sample; the watcher in
// internal/config uses it for hot reload.
type Sampler struct {
	mu     sync.RWMutex
	ratio  float64
	routes map[string]float64
}

// NewSampler creates a sampler with a global ratio and optional per-route
// overrides.
func NewSampler(ratio float64, routes map[string]float64) *Sampler {
	s := &Sampler{}
	s.Update(ratio, routes)
	return s
}

// Update replaces the global ratio and route overrides atomically.
func (s *Sampler) Update(ratio float64, routes map[string]float64) {
	copied := make(map[string]float64, len(routes))
	for route, r := range routes {
		copied[route] = clampRatio(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratio = clampRatio(ratio)
	s.routes = copied
}

// RatioFor returns the effective sampling ratio for a route.
func (s *Sampler) RatioFor(route string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ratio, ok := s.routes[route]; ok {
		return ratio
	}

	bestLen := -1
	best := s.ratio
	for prefix, ratio := range s.routes {
		if strings.HasPrefix(route, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = ratio
		}
	}
	return best
}

// Sample makes the sampling decision for one request.
func (s *Sampler) Sample(route string) bool {
	ratio := s.RatioFor(route)
	if ratio >= 1 {
		return true
	}
	if ratio <= 0 {
		return false
	}
	return rand.Float64() < ratio
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
