package events

import (
	"math/rand/v2"
	"sync"
)

// Sampler keeps a fraction of each topic's events. Topics without a rate
// are always kept.
type Sampler struct {
	mu     sync.Mutex
	rates  map[string]float64
	random func() float64
}

// NewSampler creates a Sampler from per-topic rates in [0, 1].
func NewSampler(rates map[string]float64) *Sampler {
	s := &Sampler{
		rates:  make(map[string]float64, len(rates)),
		random: rand.Float64,
	}
	for topic, rate := range rates {
		s.rates[topic] = rate
	}
	return s
}

// SetRate changes the rate for topic.
func (s *Sampler) SetRate(topic string, rate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[topic] = rate
}

// Keep reports whether the next event for topic should be forwarded.
func (s *Sampler) Keep(topic string) bool {
	if s == nil {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rate, ok := s.rates[topic]
	switch {
	case !ok || rate >= 1:
		return true
	case rate <= 0:
		return false
	default:
		return s.random() < rate
	}
}
