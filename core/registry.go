package core

import (
	"sort"
	"sync"
)

// ── Registry ──────────────────────────────────────────────────────────────────

// DefaultRegistry is a thread-safe implementation of Registry.
type DefaultRegistry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
	encoders map[string]Encoder
}

// NewRegistry returns an empty DefaultRegistry.
func NewRegistry() *DefaultRegistry {
	return &DefaultRegistry{
		decoders: make(map[string]Decoder),
		encoders: make(map[string]Encoder),
	}
}

func (r *DefaultRegistry) RegisterDecoder(name string, d Decoder) {
	r.mu.Lock()
	r.decoders[name] = d
	r.mu.Unlock()
}

func (r *DefaultRegistry) RegisterEncoder(name string, e Encoder) {
	r.mu.Lock()
	r.encoders[name] = e
	r.mu.Unlock()
}

func (r *DefaultRegistry) DecoderFor(name string) (Decoder, bool) {
	r.mu.RLock()
	d, ok := r.decoders[name]
	r.mu.RUnlock()
	return d, ok
}

func (r *DefaultRegistry) EncoderFor(name string) (Encoder, bool) {
	r.mu.RLock()
	e, ok := r.encoders[name]
	r.mu.RUnlock()
	return e, ok
}

// Backends lists registered decoder and encoder names, sorted.
func (r *DefaultRegistry) Backends() (decoders, encoders []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name := range r.decoders {
		decoders = append(decoders, name)
	}
	for name := range r.encoders {
		encoders = append(encoders, name)
	}
	sort.Strings(decoders)
	sort.Strings(encoders)
	return decoders, encoders
}
