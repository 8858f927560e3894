package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/wavecast/pkg/provider/modem"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	modem      map[string]func(ModemConfig) (modem.Provider, error)
	transcoder map[string]func(ProviderEntry) (transcoder.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		modem:      make(map[string]func(ModemConfig) (modem.Provider, error)),
		transcoder: make(map[string]func(ProviderEntry) (transcoder.Provider, error)),
	}
}

// RegisterModem registers a modem factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterModem(name string, factory func(ModemConfig) (modem.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modem[name] = factory
}

// RegisterTranscoder registers a transcoder factory under name.
func (r *Registry) RegisterTranscoder(name string, factory func(ProviderEntry) (transcoder.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcoder[name] = factory
}

// CreateModem instantiates a modem using the factory registered under cfg.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateModem(cfg ModemConfig) (modem.Provider, error) {
	r.mu.RLock()
	factory, ok := r.modem[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: modem/%q", ErrProviderNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateTranscoder instantiates a transcoder using the factory registered
// under entry.Name.
func (r *Registry) CreateTranscoder(entry ProviderEntry) (transcoder.Provider, error) {
	r.mu.RLock()
	factory, ok := r.transcoder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: transcoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
