package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/security"
)

// CounterStore looks up a stored counter for a canonical site.
type CounterStore interface {
	Get(ctx context.Context, site string) (int, bool, error)
}

// counterLookupTimeout bounds a counter store query.
const counterLookupTimeout = 2 * time.Second

// Resolver builds generation options for a site from the live
// configuration, the counter store and the master key.
//
// The master key is fixed for the lifetime of the Resolver; a reloaded
// configuration changes everything else.
type Resolver struct {
	mu       sync.RWMutex
	cfg      *Config
	key      *security.SecureBytes
	counters CounterStore
}

// NewResolver creates a Resolver. key may be nil, in which case every
// resolution fails with ErrNoMasterKey. counters may be nil.
func NewResolver(cfg *Config, key *security.SecureBytes, counters CounterStore) *Resolver {
	return &Resolver{cfg: cfg, key: key, counters: counters}
}

// Update swaps in a new configuration.
func (r *Resolver) Update(cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Config returns the configuration in use.
func (r *Resolver) Config() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Resolve returns the options for site. The counter comes from the counter
// store if it has one for the site, then the site override, then the
// default. The returned MasterKey is borrowed from the Resolver.
func (r *Resolver) Resolve(site string) (generator.Options, error) {
	r.mu.RLock()
	cfg, key, counters := r.cfg, r.key, r.counters
	r.mu.RUnlock()

	if key == nil || key.Len() == 0 {
		return generator.Options{}, ErrNoMasterKey
	}

	ps := cfg.PasswordConfig(site)
	if counters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), counterLookupTimeout)
		n, ok, err := counters.Get(ctx, derive.Canonical(site))
		cancel()
		if err != nil {
			return generator.Options{}, fmt.Errorf("counter lookup: %w", err)
		}
		if ok {
			ps.Counter = n
		}
	}

	return generator.Options{
		MasterKey: key.Bytes(),
		Site:      site,
		Counter:   ps.Counter,
		Length:    ps.Length,
		Classes:   ps.Classes,
		Mode:      derive.ModeSecure,
	}, nil
}

// Close destroys the master key. Call it only after every generation that
// borrowed the key has finished.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.key != nil {
		r.key.Destroy()
		r.key = nil
	}
}
