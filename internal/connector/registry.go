package connector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/sluicehq/sluice/internal/model"
)

// Registry holds the engine connectors and the pools opened through them.
// Pools are keyed by the caller, normally tenant plus connection name.
type Registry struct {
	mu      sync.RWMutex
	engines map[Engine]Connector
	active  map[string]*sqlx.DB
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[Engine]Connector),
		active:  make(map[string]*sqlx.DB),
	}
}

// Register adds an engine connector. Registering an engine outside the
// enumerated set panics.
func (r *Registry) Register(c Connector) {
	if _, err := ParseEngine(string(c.Engine())); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[c.Engine()] = c
}

// Connector returns the connector for a class.
func (r *Registry) Connector(class string) (Connector, error) {
	engine, err := ParseEngine(class)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.engines[engine]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled (available: %v)", ErrUnknownEngine, class, r.availableEngines())
	}
	return c, nil
}

// Decode validates a raw configuration against the class's schema.
func (r *Registry) Decode(class string, raw map[string]any) (Config, error) {
	c, err := r.Connector(class)
	if err != nil {
		return Config{}, err
	}
	return c.Schema().Decode(c.Engine(), raw)
}

// Open returns the pool for key, connecting on first use.
func (r *Registry) Open(ctx context.Context, key, class string, raw map[string]any, pool model.PoolConfig) (*sqlx.DB, error) {
	r.mu.RLock()
	db, ok := r.active[key]
	r.mu.RUnlock()
	if ok {
		return db, nil
	}

	c, err := r.Connector(class)
	if err != nil {
		return nil, err
	}
	cfg, err := c.Schema().Decode(c.Engine(), raw)
	if err != nil {
		return nil, err
	}
	dsn, err := c.DSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("%s dsn: %w", c.Engine(), err)
	}

	db, err = sqlx.ConnectContext(ctx, c.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", c.Engine(), err)
	}
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another caller may have connected while we were dialing.
	if existing, ok := r.active[key]; ok {
		db.Close()
		return existing, nil
	}
	r.active[key] = db
	return db, nil
}

// Close closes and forgets the pool for key. Closing an unknown key is a no-op.
func (r *Registry) Close(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.active[key]
	if !ok {
		return nil
	}
	delete(r.active, key)
	return db.Close()
}

// CloseAll closes every open pool.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, db := range r.active {
		db.Close()
		delete(r.active, key)
	}
}

// PingAll pings every open pool and joins the failures.
func (r *Registry) PingAll(ctx context.Context) error {
	r.mu.RLock()
	pools := make(map[string]*sqlx.DB, len(r.active))
	for k, db := range r.active {
		pools[k] = db
	}
	r.mu.RUnlock()

	var errs []error
	for k, db := range pools {
		if err := db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Keys returns the keys of open pools, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.active))
	for k := range r.active {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Engines returns the registered engines, sorted.
func (r *Registry) Engines() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.availableEngines()
}

func (r *Registry) availableEngines() []Engine {
	engines := make([]Engine, 0, len(r.engines))
	for e := range r.engines {
		engines = append(engines, e)
	}
	sort.Slice(engines, func(i, j int) bool { return engines[i] < engines[j] })
	return engines
}
