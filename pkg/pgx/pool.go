package pgx

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ApplicationName is reported to PostgreSQL for pools whose connection
// string does not set application_name.
const ApplicationName = "sandman"

const defaultConnectRetries = 5

// Pool names a connection configuration and the schema its store serves.
type Pool struct {
	Config     *pgxpool.Config // Takes precedence over ConnString
	Name       string
	ConnString string // Used if Config is nil
	Schema     string // Defaults to "public"
}

var (
	ErrPoolNotFound      = errors.New("pgx: connection pool not found")
	ErrPoolAlreadyExists = errors.New("pgx: connection pool already exists")
	ErrNoActivePool      = errors.New("pgx: no active connection pool")
	ErrNoPoolConfig      = errors.New("pgx: either Config or ConnString must be provided")
)

type managedPool struct {
	pool  *pgxpool.Pool
	store *Store
}

// PoolManager keeps named pools, each with the Store serving its schema.
// The first pool added becomes active unless another is explicitly
// activated.
type PoolManager struct {
	pools   map[string]managedPool
	active  string
	retries uint64
	logger  *zap.Logger
	mu      sync.RWMutex
}

// ManagerOption configures a PoolManager.
type ManagerOption func(*PoolManager)

// WithPoolLogger logs connection retries.
func WithPoolLogger(logger *zap.Logger) ManagerOption {
	return func(m *PoolManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConnectRetries sets how often the first ping of a new pool is retried.
func WithConnectRetries(n uint64) ManagerOption {
	return func(m *PoolManager) {
		m.retries = n
	}
}

// NewPoolManager returns an empty manager.
func NewPoolManager(opts ...ManagerOption) *PoolManager {
	m := &PoolManager{
		pools:   make(map[string]managedPool),
		retries: defaultConnectRetries,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add connects a new pool. With setActive true it becomes the active pool.
func (m *PoolManager) Add(ctx context.Context, cfg Pool, setActive ...bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[cfg.Name]; ok {
		return fmt.Errorf("%w: %q", ErrPoolAlreadyExists, cfg.Name)
	}

	pool, err := m.connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pgx: pool %q: %w", cfg.Name, err)
	}
	m.pools[cfg.Name] = managedPool{pool: pool, store: NewStore(pool, cfg.Schema)}

	if (len(setActive) > 0 && setActive[0]) || m.active == "" {
		m.active = cfg.Name
	}
	return nil
}

// Get returns the pool registered under name.
func (m *PoolManager) Get(name string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	return p.pool, nil
}

// Store returns the store of the pool registered under name.
func (m *PoolManager) Store(name string) (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	return p.store, nil
}

// Active returns the store of the active pool.
func (m *PoolManager) Active() (*Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == "" {
		return nil, ErrNoActivePool
	}
	return m.pools[m.active].store, nil
}

// SetActive changes the active pool.
func (m *PoolManager) SetActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[name]; !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	m.active = name
	return nil
}

// Remove closes a pool. When it was active, the first remaining pool by
// name becomes active.
func (m *PoolManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrPoolNotFound, name)
	}
	p.pool.Close()
	delete(m.pools, name)

	if m.active == name {
		m.active = ""
		if names := slices.Sorted(maps.Keys(m.pools)); len(names) > 0 {
			m.active = names[0]
		}
	}
	return nil
}

// Close closes every pool.
func (m *PoolManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pools {
		p.pool.Close()
	}
	clear(m.pools)
	m.active = ""
}

// List returns all pool names, sorted.
func (m *PoolManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Sorted(maps.Keys(m.pools))
}

func poolConfig(cfg Pool) (*pgxpool.Config, error) {
	var pc *pgxpool.Config
	switch {
	case cfg.Config != nil:
		pc = cfg.Config.Copy()
	case cfg.ConnString != "":
		var err error
		if pc, err = pgxpool.ParseConfig(cfg.ConnString); err != nil {
			return nil, err
		}
	default:
		return nil, ErrNoPoolConfig
	}

	if pc.ConnConfig.RuntimeParams == nil {
		pc.ConnConfig.RuntimeParams = make(map[string]string)
	}
	if pc.ConnConfig.RuntimeParams["application_name"] == "" {
		pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	return pc, nil
}

// connect opens a pool and pings it, retrying with exponential backoff.
func (m *PoolManager) connect(ctx context.Context, cfg Pool) (*pgxpool.Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), m.retries), ctx)
	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, b, func(err error, next time.Duration) {
		m.logger.Warn("database ping failed, retrying",
			zap.String("pool", cfg.Name), zap.Error(err), zap.Duration("backoff", next))
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping connection: %w", err)
	}
	return pool, nil
}
