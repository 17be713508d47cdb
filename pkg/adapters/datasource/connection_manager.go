package datasource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/logging"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/retry"
)

const (
	DefaultConnectionTTLMinutes = 5
	DefaultCleanupInterval      = 1 * time.Minute
	DefaultPoolMaxConns         = 10
	DefaultPoolMinConns         = 1

	healthCheckTimeout = 5 * time.Second
)

// ErrManagerClosed is returned after Close.
var ErrManagerClosed = errors.New("connection manager is closed")

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
	PoolMinConns int32
	Retry        *retry.Config // nil means retry.DefaultConfig()
}

// TTL is the idle lifetime of a pool.
func (c ConnectionManagerConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// ConnectionManager owns one pool per source. Pools are created on first
// use, health-checked on reuse, replaced when the source's connection
// settings change, and closed after TTL of inactivity.
//
// Each source has its own lock, so a slow or hung source never blocks
// connecting to another.
type ConnectionManager struct {
	mu          sync.Mutex
	connections map[string]*ManagedConnection // key: source name
	cfg         ConnectionManagerConfig
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

// ManagedConnection is the pool slot for one source.
type ManagedConnection struct {
	mu          sync.Mutex
	connector   PoolConnector
	fingerprint string
	lastUsed    time.Time
	removed     bool
}

// NewConnectionManager creates a connection manager with the given configuration.
// Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultConnectionTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}

	m := &ConnectionManager{
		connections: make(map[string]*ManagedConnection),
		cfg:         cfg,
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connection-manager"),
	}
	go m.cleanupExpiredConnections()
	return m
}

func fingerprint(connString string) string {
	sum := sha256.Sum256([]byte(connString))
	return hex.EncodeToString(sum[:8])
}

// slot returns the locked slot for source, creating it if needed.
func (m *ConnectionManager) slot(source string) (*ManagedConnection, error) {
	for {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		mc, ok := m.connections[source]
		if !ok {
			mc = &ManagedConnection{}
			m.connections[source] = mc
		}
		m.mu.Unlock()

		mc.mu.Lock()
		if !mc.removed {
			return mc, nil
		}
		// Cleanup retired this slot between lookup and lock.
		mc.mu.Unlock()
	}
}

// GetOrCreateConnection returns the pool for source, opening it with open
// when there is none, when the existing one fails its health check, or when
// connString differs from the one the pool was opened with.
func (m *ConnectionManager) GetOrCreateConnection(
	ctx context.Context,
	source string,
	connString string,
	open PoolOpener,
) (PoolConnector, error) {
	mc, err := m.slot(source)
	if err != nil {
		return nil, err
	}
	defer mc.mu.Unlock()

	fp := fingerprint(connString)
	if mc.connector != nil {
		if mc.fingerprint == fp {
			err := m.healthCheck(ctx, mc.connector)
			if err == nil {
				mc.lastUsed = time.Now()
				return mc.connector, nil
			}
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("source", source),
				zap.String("error", logging.SanitizeError(err)),
			)
		} else {
			m.logger.Info("connection settings changed, recreating", zap.String("source", source))
		}
		_ = mc.connector.Close()
		mc.connector = nil
	}

	connector, err := retry.DoWithResultIfRetryable(ctx, m.cfg.Retry, func() (PoolConnector, error) {
		c, err := open(ctx, connString, m.cfg)
		if err != nil {
			return nil, err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	})
	if err != nil {
		m.logger.Error("failed to create pool",
			zap.String("source", source),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to connect to source %s: %w", source, err)
	}

	mc.connector = connector
	mc.fingerprint = fp
	mc.lastUsed = time.Now()

	m.logger.Info("created new connection pool",
		zap.String("source", source),
		zap.String("type", connector.GetType()),
	)
	return connector, nil
}

func (m *ConnectionManager) healthCheck(ctx context.Context, c PoolConnector) error {
	hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return retry.DoIfRetryable(hctx, m.cfg.Retry, func() error {
		return c.Ping(hctx)
	})
}

// Remove closes and forgets the pool for source.
func (m *ConnectionManager) Remove(source string) {
	m.mu.Lock()
	mc, ok := m.connections[source]
	if ok {
		delete(m.connections, source)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.retire()
	m.logger.Debug("removed connection", zap.String("source", source))
}

// retire closes the pool. Caller holds mc.mu.
func (mc *ManagedConnection) retire() {
	if mc.connector != nil {
		_ = mc.connector.Close()
		mc.connector = nil
	}
	mc.removed = true
}

func (m *ConnectionManager) cleanupExpiredConnections() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup retires pools idle longer than the TTL. Slots that are
// currently locked are in use and skipped.
// Lock ordering: manager lock, then slot lock.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	ttl := m.cfg.TTL()
	expired := 0
	for source, mc := range m.connections {
		if !mc.mu.TryLock() {
			continue
		}
		idle := now.Sub(mc.lastUsed)
		if mc.connector == nil || idle > ttl {
			m.logger.Debug("retiring connection",
				zap.String("source", source),
				zap.Duration("idleTime", idle),
				zap.Duration("ttl", ttl),
			)
			mc.retire()
			delete(m.connections, source)
			expired++
		}
		mc.mu.Unlock()
	}

	if expired > 0 {
		m.logger.Info("cleaned up expired connections",
			zap.Int("count", expired),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes every pool and stops the cleanup goroutine. It is idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopChan)
	slots := m.connections
	m.connections = make(map[string]*ManagedConnection)
	m.mu.Unlock()

	for _, mc := range slots {
		mc.mu.Lock()
		mc.retire()
		mc.mu.Unlock()
	}
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stats := ConnectionStats{
		TTLMinutes:        m.cfg.TTLMinutes,
		ConnectionsByType: make(map[string]int),
	}

	for _, mc := range m.connections {
		if !mc.mu.TryLock() {
			stats.TotalConnections++
			continue
		}
		if mc.connector != nil {
			stats.TotalConnections++
			stats.ConnectionsByType[mc.connector.GetType()]++
			if idle := int(now.Sub(mc.lastUsed).Seconds()); idle > stats.OldestIdleSeconds {
				stats.OldestIdleSeconds = idle
			}
		}
		mc.mu.Unlock()
	}
	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	TTLMinutes        int            `json:"ttl_minutes"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
