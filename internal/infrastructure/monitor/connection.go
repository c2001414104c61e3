package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fastygo/taskpilot/internal/infrastructure/buffer"
)

// Monitor periodically pings Postgres, Redis and the spawn buffer. Any of them may be nil
// when the deployment does not use it.
type Monitor struct {
	pg     *pgxpool.Pool
	redis  *redislib.Client
	buffer *buffer.Store

	status   Status
	mu       sync.RWMutex
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func New(pg *pgxpool.Pool, redis *redislib.Client, buf *buffer.Store, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		pg:       pg,
		redis:    redis,
		buffer:   buf,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   logger.Named("monitor"),
	}
	m.refresh()
	return m
}

func (m *Monitor) Start() {
	go m.loop()
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// IsOnline reports whether primary storage is reachable, which is all the spawn
// drain needs to replay writes.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.PostgreSQL.healthy()
}

func (m *Monitor) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.refresh()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) refresh() {
	buf, pending := m.checkBuffer()
	status := Status{
		PostgreSQL:    m.checkPostgres(),
		Redis:         m.checkRedis(),
		SpawnBuffer:   buf,
		PendingSpawns: pending,
		LastCheck:     time.Now(),
	}

	m.mu.Lock()
	prev := m.status
	m.status = status
	m.mu.Unlock()

	if !prev.LastCheck.IsZero() && prev.Healthy() != status.Healthy() {
		m.logger.Warn("dependency health changed",
			zap.Bool("healthy", status.Healthy()),
			zap.Bool("postgres", status.PostgreSQL.Online),
			zap.Bool("redis", status.Redis.Online))
	}
}

func (m *Monitor) checkPostgres() Component {
	if m.pg == nil {
		return Component{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return Component{Configured: true, Online: m.pg.Ping(ctx) == nil}
}

func (m *Monitor) checkRedis() Component {
	if m.redis == nil {
		return Component{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Component{Configured: true, Online: m.redis.Ping(ctx).Err() == nil}
}

func (m *Monitor) checkBuffer() (Component, int) {
	if m.buffer == nil {
		return Component{}, 0
	}
	size, err := m.buffer.Size()
	if err != nil {
		m.logger.Warn("spawn buffer size check failed", zap.Error(err))
		return Component{Configured: true}, 0
	}
	return Component{Configured: true, Online: true}, size
}
