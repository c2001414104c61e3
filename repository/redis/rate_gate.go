package redis

import (
	"context"
	"strconv"
	"time"

	goRedis "github.com/redis/go-redis/v9"

	"github.com/fastygo/taskpilot/domain"
)

// RateGate is a fixed-window eligibility gate shared by every process pointed at the same
// Redis. A window is admitted Limit times per identity; the counter key expires with it.
type RateGate struct {
	client *goRedis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateGate(client *goRedis.Client, prefix string, limit int, window time.Duration) *RateGate {
	if limit < 1 {
		limit = 1
	}
	if window < time.Second {
		window = time.Second
	}
	return &RateGate{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (g *RateGate) Check(ctx context.Context, identityID string) (bool, error) {
	key := g.key(identityID)

	var incr *goRedis.IntCmd
	_, err := g.client.TxPipelined(ctx, func(pipe goRedis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, g.window)
		return nil
	})
	if err != nil {
		return false, domain.WrapError(domain.ErrCodeUnavailable, "rate gate unavailable", err)
	}
	return incr.Val() <= g.limit, nil
}

func (g *RateGate) key(identityID string) string {
	slot := g.now().UnixNano() / int64(g.window)
	return g.prefix + identityID + ":" + strconv.FormatInt(slot, 10)
}
