// Package wakeup implements the Redis pub/sub fast path: the queue
// publishes a notification on scm:job:enqueued:<job_type> whenever it
// enqueues work, so an idle worker can wake immediately instead of
// waiting out its poll interval. Postgres remains the source of truth for
// claimable work; a missed or delayed notification only costs one extra
// poll cycle, never correctness, so every call here is best-effort.
package wakeup

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "scm:job:enqueued:"

// Publisher announces that a job_type now has claimable work. The zero
// value is valid and publishes nothing, so callers that run without Redis
// configured can hold a *Publisher unconditionally.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish never returns an error to the caller: a notification is an
// optimization, not a guarantee, so a Redis hiccup must never fail or
// delay the enqueue it is announcing.
func (p *Publisher) Publish(ctx context.Context, logger *slog.Logger, jobType string) {
	if p == nil || p.rdb == nil {
		return
	}
	if err := p.rdb.Publish(ctx, channelPrefix+jobType, "1").Err(); err != nil && logger != nil {
		logger.Warn("wakeup publish", "job_type", jobType, "error", err)
	}
}

// Subscriber listens across every job_type's wakeup channel via a single
// pattern subscription, so a worker doesn't need to know its claimable
// job_type set ahead of connecting.
type Subscriber struct {
	ps *redis.PubSub
}

// NewSubscriber returns nil if rdb is nil, so callers can range over its
// channel unconditionally: a nil *Subscriber's C() returns a nil channel,
// which blocks forever in a select and so never fires spuriously.
func NewSubscriber(ctx context.Context, rdb *redis.Client) *Subscriber {
	if rdb == nil {
		return nil
	}
	return &Subscriber{ps: rdb.PSubscribe(ctx, channelPrefix+"*")}
}

// C returns the notification channel.
func (s *Subscriber) C() <-chan *redis.Message {
	if s == nil || s.ps == nil {
		return nil
	}
	return s.ps.Channel()
}

func (s *Subscriber) Close() error {
	if s == nil || s.ps == nil {
		return nil
	}
	return s.ps.Close()
}
