package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNudger is the optional push channel between the dispatcher and idle
// delivery workers. A nudge only shortens the wait until the next claim;
// polling remains the source of truth.
type RedisNudger struct {
	client  *redis.Client
	channel string
}

func NewRedisNudger(addr, password string, db int, channel string) *RedisNudger {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis not reachable, nudges degraded to polling", "addr", addr, "error", err)
	}

	return &RedisNudger{client: rdb, channel: channel}
}

// Nudge announces that a job became claimable.
func (n *RedisNudger) Nudge(ctx context.Context) {
	if err := n.client.Publish(ctx, n.channel, "1").Err(); err != nil {
		slog.Warn("publish nudge", "error", err)
	}
}

// Listen subscribes to nudges and forwards them with a capacity of one;
// bursts collapse into a single wake-up.
func (n *RedisNudger) Listen(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	sub := n.client.Subscribe(ctx, n.channel)

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
		}
	}()
	return ch
}

func (n *RedisNudger) Close() error {
	return n.client.Close()
}
