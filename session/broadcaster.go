package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultRevocationChannel is the Pub/Sub channel used when none is configured.
const DefaultRevocationChannel = "crossauth:revoked"

// Broadcaster fans revoked tokens out to every process sharing a Redis deployment.
type Broadcaster struct {
	redis   redis.UniversalClient
	channel string
}

// NewBroadcaster returns a [Broadcaster] publishing on channel.
func NewBroadcaster(redis redis.UniversalClient, channel string) *Broadcaster {
	if channel == "" {
		channel = DefaultRevocationChannel
	}
	return &Broadcaster{redis: redis, channel: channel}
}

// Channel returns the Pub/Sub channel name.
func (b *Broadcaster) Channel() string {
	return b.channel
}

// Publish announces that token has been revoked.
func (b *Broadcaster) Publish(ctx context.Context, token string) error {
	if err := b.redis.Publish(ctx, b.channel, token).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Subscribe calls fn for every token published on the channel until the returned stop
// function is called or ctx is done. The subscription is confirmed before Subscribe
// returns. fn runs on a single goroutine.
func (b *Broadcaster) Subscribe(ctx context.Context, fn func(token string)) (func(), error) {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	msgs := pubsub.Channel()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				fn(msg.Payload)
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			_ = pubsub.Close()
			<-done
		})
	}
	return stop, nil
}
