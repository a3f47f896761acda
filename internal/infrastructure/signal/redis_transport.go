package signal

import (
	"context"
	"fmt"
	"sync"

	"famcall/internal/core/domain"
	"famcall/internal/core/ports"
	"famcall/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	callChannelPrefix   = "famcall:call:"
	inviteChannelPrefix = "famcall:user:"
)

// RedisTransport relays signaling messages through Redis pub/sub, one
// channel per call plus one invite channel per user. Redis preserves
// publish order per connection, which gives the required FIFO-per-sender
// guarantee for candidates. The transport holds no call-domain state.
type RedisTransport struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisTransport(client *redis.Client, logger *zap.SugaredLogger) *RedisTransport {
	return &RedisTransport{
		client: client,
		logger: logger,
	}
}

func (t *RedisTransport) Send(ctx context.Context, callID domain.CallID, msg *domain.SignalMessage) error {
	return t.publish(ctx, callChannelPrefix+string(callID), msg)
}

func (t *RedisTransport) SendInvite(ctx context.Context, target domain.UserID, msg *domain.SignalMessage) error {
	return t.publish(ctx, inviteChannelPrefix+string(target), msg)
}

func (t *RedisTransport) publish(ctx context.Context, channel string, msg *domain.SignalMessage) error {
	data, err := msg.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal signal message: %w", err)
	}
	if err := t.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	t.logger.Debugw("published signal",
		"channel", channel,
		"kind", msg.Kind,
	)
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, callID domain.CallID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	return t.subscribe(ctx, callChannelPrefix+string(callID), handler)
}

func (t *RedisTransport) SubscribeInvites(ctx context.Context, user domain.UserID, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	return t.subscribe(ctx, inviteChannelPrefix+string(user), handler)
}

// subscribe establishes one scoped listener. Every attempt gets a fresh
// scope ID so a prior subscription for the same call that is still tearing
// down can never be confused with this one in logs or delivery accounting.
func (t *RedisTransport) subscribe(ctx context.Context, channel string, handler func(*domain.SignalMessage)) (ports.Subscription, error) {
	scope := utils.GenerateScopeID()

	pubsub := t.client.Subscribe(ctx, channel)
	// Confirm the subscription reached the server before claiming success.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscription %s on %s failed: %w", scope, channel, err)
	}

	sub := &redisSub{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				msg, err := domain.UnmarshalSignalMessage([]byte(raw.Payload))
				if err != nil {
					t.logger.Warnw("dropping undecodable signal",
						"channel", channel,
						"scope", scope,
						"error", err,
					)
					continue
				}
				sub.mu.RLock()
				closed := sub.closed
				sub.mu.RUnlock()
				if closed {
					return
				}
				handler(msg)
			}
		}
	}()

	t.logger.Debugw("signal subscription established",
		"channel", channel,
		"scope", scope,
	)
	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Close tears the subscription down; no delivery happens after it returns.
func (s *redisSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.pubsub.Close()
}
