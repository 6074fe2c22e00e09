package notify

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gymtalk/metrics"
)

const (
	RetryDelay    = 2 * time.Second
	MaxRetryDelay = 30 * time.Second
)

var errSubscriptionClosed = errors.New("subscription channel closed")

type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// Subscriber consumes domain events published on a Redis Pub/Sub channel.
// Delivery is at-most-once: events published while it is not subscribed are
// lost, matching the push side which also has no offline queue.
type Subscriber struct {
	client  *redis.Client
	channel string
	handler Handler
	log     *zap.Logger

	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

func NewSubscriber(client *redis.Client, channel string, handler Handler, log *zap.Logger) *Subscriber {
	return &Subscriber{
		client:  client,
		channel: channel,
		handler: handler,
		log:     log.With(zap.String("component", "subscriber"), zap.String("channel", channel)),

		retryDelay:    RetryDelay,
		maxRetryDelay: MaxRetryDelay,
	}
}

// Run blocks until ctx is done. A subscription that cannot be established or
// drops later is retried with a doubling delay, so a Redis restart only loses
// the events published while it was down.
func (s *Subscriber) Run(ctx context.Context) {
	delay := s.retryDelay
	for attempt := 1; ; attempt++ {
		subscribed, err := s.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			attempt, delay = 1, s.retryDelay
		}
		s.log.Warn("domain event subscription failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxRetryDelay)
	}
}

// subscribe consumes one subscription until it fails or ctx is done.
// subscribed reports whether Redis confirmed the subscription first.
func (s *Subscriber) subscribe(ctx context.Context) (subscribed bool, err error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, err
	}
	s.log.Info("subscribed to domain events")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return true, errSubscriptionClosed
			}
			s.consume(ctx, m.Payload)
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, payload string) {
	metrics.EventsConsumed.WithLabelValues("redis").Inc()

	e, err := DecodeEvent([]byte(payload))
	if err != nil {
		metrics.EventDecodeFail.Inc()
		s.log.Warn("event decode failed", zap.Error(err))
		return
	}
	if err := s.handler.Handle(ctx, e); err != nil {
		s.log.Warn("event rejected", zap.String("type", string(e.Type)), zap.Error(err))
	}
}
