package delivery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"gymtalk/metrics"
	"gymtalk/models"
	"gymtalk/presence"
)

type Presence interface {
	ChannelsFor(userID string) []presence.Channel
}

// Router pushes envelopes to every live channel of a recipient. There is no
// offline queue: a recipient without channels reads history on reconnect.
// Push errors are logged per channel and never returned.
type Router struct {
	presence Presence
	log      *zap.Logger
	timeout  time.Duration
}

func NewRouter(p Presence, log *zap.Logger, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Router{presence: p, log: log.With(zap.String("component", "router")), timeout: timeout}
}

// DeliverMessage pushes a new_message to the receiver and returns how many
// channels accepted it.
func (r *Router) DeliverMessage(ctx context.Context, msg models.Message) int {
	return r.push(ctx, msg.ReceiverID, models.Envelope{Type: string(models.PushNewMessage), Payload: msg})
}

// DeliverReadReceipt tells senderID that some of its messages were read.
func (r *Router) DeliverReadReceipt(ctx context.Context, senderID string, receipt models.ReadReceipt) int {
	return r.push(ctx, senderID, models.Envelope{Type: string(models.PushMessagesRead), Payload: receipt})
}

// DeliverThreadOpened tells recipientID that a conversation with it was
// opened. thread is the recipient's own view of it.
func (r *Router) DeliverThreadOpened(ctx context.Context, recipientID string, thread models.Thread) int {
	return r.push(ctx, recipientID, models.Envelope{Type: string(models.PushThreadOpened), Payload: thread})
}

// DeliverNotification pushes a domain event tagged with its type.
func (r *Router) DeliverNotification(ctx context.Context, targetUserID string, n models.Notification) int {
	env, err := notificationEnvelope(n)
	if err != nil {
		r.log.Error("notification not delivered", zap.String("target", targetUserID), zap.Error(err))
		metrics.NotificationsDropped.WithLabelValues("unknown_type").Inc()
		return 0
	}
	return r.push(ctx, targetUserID, env)
}

func notificationEnvelope(n models.Notification) (models.Envelope, error) {
	switch v := n.(type) {
	case models.MissedWorkout:
		return models.Envelope{Type: string(v.Type()), Payload: v}, nil
	case models.WorkoutStatusChanged:
		return models.Envelope{Type: string(v.Type()), Payload: v}, nil
	default:
		return models.Envelope{}, fmt.Errorf("unhandled notification type %T", n)
	}
}

func (r *Router) push(ctx context.Context, userID string, env models.Envelope) int {
	channels := r.presence.ChannelsFor(userID)
	if len(channels) == 0 {
		metrics.PushOffline.WithLabelValues(env.Type).Inc()
		r.log.Debug("recipient offline, push dropped", zap.String("user_id", userID), zap.String("type", env.Type))
		return 0
	}

	// the sender going away must not cancel pushes to the recipient
	base := context.WithoutCancel(ctx)
	var (
		wg        sync.WaitGroup
		delivered atomic.Int32
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(ch presence.Channel) {
			defer wg.Done()
			if err := r.pushOne(base, ch, env); err != nil {
				metrics.PushFailed.WithLabelValues(env.Type).Inc()
				r.log.Warn("push failed",
					zap.String("user_id", userID),
					zap.String("channel", ch.ID()),
					zap.String("type", env.Type),
					zap.Error(err))
				return
			}
			metrics.PushOK.WithLabelValues(env.Type).Inc()
			delivered.Add(1)
		}(ch)
	}
	wg.Wait()
	return int(delivered.Load())
}

func (r *Router) pushOne(ctx context.Context, ch presence.Channel, env models.Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in push: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return ch.Push(ctx, env)
}
