package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gymtalk/directory"
	"gymtalk/metrics"
	"gymtalk/models"
)

type Notifier interface {
	DeliverNotification(ctx context.Context, targetUserID string, n models.Notification) int
}

// Dispatcher turns domain events into pushes for the client's trainer. Events
// are never stored and never returned as errors once accepted: a client
// without a trainer or an unreachable directory just drops the event.
type Dispatcher struct {
	directory directory.Directory
	notifier  Notifier
	log       *zap.Logger
}

func NewDispatcher(dir directory.Directory, notifier Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{directory: dir, notifier: notifier, log: log.With(zap.String("component", "dispatcher"))}
}

// Handle validates e and routes it to the matching On* method.
func (d *Dispatcher) Handle(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	switch e.Type {
	case models.EventMissedWorkout:
		d.OnMissedWorkout(ctx, e.ClientID, e.Reason)
	case models.EventWorkoutStatusChanged:
		d.OnStatusChanged(ctx, e.ClientID, e.Status, e.Date, e.Photo)
	}
	return nil
}

func (d *Dispatcher) OnMissedWorkout(ctx context.Context, clientID, reason string) {
	trainerID, ok := d.recipientFor(ctx, clientID, models.EventMissedWorkout)
	if !ok {
		return
	}
	d.notifier.DeliverNotification(ctx, trainerID, models.MissedWorkout{ClientID: clientID, Reason: reason})
}

func (d *Dispatcher) OnStatusChanged(ctx context.Context, clientID, status string, date time.Time, photo *string) {
	trainerID, ok := d.recipientFor(ctx, clientID, models.EventWorkoutStatusChanged)
	if !ok {
		return
	}

	name := "Unknown"
	if client, err := d.directory.User(ctx, clientID); err == nil {
		name = client.Name
	} else {
		d.log.Warn("client name lookup failed", zap.String("client_id", clientID), zap.Error(err))
	}

	d.notifier.DeliverNotification(ctx, trainerID, models.WorkoutStatusChanged{
		ClientID:   clientID,
		ClientName: name,
		Status:     status,
		Date:       date.UTC(),
		Photo:      photo,
	})
}

// recipientFor resolves the trainer and checks that it is staff. A client is
// never a notification target.
func (d *Dispatcher) recipientFor(ctx context.Context, clientID string, typ models.EventType) (string, bool) {
	log := d.log.With(zap.String("client_id", clientID), zap.String("type", string(typ)))

	trainerID, ok, err := d.directory.ResolveTrainerFor(ctx, clientID)
	if err != nil {
		metrics.NotificationsDropped.WithLabelValues("lookup_failed").Inc()
		log.Warn("trainer lookup failed, event dropped", zap.Error(err))
		return "", false
	}
	if !ok {
		metrics.NotificationsDropped.WithLabelValues("no_trainer").Inc()
		log.Debug("client has no trainer, event dropped")
		return "", false
	}

	role, err := d.directory.RoleOf(ctx, trainerID)
	if err != nil {
		metrics.NotificationsDropped.WithLabelValues("lookup_failed").Inc()
		log.Warn("recipient role lookup failed, event dropped", zap.String("trainer_id", trainerID), zap.Error(err))
		return "", false
	}
	if !role.Staff() {
		metrics.NotificationsDropped.WithLabelValues("recipient_not_staff").Inc()
		log.Error("resolved recipient is not staff, event dropped",
			zap.String("trainer_id", trainerID), zap.String("role", string(role)))
		return "", false
	}
	return trainerID, true
}
