package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gymtalk/apperr"
	"gymtalk/mocks"
	"gymtalk/models"
)

type delivery struct {
	target string
	n      models.Notification
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []delivery
}

func (r *recordingNotifier) DeliverNotification(_ context.Context, target string, n models.Notification) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, delivery{target: target, n: n})
	return 1
}

func (r *recordingNotifier) recorded() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.calls...)
}

func TestDispatcher_OnMissedWorkout_Unassigned_Client_Pushes_Nothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	notifier := &recordingNotifier{}
	d := NewDispatcher(dir, notifier, zap.NewNop())

	// Given a client with no trainer
	dir.EXPECT().ResolveTrainerFor(gomock.Any(), "u").Return("", false, nil)

	// When
	d.OnMissedWorkout(context.Background(), "u", "overslept")

	// Then
	require.Empty(t, notifier.recorded())
}

func TestDispatcher_OnMissedWorkout_Targets_Trainer(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	notifier := &recordingNotifier{}
	d := NewDispatcher(dir, notifier, zap.NewNop())

	dir.EXPECT().ResolveTrainerFor(gomock.Any(), "c").Return("t", true, nil)
	dir.EXPECT().RoleOf(gomock.Any(), "t").Return(models.RoleTrainer, nil)

	d.OnMissedWorkout(context.Background(), "c", "sick")

	calls := notifier.recorded()
	req.Len(calls, 1)
	req.Equal("t", calls[0].target)
	req.Equal(models.MissedWorkout{ClientID: "c", Reason: "sick"}, calls[0].n)
}

func TestDispatcher_Never_Targets_A_Client(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	notifier := &recordingNotifier{}
	d := NewDispatcher(dir, notifier, zap.NewNop())

	// Given a corrupted assignment pointing at another client
	dir.EXPECT().ResolveTrainerFor(gomock.Any(), "c").Return("c2", true, nil)
	dir.EXPECT().RoleOf(gomock.Any(), "c2").Return(models.RoleClient, nil)

	d.OnMissedWorkout(context.Background(), "c", "sick")

	require.Empty(t, notifier.recorded())
}

func TestDispatcher_Lookup_Failure_Drops_Event(t *testing.T) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	notifier := &recordingNotifier{}
	d := NewDispatcher(dir, notifier, zap.NewNop())

	dir.EXPECT().ResolveTrainerFor(gomock.Any(), "c").Return("", false, errors.New("profile store down"))

	d.OnStatusChanged(context.Background(), "c", "completed", time.Now(), nil)

	require.Empty(t, notifier.recorded())
}

func TestDispatcher_OnStatusChanged_Payload(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	notifier := &recordingNotifier{}
	d := NewDispatcher(dir, notifier, zap.NewNop())
	photo := "https://cdn.example.com/p.jpg"
	date := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	dir.EXPECT().ResolveTrainerFor(gomock.Any(), "c").Return("a", true, nil)
	dir.EXPECT().RoleOf(gomock.Any(), "a").Return(models.RoleAdmin, nil)
	dir.EXPECT().User(gomock.Any(), "c").Return(models.User{ID: "c", Name: "Cara"}, nil)

	d.OnStatusChanged(context.Background(), "c", "completed", date, &photo)

	calls := notifier.recorded()
	req.Len(calls, 1)
	req.Equal("a", calls[0].target)
	req.Equal(models.WorkoutStatusChanged{
		ClientID: "c", ClientName: "Cara", Status: "completed", Date: date, Photo: &photo,
	}, calls[0].n)
}

func TestDispatcher_Handle_Rejects_Invalid_Event(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := NewDispatcher(mocks.NewMockDirectory(ctrl), &recordingNotifier{}, zap.NewNop())

	err := d.Handle(context.Background(), Event{Type: "workout_deleted", ClientID: "c"})
	require.True(t, apperr.Is(err, apperr.CodeValidation))

	err = d.Handle(context.Background(), Event{Type: models.EventWorkoutStatusChanged, ClientID: "c"})
	require.True(t, apperr.Is(err, apperr.CodeValidation))
}
