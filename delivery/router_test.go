package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gymtalk/mocks"
	"gymtalk/models"
	"gymtalk/presence"
)

type unknownNotification struct{ models.MissedWorkout }

func newChannel(ctrl *gomock.Controller, id string) *mocks.MockChannel {
	ch := mocks.NewMockChannel(ctrl)
	ch.EXPECT().ID().Return(id).AnyTimes()
	return ch
}

func TestRouter_DeliverMessage_To_Every_Channel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)
	msg := models.Message{ID: "m1", SenderID: "t", ReceiverID: "c", Text: "Welcome"}
	want := models.Envelope{Type: "new_message", Payload: msg}

	// Given the receiver has two tabs open
	tab, phone := newChannel(ctrl, "tab"), newChannel(ctrl, "phone")
	registry.Join("c", tab)
	registry.Join("c", phone)
	tab.EXPECT().Push(gomock.Any(), want).Return(nil).Times(1)
	phone.EXPECT().Push(gomock.Any(), want).Return(nil).Times(1)

	// When
	delivered := router.DeliverMessage(context.Background(), msg)

	// Then
	req.Equal(2, delivered)
}

func TestRouter_Failing_Channel_Does_Not_Affect_Others(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), 20*time.Millisecond)

	stale, slow, healthy := newChannel(ctrl, "stale"), newChannel(ctrl, "slow"), newChannel(ctrl, "healthy")
	for _, ch := range []presence.Channel{stale, slow, healthy} {
		registry.Join("c", ch)
	}
	stale.EXPECT().Push(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe"))
	slow.EXPECT().Push(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ models.Envelope) error {
			<-ctx.Done()
			return ctx.Err()
		})
	healthy.EXPECT().Push(gomock.Any(), gomock.Any()).Return(nil)

	delivered := router.DeliverMessage(context.Background(), models.Message{ReceiverID: "c"})

	req.Equal(1, delivered)
}

func TestRouter_Panicking_Channel_Is_Contained(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)

	ch := newChannel(ctrl, "bad")
	registry.Join("c", ch)
	ch.EXPECT().Push(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, models.Envelope) error { panic("closed channel") })

	require.Zero(t, router.DeliverMessage(context.Background(), models.Message{ReceiverID: "c"}))
}

func TestRouter_Offline_Recipient_Is_Dropped(t *testing.T) {
	router := NewRouter(presence.NewRegistry(), zap.NewNop(), time.Second)
	require.Zero(t, router.DeliverMessage(context.Background(), models.Message{ReceiverID: "nobody"}))
}

func TestRouter_Cancelled_Sender_Context_Still_Delivers(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)

	ch := newChannel(ctrl, "tab")
	registry.Join("c", ch)
	ch.EXPECT().Push(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ models.Envelope) error { return ctx.Err() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req.Equal(1, router.DeliverMessage(ctx, models.Message{ReceiverID: "c"}))
}

func TestRouter_DeliverNotification_Tags_Type(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)
	event := models.MissedWorkout{ClientID: "c", Reason: "sick"}

	ch := newChannel(ctrl, "tab")
	registry.Join("t", ch)
	ch.EXPECT().Push(gomock.Any(), models.Envelope{Type: "missed_workout", Payload: event}).Return(nil)

	req.Equal(1, router.DeliverNotification(context.Background(), "t", event))
}

func TestRouter_DeliverNotification_Rejects_Unknown_Type(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)

	ch := newChannel(ctrl, "tab")
	registry.Join("t", ch)
	ch.EXPECT().Push(gomock.Any(), gomock.Any()).Times(0)

	require.Zero(t, router.DeliverNotification(context.Background(), "t", unknownNotification{}))
	require.Zero(t, router.DeliverNotification(context.Background(), "t", &models.MissedWorkout{}))
}

func TestRouter_DeliverThreadOpened(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)
	thread := models.Thread{CounterpartID: "t", CounterpartName: "Tess"}

	ch := newChannel(ctrl, "tab")
	registry.Join("c", ch)
	ch.EXPECT().Push(gomock.Any(), models.Envelope{Type: "thread_opened", Payload: thread}).Return(nil)

	require.Equal(t, 1, router.DeliverThreadOpened(context.Background(), "c", thread))
}

func TestRouter_DeliverReadReceipt(t *testing.T) {
	ctrl := gomock.NewController(t)
	registry := presence.NewRegistry()
	router := NewRouter(registry, zap.NewNop(), time.Second)
	receipt := models.ReadReceipt{ReaderID: "c", MessageIDs: []string{"m1"}}

	ch := newChannel(ctrl, "tab")
	registry.Join("t", ch)
	ch.EXPECT().Push(gomock.Any(), models.Envelope{Type: "messages_read", Payload: receipt}).Return(nil)

	require.Equal(t, 1, router.DeliverReadReceipt(context.Background(), "t", receipt))
}
