package threads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"gymtalk/directory"
	"gymtalk/mocks"
	"gymtalk/models"
)

var t0 = time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)

func msg(id, from, to string, minute int, read bool) models.Message {
	return models.Message{ID: id, SenderID: from, ReceiverID: to, Text: id, CreatedAt: t0.Add(time.Duration(minute) * time.Minute), Read: read}
}

type fakeSource struct {
	messages []models.Message
	opened   []models.OpenedThread
	err      error
}

func (f fakeSource) MessagesFor(context.Context, string) ([]models.Message, error) {
	return f.messages, f.err
}

func (f fakeSource) OpenedThreadsFor(context.Context, string) ([]models.OpenedThread, error) {
	return f.opened, nil
}

func TestAggregate_Unread_Count_With_Mixed_Read_State(t *testing.T) {
	req := require.New(t)

	// Given a viewer with two counterparts and mixed read states
	messages := []models.Message{
		msg("1", "trainer", "me", 1, true),
		msg("2", "trainer", "me", 2, false),
		msg("3", "me", "trainer", 3, false),
		msg("4", "trainer", "me", 4, false),
		msg("5", "admin", "me", 5, true),
		msg("6", "me", "admin", 6, false),
	}

	// When
	result := Aggregate("me", messages, nil)

	// Then
	req.Len(result, 2)
	req.Equal("admin", result[0].CounterpartID)
	req.Equal(0, result[0].UnreadCount)
	req.Equal("6", result[0].LastMessage.ID)

	req.Equal("trainer", result[1].CounterpartID)
	req.Equal(2, result[1].UnreadCount)
	req.Equal("4", result[1].LastMessage.ID)
	req.True(result[1].LastMessageAt.Equal(t0.Add(4 * time.Minute)))
}

func TestAggregate_Ties_Broken_By_Counterpart(t *testing.T) {
	req := require.New(t)
	messages := []models.Message{
		msg("a", "zed", "me", 1, false),
		msg("b", "amy", "me", 1, false),
		msg("c", "bob", "me", 1, false),
	}

	result := Aggregate("me", messages, nil)

	req.Equal([]string{"amy", "bob", "zed"}, []string{result[0].CounterpartID, result[1].CounterpartID, result[2].CounterpartID})
}

func TestAggregate_Opened_Thread_Without_Messages_Sorts_Last(t *testing.T) {
	req := require.New(t)
	messages := []models.Message{msg("1", "me", "active", 1, false)}
	opened := []models.OpenedThread{
		models.NewOpenedThread("me", "quiet", t0.Add(time.Hour)),
		models.NewOpenedThread("me", "active", t0),
	}

	result := Aggregate("me", messages, opened)

	req.Len(result, 2)
	req.Equal("active", result[0].CounterpartID)
	req.Equal("quiet", result[1].CounterpartID)
	req.Nil(result[1].LastMessage)
	req.Nil(result[1].LastMessageAt)
	req.Zero(result[1].UnreadCount)
}

func TestAggregator_ThreadsFor_Resolves_Names(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockDirectory(ctrl)
	agg := NewAggregator(fakeSource{messages: []models.Message{
		msg("1", "trainer", "me", 1, false),
		msg("2", "gone", "me", 2, false),
		msg("3", "flaky", "me", 3, false),
	}}, dir, zap.NewNop())

	dir.EXPECT().User(gomock.Any(), "trainer").Return(models.User{ID: "trainer", Name: "Tess"}, nil)
	dir.EXPECT().User(gomock.Any(), "gone").Return(models.User{}, directory.ErrUserNotFound)
	dir.EXPECT().User(gomock.Any(), "flaky").Return(models.User{}, errors.New("timeout"))

	result, err := agg.ThreadsFor(context.Background(), "me")

	req.NoError(err)
	req.Len(result, 3)
	req.Equal(UnknownName, result[0].CounterpartName)
	req.Equal(UnknownName, result[1].CounterpartName)
	req.Equal("Tess", result[2].CounterpartName)
}

func TestAggregator_ThreadsFor_Store_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	agg := NewAggregator(fakeSource{err: errors.New("down")}, mocks.NewMockDirectory(ctrl), zap.NewNop())

	_, err := agg.ThreadsFor(context.Background(), "me")
	require.Error(t, err)
}
