package threads

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"gymtalk/directory"
	"gymtalk/models"
)

const UnknownName = "Unknown"

type Source interface {
	MessagesFor(ctx context.Context, userID string) ([]models.Message, error)
	OpenedThreadsFor(ctx context.Context, userID string) ([]models.OpenedThread, error)
}

// Aggregator builds a viewer's thread list from the message store. Nothing is
// cached; every call reflects the store as of that read.
type Aggregator struct {
	source    Source
	directory directory.Directory
	log       *zap.Logger
}

func NewAggregator(source Source, dir directory.Directory, log *zap.Logger) *Aggregator {
	return &Aggregator{source: source, directory: dir, log: log.With(zap.String("component", "threads"))}
}

func (a *Aggregator) ThreadsFor(ctx context.Context, viewerID string) ([]models.Thread, error) {
	messages, err := a.source.MessagesFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	opened, err := a.source.OpenedThreadsFor(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	result := Aggregate(viewerID, messages, opened)
	for i := range result {
		result[i].CounterpartName = a.nameOf(ctx, result[i].CounterpartID)
	}
	return result, nil
}

func (a *Aggregator) nameOf(ctx context.Context, userID string) string {
	user, err := a.directory.User(ctx, userID)
	if err != nil {
		if !errors.Is(err, directory.ErrUserNotFound) {
			a.log.Warn("counterpart lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return UnknownName
	}
	return user.Name
}

// Aggregate groups messages by counterpart and appends opened threads that
// have no message yet. Names are left empty.
func Aggregate(viewerID string, messages []models.Message, opened []models.OpenedThread) []models.Thread {
	groups := lo.GroupBy(
		lo.Filter(messages, func(m models.Message, _ int) bool { return m.Involves(viewerID) && m.SenderID != m.ReceiverID }),
		func(m models.Message) string { return m.Counterpart(viewerID) },
	)

	result := make([]models.Thread, 0, len(groups)+len(opened))
	for counterpart, group := range groups {
		last := lo.MaxBy(group, newer)
		at := last.CreatedAt
		result = append(result, models.Thread{
			CounterpartID: counterpart,
			LastMessage:   &last,
			LastMessageAt: &at,
			UnreadCount: lo.CountBy(group, func(m models.Message) bool {
				return m.ReceiverID == viewerID && !m.Read
			}),
		})
	}

	for _, marker := range lo.UniqBy(opened, func(o models.OpenedThread) string { return o.Pair }) {
		counterpart := marker.Counterpart(viewerID)
		if _, ok := groups[counterpart]; ok || counterpart == viewerID {
			continue
		}
		result = append(result, models.Thread{CounterpartID: counterpart})
	}

	slices.SortFunc(result, compareThreads)
	return result
}

func newer(a, b models.Message) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// compareThreads orders by last activity descending, then counterpart id.
// Threads without messages go last.
func compareThreads(a, b models.Thread) int {
	switch {
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return 1
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return -1
	case a.LastMessageAt != nil && b.LastMessageAt != nil && !a.LastMessageAt.Equal(*b.LastMessageAt):
		return b.LastMessageAt.Compare(*a.LastMessageAt)
	}
	return strings.Compare(a.CounterpartID, b.CounterpartID)
}
