package store

import (
	"context"
	"sync"
	"time"

	"gymtalk/models"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// MessageStore is the durable record of direct messages and opened threads.
// Implementations assign message ids and timestamps; Insert and MarkRead are
// serialized per store so that creation order equals timestamp order.
type MessageStore interface {
	Insert(ctx context.Context, senderID, receiverID, text string) (models.Message, error)
	// MarkRead flips read for the ids addressed to receiverID and returns the
	// messages that actually changed. Unknown, foreign or already-read ids are skipped.
	MarkRead(ctx context.Context, receiverID string, ids []string) ([]models.Message, error)
	// Conversation returns the messages between a and b, newest first, and the
	// total number of messages in the pair.
	Conversation(ctx context.Context, a, b string, page Page) ([]models.Message, int64, error)
	// MessagesFor returns every message userID sent or received, from a single
	// consistent read.
	MessagesFor(ctx context.Context, userID string) ([]models.Message, error)
	ThreadExists(ctx context.Context, a, b string) (bool, error)
	// OpenThread records an empty conversation. It returns the existing marker
	// and false if the pair was already opened.
	OpenThread(ctx context.Context, thread models.OpenedThread) (models.OpenedThread, bool, error)
	OpenedThreadsFor(ctx context.Context, userID string) ([]models.OpenedThread, error)
	Close() error
}

type Page struct {
	Limit int
	Skip  int
}

// Normalize clamps the page into the supported range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}

// Clock hands out strictly increasing millisecond timestamps. Millisecond
// precision matches what BSON datetimes keep.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
