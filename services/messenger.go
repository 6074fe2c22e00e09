package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"gymtalk/apperr"
	"gymtalk/metrics"
	"gymtalk/models"
	"gymtalk/store"
)

const (
	MaxTextLength  = 4000
	MaxReadBatch   = 500
	errCannotStart = "cannot start conversation"
)

type Policy interface {
	CanInitiate(ctx context.Context, originatorID string, role models.Role, targetID string) (bool, error)
	CanReply(ctx context.Context, senderID, counterpartID string) (bool, error)
	CanSend(ctx context.Context, senderID string, role models.Role, receiverID string) (bool, error)
}

type ThreadLister interface {
	ThreadsFor(ctx context.Context, viewerID string) ([]models.Thread, error)
}

type Deliverer interface {
	DeliverMessage(ctx context.Context, msg models.Message) int
	DeliverReadReceipt(ctx context.Context, senderID string, receipt models.ReadReceipt) int
	DeliverThreadOpened(ctx context.Context, recipientID string, thread models.Thread) int
}

// ConversationPage is a page of history in display order (oldest first).
type ConversationPage struct {
	Messages []models.Message `json:"messages"`
	Total    int64            `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

// Messenger is the entry point for every chat operation made on behalf of an
// authenticated user. It authorizes, persists and then hands off to delivery.
type Messenger struct {
	store    store.MessageStore
	policy   Policy
	threads  ThreadLister
	delivery Deliverer
	log      *zap.Logger
	now      func() time.Time
}

func NewMessenger(s store.MessageStore, p Policy, threads ThreadLister, d Deliverer, log *zap.Logger) *Messenger {
	return &Messenger{
		store:    s,
		policy:   p,
		threads:  threads,
		delivery: d,
		log:      log.With(zap.String("component", "messenger")),
		now:      time.Now,
	}
}

// Send persists a message from sender to receiverID and pushes it to the
// receiver's live channels. Push failures never fail the call.
func (m *Messenger) Send(ctx context.Context, sender models.Identity, receiverID, text string) (models.Message, error) {
	if err := validateCounterpart(sender.UserID, receiverID); err != nil {
		return models.Message{}, m.rejected(err)
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, m.rejected(apperr.Validation("text must not be empty"))
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return models.Message{}, m.rejected(apperr.Validation("text is too long"))
	}

	ok, err := m.policy.CanSend(ctx, sender.UserID, sender.Role, receiverID)
	if err != nil {
		return models.Message{}, apperr.Internal("conversation policy check failed", err)
	}
	if !ok {
		return models.Message{}, m.rejected(apperr.Authorization(errCannotStart))
	}

	msg, err := m.store.Insert(ctx, sender.UserID, receiverID, text)
	if err != nil {
		return models.Message{}, apperr.Internal("failed to save message", err)
	}
	metrics.MessagesSent.Inc()
	m.log.Debug("message stored",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("receiver_id", msg.ReceiverID))

	m.delivery.DeliverMessage(ctx, msg)
	return msg, nil
}

func (m *Messenger) rejected(err *apperr.Error) error {
	metrics.SendRejected.WithLabelValues(string(err.Code)).Inc()
	return err
}

// MarkRead flips read on the reader's own messages among ids and notifies the
// original senders. It returns the number of messages that changed.
func (m *Messenger) MarkRead(ctx context.Context, reader models.Identity, ids []string) (int, error) {
	ids = lo.Uniq(lo.Compact(ids))
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > MaxReadBatch {
		return 0, apperr.Validation("too many message ids")
	}

	flipped, err := m.store.MarkRead(ctx, reader.UserID, ids)
	if err != nil {
		return 0, apperr.Internal("failed to mark messages as read", err)
	}

	bySender := lo.GroupBy(flipped, func(msg models.Message) string { return msg.SenderID })
	for senderID, msgs := range bySender {
		m.delivery.DeliverReadReceipt(ctx, senderID, models.ReadReceipt{
			ReaderID:   reader.UserID,
			MessageIDs: lo.Map(msgs, func(msg models.Message, _ int) string { return msg.ID }),
		})
	}
	return len(flipped), nil
}

// Conversation returns one page of the history between viewer and
// counterpartID. Pages are taken newest first and returned oldest first.
func (m *Messenger) Conversation(ctx context.Context, viewer models.Identity, counterpartID string, page store.Page) (ConversationPage, error) {
	if err := validateCounterpart(viewer.UserID, counterpartID); err != nil {
		return ConversationPage{}, err
	}
	page = page.Normalize()

	messages, total, err := m.store.Conversation(ctx, viewer.UserID, counterpartID, page)
	if err != nil {
		return ConversationPage{}, apperr.Internal("failed to fetch messages", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return ConversationPage{
		Messages: lo.Reverse(messages),
		Total:    total,
		HasMore:  int64(page.Skip+len(messages)) < total,
	}, nil
}

func (m *Messenger) Threads(ctx context.Context, viewer models.Identity) ([]models.Thread, error) {
	threads, err := m.threads.ThreadsFor(ctx, viewer.UserID)
	if err != nil {
		return nil, apperr.Internal("failed to fetch threads", err)
	}
	if threads == nil {
		threads = []models.Thread{}
	}
	return threads, nil
}

// OpenThread starts an empty conversation so that the counterpart can reply
// before any message is sent. Opening an existing thread returns it unchanged
// with created false.
func (m *Messenger) OpenThread(ctx context.Context, opener models.Identity, counterpartID string) (models.Thread, bool, error) {
	if err := validateCounterpart(opener.UserID, counterpartID); err != nil {
		return models.Thread{}, false, err
	}

	exists, err := m.policy.CanReply(ctx, opener.UserID, counterpartID)
	if err != nil {
		return models.Thread{}, false, apperr.Internal("conversation policy check failed", err)
	}

	created := false
	if !exists {
		allowed, err := m.policy.CanInitiate(ctx, opener.UserID, opener.Role, counterpartID)
		if err != nil {
			return models.Thread{}, false, apperr.Internal("conversation policy check failed", err)
		}
		if !allowed {
			return models.Thread{}, false, apperr.Authorization(errCannotStart)
		}
		_, created, err = m.store.OpenThread(ctx, models.NewOpenedThread(opener.UserID, counterpartID, m.now().UTC()))
		if err != nil {
			return models.Thread{}, false, apperr.Internal("failed to open thread", err)
		}
	}

	threads, err := m.Threads(ctx, opener)
	if err != nil {
		return models.Thread{}, false, err
	}
	thread, found := lo.Find(threads, func(t models.Thread) bool { return t.CounterpartID == counterpartID })
	if !found {
		return models.Thread{}, false, apperr.NotFound("thread not found")
	}
	if created {
		m.notifyOpened(ctx, opener.UserID, counterpartID)
	}
	return thread, created, nil
}

// notifyOpened pushes the counterpart's view of a freshly opened thread.
// Failures are logged only; the thread exists either way.
func (m *Messenger) notifyOpened(ctx context.Context, openerID, counterpartID string) {
	threads, err := m.threads.ThreadsFor(ctx, counterpartID)
	if err != nil {
		m.log.Warn("thread_opened push skipped", zap.String("user_id", counterpartID), zap.Error(err))
		return
	}
	view, found := lo.Find(threads, func(t models.Thread) bool { return t.CounterpartID == openerID })
	if !found {
		return
	}
	m.delivery.DeliverThreadOpened(ctx, counterpartID, view)
}

func validateCounterpart(self, other string) *apperr.Error {
	if strings.TrimSpace(other) == "" {
		return apperr.Validation("counterpart is required")
	}
	if !models.ValidUserID(other) {
		return apperr.Validation("invalid counterpart id")
	}
	if self == other {
		return apperr.Validation("cannot message yourself")
	}
	return nil
}
