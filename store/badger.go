package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"gymtalk/models"
)

// Key layout, NUL separated. User ids with control characters are rejected
// at the auth boundary, so a user id never contains the separator:
//
//	msg/{id}                               -> bson(Message)
//	conv/{owner}/{counterpart}/{ts}/{id}   -> empty, one entry per participant
//	thread/{pair}                          -> bson(OpenedThread)
//	opened/{owner}/{counterpart}           -> empty, one entry per participant
//
// ts is the 19-digit zero padded UnixNano so that keys sort chronologically.
const sep = "\x00"

type BadgerStore struct {
	db    *badger.DB
	log   *zap.Logger
	clock *Clock

	// writes are serialized so timestamp order equals commit order
	mu sync.Mutex
}

func NewBadgerStore(db *badger.DB, log *zap.Logger, clock *Clock) *BadgerStore {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &BadgerStore{db: db, log: log.With(zap.String("component", "badger_store")), clock: clock}
}

// OpenBadger opens (or creates) the database directory at path.
func OpenBadger(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

func prefix(parts ...string) []byte {
	return append(key(parts...), sep...)
}

func msgKey(id string) []byte { return key("msg", id) }

func convKey(owner, counterpart string, m models.Message) []byte {
	return key("conv", owner, counterpart, fmt.Sprintf("%019d", m.CreatedAt.UnixNano()), m.ID)
}

func (s *BadgerStore) Insert(_ context.Context, senderID, receiverID, text string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{
		ID:         primitive.NewObjectID().Hex(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  s.clock.Next(),
	}
	value, err := bson.Marshal(msg)
	if err != nil {
		return models.Message{}, err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(msgKey(msg.ID), value); err != nil {
			return err
		}
		if err := txn.Set(convKey(senderID, receiverID, msg), nil); err != nil {
			return err
		}
		return txn.Set(convKey(receiverID, senderID, msg), nil)
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) MarkRead(_ context.Context, receiverID string, ids []string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flipped []models.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		flipped = flipped[:0]
		for _, id := range lo.Uniq(ids) {
			msg, err := getMessage(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if msg.ReceiverID != receiverID || msg.Read {
				continue
			}
			msg.Read = true
			value, err := bson.Marshal(msg)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey(id), value); err != nil {
				return err
			}
			flipped = append(flipped, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return flipped, nil
}

func (s *BadgerStore) Conversation(_ context.Context, a, b string, page Page) ([]models.Message, int64, error) {
	page = page.Normalize()
	var (
		messages []models.Message
		total    int64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanConversation(txn, prefix("conv", a, b), true)
		if err != nil {
			return err
		}
		total = int64(len(ids))
		if page.Skip >= len(ids) {
			return nil
		}
		ids = ids[page.Skip:min(len(ids), page.Skip+page.Limit)]
		messages, err = getMessages(txn, ids)
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("conversation: %w", err)
	}
	return messages, total, nil
}

func (s *BadgerStore) MessagesFor(_ context.Context, userID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := scanConversation(txn, prefix("conv", userID), false)
		if err != nil {
			return err
		}
		messages, err = getMessages(txn, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", userID, err)
	}
	return messages, nil
}

func (s *BadgerStore) ThreadExists(_ context.Context, a, b string) (bool, error) {
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key("thread", models.PairKey(a, b)))
		if err == nil {
			exists = true
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := prefix("conv", a, b)
		it.Seek(p)
		exists = it.ValidForPrefix(p)
		return nil
	})
	return exists, err
}

func (s *BadgerStore) OpenThread(_ context.Context, thread models.OpenedThread) (models.OpenedThread, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := false
	err := s.db.Update(func(txn *badger.Txn) error {
		existing, err := getThread(txn, thread.Pair)
		if err == nil {
			thread = existing
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value, err := bson.Marshal(thread)
		if err != nil {
			return err
		}
		if err := txn.Set(key("thread", thread.Pair), value); err != nil {
			return err
		}
		if err := txn.Set(key("opened", thread.UserA, thread.UserB), nil); err != nil {
			return err
		}
		created = true
		return txn.Set(key("opened", thread.UserB, thread.UserA), nil)
	})
	if err != nil {
		return models.OpenedThread{}, false, fmt.Errorf("open thread: %w", err)
	}
	return thread, created, nil
}

func (s *BadgerStore) OpenedThreadsFor(_ context.Context, userID string) ([]models.OpenedThread, error) {
	var threads []models.OpenedThread
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := prefix("opened", userID)
		var counterparts []string
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			counterparts = append(counterparts, string(bytes.TrimPrefix(it.Item().Key(), p)))
		}
		for _, counterpart := range counterparts {
			thread, err := getThread(txn, models.PairKey(userID, counterpart))
			if err != nil {
				return err
			}
			threads = append(threads, thread)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("opened threads for %s: %w", userID, err)
	}
	return threads, nil
}

// scanConversation collects message ids under p in key order, or reversed.
func scanConversation(txn *badger.Txn, p []byte, reverse bool) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := p
	if reverse {
		// one past every key under p
		seek = append(append([]byte{}, p...), 0xFF)
	}
	var ids []string
	for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
		k := it.Item().Key()
		ids = append(ids, string(k[bytes.LastIndex(k, []byte(sep))+1:]))
	}
	return ids, nil
}

func getMessages(txn *badger.Txn, ids []string) ([]models.Message, error) {
	messages := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := getMessage(txn, id)
		if err != nil {
			return nil, fmt.Errorf("load message %s: %w", id, err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func getMessage(txn *badger.Txn, id string) (models.Message, error) {
	var msg models.Message
	item, err := txn.Get(msgKey(id))
	if err != nil {
		return msg, err
	}
	err = item.Value(func(value []byte) error {
		return bson.Unmarshal(value, &msg)
	})
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg, err
}

func getThread(txn *badger.Txn, pair string) (models.OpenedThread, error) {
	var thread models.OpenedThread
	item, err := txn.Get(key("thread", pair))
	if err != nil {
		return thread, err
	}
	err = item.Value(func(value []byte) error {
		return bson.Unmarshal(value, &thread)
	})
	thread.CreatedAt = thread.CreatedAt.UTC()
	return thread, err
}
