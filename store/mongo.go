package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"gymtalk/models"
)

type messageDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	SenderID   string             `bson:"senderId"`
	ReceiverID string             `bson:"receiverId"`
	Text       string             `bson:"text"`
	CreatedAt  time.Time          `bson:"createdAt"`
	Read       bool               `bson:"read"`
}

func (d messageDoc) toModel() models.Message {
	return models.Message{
		ID:         d.ID.Hex(),
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		CreatedAt:  d.CreatedAt.UTC(),
		Read:       d.Read,
	}
}

// MongoStore keeps messages in the "messages" collection and opened threads
// in "threads". Multi-document updates are not atomic in MongoDB without a
// replica-set transaction, so the store guards MarkRead with a write lock and
// every read with a read lock: a concurrent reader in this process sees either
// none or all of a bulk mark-as-read.
type MongoStore struct {
	messages *mongo.Collection
	threads  *mongo.Collection
	log      *zap.Logger
	clock    *Clock
	timeout  time.Duration

	mu sync.RWMutex
}

func NewMongoStore(db *mongo.Database, log *zap.Logger, clock *Clock) *MongoStore {
	if clock == nil {
		clock = NewClock(nil)
	}
	return &MongoStore{
		messages: db.Collection("messages"),
		threads:  db.Collection("threads"),
		log:      log.With(zap.String("component", "mongo_store")),
		clock:    clock,
		timeout:  10 * time.Second,
	}
}

// EnsureIndexes creates the indexes the queries below rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "receiverId", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	_, err = s.threads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userA", Value: 1}}},
		{Keys: bson.D{{Key: "userB", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create thread indexes: %w", err)
	}
	return nil
}

// Close is a no-op: the client is owned by the database package.
func (s *MongoStore) Close() error { return nil }

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"senderId": a, "receiverId": b},
		bson.M{"senderId": b, "receiverId": a},
	}}
}

func involvesFilter(userID string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"senderId": userID},
		bson.M{"receiverId": userID},
	}}
}

// unreadOwnedFilter selects the unread messages among ids addressed to receiverID.
// Ids that are not valid ObjectIDs cannot exist and are dropped.
func unreadOwnedFilter(receiverID string, ids []string) (bson.M, bool) {
	oids := lo.FilterMap(lo.Uniq(ids), func(id string, _ int) (primitive.ObjectID, bool) {
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	})
	if len(oids) == 0 {
		return nil, false
	}
	return bson.M{
		"_id":        bson.M{"$in": oids},
		"receiverId": receiverID,
		"read":       false,
	}, true
}

func (s *MongoStore) Insert(ctx context.Context, senderID, receiverID, text string) (models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := messageDoc{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		CreatedAt:  s.clock.Next(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return doc.toModel(), nil
}

func (s *MongoStore) MarkRead(ctx context.Context, receiverID string, ids []string) ([]models.Message, error) {
	filter, ok := unreadOwnedFilter(receiverID, ids)
	if !ok {
		return nil, nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []messageDoc
	cursor, err := s.messages.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find unread: %w", err)
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode unread: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if _, err := s.messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}}); err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return lo.Map(docs, func(d messageDoc, _ int) models.Message {
		m := d.toModel()
		m.Read = true
		return m
	}), nil
}

func (s *MongoStore) Conversation(ctx context.Context, a, b string, page Page) ([]models.Message, int64, error) {
	page = page.Normalize()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter := pairFilter(a, b)
	total, err := s.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count conversation: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Skip)).
		SetLimit(int64(page.Limit))
	messages, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("conversation: %w", err)
	}
	return messages, total, nil
}

func (s *MongoStore) MessagesFor(ctx context.Context, userID string) ([]models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, err := s.find(ctx, involvesFilter(userID), options.Find())
	if err != nil {
		return nil, fmt.Errorf("messages for %s: %w", userID, err)
	}
	return messages, nil
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Message, error) {
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []messageDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return lo.Map(docs, func(d messageDoc, _ int) models.Message { return d.toModel() }), nil
}

func (s *MongoStore) ThreadExists(ctx context.Context, a, b string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.threads.CountDocuments(ctx, bson.M{"_id": models.PairKey(a, b)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count threads: %w", err)
	}
	if n > 0 {
		return true, nil
	}
	n, err = s.messages.CountDocuments(ctx, pairFilter(a, b), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count messages: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) OpenThread(ctx context.Context, thread models.OpenedThread) (models.OpenedThread, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.threads.InsertOne(ctx, thread)
	if err == nil {
		return thread, true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return models.OpenedThread{}, false, fmt.Errorf("open thread: %w", err)
	}
	var existing models.OpenedThread
	if err := s.threads.FindOne(ctx, bson.M{"_id": thread.Pair}).Decode(&existing); err != nil {
		return models.OpenedThread{}, false, fmt.Errorf("load thread: %w", err)
	}
	existing.CreatedAt = existing.CreatedAt.UTC()
	return existing, false, nil
}

func (s *MongoStore) OpenedThreadsFor(ctx context.Context, userID string) ([]models.OpenedThread, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cursor, err := s.threads.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"userA": userID},
		bson.M{"userB": userID},
	}})
	if err != nil {
		return nil, fmt.Errorf("opened threads for %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	var threads []models.OpenedThread
	if err := cursor.All(ctx, &threads); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode threads: %w", err)
	}
	return threads, nil
}
