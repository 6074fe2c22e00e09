package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gymtalk/models"
)

type userDoc struct {
	ID     primitive.ObjectID `bson:"_id"`
	Name   string             `bson:"name"`
	Role   models.Role        `bson:"role"`
	Scopes []string           `bson:"scopes,omitempty"`
}

type clientDoc struct {
	UserID    primitive.ObjectID  `bson:"userId"`
	TrainerID *primitive.ObjectID `bson:"trainerId,omitempty"`
}

// MongoDirectory reads the "users" and "clients" collections written by the
// profile side of the application.
type MongoDirectory struct {
	users   *mongo.Collection
	clients *mongo.Collection
	timeout time.Duration
}

func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		users:   db.Collection("users"),
		clients: db.Collection("clients"),
		timeout: 5 * time.Second,
	}
}

func (d *MongoDirectory) User(ctx context.Context, userID string) (models.User, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.User{}, ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var doc userDoc
	err = d.users.FindOne(ctx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"name": 1, "role": 1, "scopes": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user %s: %w", userID, err)
	}
	return models.User{ID: doc.ID.Hex(), Name: doc.Name, Role: doc.Role, Scopes: doc.Scopes}, nil
}

func (d *MongoDirectory) RoleOf(ctx context.Context, userID string) (models.Role, error) {
	user, err := d.User(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (d *MongoDirectory) ResolveTrainerFor(ctx context.Context, clientID string) (string, bool, error) {
	oid, err := primitive.ObjectIDFromHex(clientID)
	if err != nil {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var doc clientDoc
	err = d.clients.FindOne(ctx, bson.M{"userId": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find client %s: %w", clientID, err)
	}
	if doc.TrainerID == nil || doc.TrainerID.IsZero() {
		return "", false, nil
	}
	return doc.TrainerID.Hex(), true, nil
}

func (d *MongoDirectory) IsAssigned(ctx context.Context, trainerID, clientID string) (bool, error) {
	current, ok, err := d.ResolveTrainerFor(ctx, clientID)
	if err != nil || !ok {
		return false, err
	}
	return current == trainerID, nil
}
