//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks
package directory

import (
	"context"
	"errors"

	"gymtalk/models"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the read side of the user and profile stores owned by the rest
// of the gym application.
type Directory interface {
	User(ctx context.Context, userID string) (models.User, error)
	RoleOf(ctx context.Context, userID string) (models.Role, error)
	// ResolveTrainerFor returns the client's current trainer; ok is false when
	// the client has no trainer assigned.
	ResolveTrainerFor(ctx context.Context, clientID string) (trainerID string, ok bool, err error)
	IsAssigned(ctx context.Context, trainerID, clientID string) (bool, error)
}
