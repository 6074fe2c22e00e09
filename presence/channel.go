//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel.go -package=mocks
package presence

import (
	"context"

	"gymtalk/models"
)

// Channel is one live connection able to receive pushes. ID must be unique
// for the lifetime of the connection.
type Channel interface {
	ID() string
	Push(ctx context.Context, env models.Envelope) error
}
