package policy

import (
	"context"
	"errors"

	"gymtalk/directory"
	"gymtalk/models"
)

type ThreadLookup interface {
	ThreadExists(ctx context.Context, a, b string) (bool, error)
}

// Policy decides who may open a conversation with whom. Replying inside an
// existing thread is always allowed; starting one is reserved for staff.
type Policy struct {
	threads   ThreadLookup
	directory directory.Directory
}

func NewPolicy(threads ThreadLookup, dir directory.Directory) *Policy {
	return &Policy{threads: threads, directory: dir}
}

// CanInitiate reports whether originatorID, acting with role, may start a new
// thread with targetID. Trainers are limited to their assigned clients, admins
// may reach any existing user and clients never initiate.
func (p *Policy) CanInitiate(ctx context.Context, originatorID string, role models.Role, targetID string) (bool, error) {
	if originatorID == targetID {
		return false, nil
	}
	switch role {
	case models.RoleTrainer:
		return p.directory.IsAssigned(ctx, originatorID, targetID)
	case models.RoleAdmin:
		_, err := p.directory.RoleOf(ctx, targetID)
		if errors.Is(err, directory.ErrUserNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// CanReply is true once any thread exists between the two users.
func (p *Policy) CanReply(ctx context.Context, senderID, counterpartID string) (bool, error) {
	return p.threads.ThreadExists(ctx, senderID, counterpartID)
}

// CanSend combines both checks the way a send request needs them.
func (p *Policy) CanSend(ctx context.Context, senderID string, role models.Role, receiverID string) (bool, error) {
	ok, err := p.CanReply(ctx, senderID, receiverID)
	if err != nil || ok {
		return ok, err
	}
	return p.CanInitiate(ctx, senderID, role, receiverID)
}
