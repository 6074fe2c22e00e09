package presence

import "sync"

// Registry maps users to their live channels. A user may hold any number of
// channels; a channel belongs to at most one user at a time. All methods are
// safe for concurrent use and every read observes completed writes.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Channel
	owner  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]Channel),
		owner:  make(map[string]string),
	}
}

// Join registers ch under userID. Joining again with the same channel is a
// no-op; joining under another user moves the channel. It reports whether
// the channel was newly registered for userID.
func (r *Registry) Join(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ch.ID()
	if current, ok := r.owner[id]; ok {
		if current == userID {
			return false
		}
		r.remove(current, id)
	}
	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]Channel)
		r.byUser[userID] = set
	}
	set[id] = ch
	r.owner[id] = userID
	return true
}

// Leave unregisters ch from whichever user holds it. Unknown channels are
// ignored so late or duplicate disconnects are harmless.
func (r *Registry) Leave(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ch.ID()
	userID, ok := r.owner[id]
	if !ok {
		return false
	}
	r.remove(userID, id)
	return true
}

func (r *Registry) remove(userID, id string) {
	delete(r.owner, id)
	if set, ok := r.byUser[userID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ChannelsFor returns a snapshot of userID's channels, possibly empty.
func (r *Registry) ChannelsFor(userID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	channels := make([]Channel, 0, len(set))
	for _, ch := range set {
		channels = append(channels, ch)
	}
	return channels
}

// OwnerOf returns the user ch is registered under.
func (r *Registry) OwnerOf(ch Channel) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.owner[ch.ID()]
	return userID, ok
}

// Len is the number of registered channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.owner)
}

// Users is the number of users with at least one channel.
func (r *Registry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
