package presence

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gymtalk/models"
)

type stubChannel struct{ id string }

func (s stubChannel) ID() string                                 { return s.id }
func (s stubChannel) Push(context.Context, models.Envelope) error { return nil }

func newStub() stubChannel { return stubChannel{id: uuid.NewString()} }

func TestRegistry_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	ch := newStub()

	req.True(registry.Join("u1", ch))
	req.False(registry.Join("u1", ch))

	req.Len(registry.ChannelsFor("u1"), 1)
	req.Equal(1, registry.Len())
}

func TestRegistry_Multiple_Channels_Per_User(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	tab, phone := newStub(), newStub()

	registry.Join("u1", tab)
	registry.Join("u1", phone)
	req.ElementsMatch([]Channel{tab, phone}, registry.ChannelsFor("u1"))

	// When one channel leaves the other still receives
	req.True(registry.Leave(tab))
	req.Equal([]Channel{phone}, registry.ChannelsFor("u1"))
	req.Equal(1, registry.Users())
}

func TestRegistry_Leave_Unknown_Is_NoOp(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	ch := newStub()

	req.False(registry.Leave(ch))

	registry.Join("u1", ch)
	req.True(registry.Leave(ch))
	req.False(registry.Leave(ch))
	req.Empty(registry.ChannelsFor("u1"))
	req.Zero(registry.Users())
}

func TestRegistry_Rejoin_After_Leave_Is_Fresh(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	ch := newStub()

	registry.Join("u1", ch)
	registry.Leave(ch)

	req.True(registry.Join("u1", ch))
	owner, ok := registry.OwnerOf(ch)
	req.True(ok)
	req.Equal("u1", owner)
}

func TestRegistry_Join_Under_Other_User_Moves_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	ch := newStub()

	registry.Join("u1", ch)
	registry.Join("u2", ch)

	req.Empty(registry.ChannelsFor("u1"))
	req.Equal([]Channel{ch}, registry.ChannelsFor("u2"))
	req.Equal(1, registry.Len())
}

func TestRegistry_Concurrent_Join_Leave(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	const users, perUser = 20, 10

	var wg sync.WaitGroup
	kept := make([][]Channel, users)
	for u := 0; u < users; u++ {
		kept[u] = make([]Channel, perUser)
		for c := 0; c < perUser; c++ {
			kept[u][c] = newStub()
		}
	}
	for u := 0; u < users; u++ {
		for c := 0; c < perUser; c++ {
			wg.Add(1)
			go func(userID string, ch Channel, drop bool) {
				defer wg.Done()
				registry.Join(userID, ch)
				_ = registry.ChannelsFor(userID)
				if drop {
					registry.Leave(ch)
				}
			}(fmt.Sprintf("user-%d", u), kept[u][c], c%2 == 1)
		}
	}
	wg.Wait()

	req.Equal(users*perUser/2, registry.Len())
	for u := 0; u < users; u++ {
		req.Len(registry.ChannelsFor(fmt.Sprintf("user-%d", u)), perUser/2)
	}
}
