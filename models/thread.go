package models

import (
	"strconv"
	"time"
)

// Thread is the per-viewer view of a 1:1 conversation. LastMessage and
// LastMessageAt are nil for a thread that was opened but has no message yet.
type Thread struct {
	CounterpartID   string     `json:"counterpartId"`
	CounterpartName string     `json:"counterpartName"`
	LastMessage     *Message   `json:"lastMessage"`
	LastMessageAt   *time.Time `json:"lastMessageAt"`
	UnreadCount     int        `json:"unreadCount"`
}

// OpenedThread marks a conversation started without a first message.
type OpenedThread struct {
	Pair      string    `bson:"_id" json:"-"`
	UserA     string    `bson:"userA" json:"userA"`
	UserB     string    `bson:"userB" json:"userB"`
	OpenedBy  string    `bson:"openedBy" json:"openedBy"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// PairKey is the order-independent key of the conversation between a and b.
// The first id is length prefixed so that ids containing ':' cannot make two
// different pairs share a key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return strconv.Itoa(len(a)) + ":" + a + ":" + b
}

// NewOpenedThread builds the marker with participants in key order.
func NewOpenedThread(openedBy, counterpart string, at time.Time) OpenedThread {
	a, b := openedBy, counterpart
	if a > b {
		a, b = b, a
	}
	return OpenedThread{
		Pair:      PairKey(a, b),
		UserA:     a,
		UserB:     b,
		OpenedBy:  openedBy,
		CreatedAt: at,
	}
}

// Counterpart returns the other participant from viewer's side.
func (t OpenedThread) Counterpart(viewer string) string {
	if t.UserA == viewer {
		return t.UserB
	}
	return t.UserA
}
