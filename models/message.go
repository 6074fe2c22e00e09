package models

import "time"

// Message is a persisted direct message. It is never edited; only Read flips,
// and only from false to true.
type Message struct {
	ID         string    `bson:"_id" json:"id"`
	SenderID   string    `bson:"senderId" json:"senderId"`
	ReceiverID string    `bson:"receiverId" json:"receiverId"`
	Text       string    `bson:"text" json:"text"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	Read       bool      `bson:"read" json:"read"`
}

// Counterpart returns the other participant from viewer's side.
func (m Message) Counterpart(viewer string) string {
	if m.SenderID == viewer {
		return m.ReceiverID
	}
	return m.SenderID
}

// Involves reports whether userID is the sender or the receiver.
func (m Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}
