package models

type PushType string

const (
	PushNewMessage   PushType = "new_message"
	PushMessagesRead PushType = "messages_read"
	PushThreadOpened PushType = "thread_opened"
)

// Envelope is the frame written to a push channel.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// ReadReceipt tells a sender that the reader has seen some of its messages.
type ReadReceipt struct {
	ReaderID   string   `json:"readerId"`
	MessageIDs []string `json:"messageIds"`
}
