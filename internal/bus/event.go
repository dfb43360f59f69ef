package bus

import "time"

// Event kinds published by the sync core. Subscribers filter by prefix, so
// "message." receives every message lifecycle event.
const (
	KindSessionStatus       = "session.status_changed"
	KindConversationChanged = "conversation.changed"
	KindMessagePending      = "message.pending"
	KindMessageAck          = "message.send_ack"
	KindMessageFailed       = "message.send_failed"
	KindUploadProgress      = "message.upload_progress"
	KindUnreadUpdated       = "unread.updated"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
