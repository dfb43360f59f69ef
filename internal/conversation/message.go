// Package conversation holds the ordered message list of open conversations and
// reconciles optimistic (locally identified) messages with server-confirmed ones.
package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const localPrefix = "local-"

// Key identifies a two-party thread. It is order independent:
// NewKey(a, b) == NewKey(b, a).
type Key struct {
	lo, hi string
}

// NewKey builds the key for the pair (x, y).
func NewKey(x, y string) Key {
	if x > y {
		x, y = y, x
	}
	return Key{lo: x, hi: y}
}

// Has reports whether userID is one of the participants.
func (k Key) Has(userID string) bool {
	return userID != "" && (k.lo == userID || k.hi == userID)
}

// Other returns the participant that is not me.
func (k Key) Other(me string) string {
	if k.lo == me {
		return k.hi
	}
	return k.lo
}

// IsZero reports whether the key was never built.
func (k Key) IsZero() bool {
	return k.lo == "" && k.hi == ""
}

func (k Key) String() string {
	return k.lo + "|" + k.hi
}

// Identity is either a LocalID (not yet persisted) or a ServerID.
// The two namespaces never mix: reconciliation swaps one variant for the other.
type Identity interface {
	String() string
	isIdentity()
}

// LocalID is a client-generated identifier for a pending message or attachment.
type LocalID string

// ServerID is the stable identifier assigned by the backend.
type ServerID string

func (id LocalID) String() string  { return string(id) }
func (id ServerID) String() string { return string(id) }
func (LocalID) isIdentity()         {}
func (ServerID) isIdentity()        {}

// NewLocalID returns a fresh local identifier.
func NewLocalID() LocalID {
	return LocalID(localPrefix + uuid.NewString())
}

// IsLocal reports whether raw was produced by NewLocalID.
func IsLocal(raw string) bool {
	return strings.HasPrefix(raw, localPrefix)
}

// ParseIdentity maps a raw id back into its variant.
func ParseIdentity(raw string) Identity {
	if IsLocal(raw) {
		return LocalID(raw)
	}
	return ServerID(raw)
}

// ref is the map key used for uniqueness; the prefix keeps namespaces apart.
func ref(id Identity) string {
	switch v := id.(type) {
	case LocalID:
		return "l:" + string(v)
	case ServerID:
		return "s:" + string(v)
	default:
		return ""
	}
}

// DeliveryState is the lifecycle of an outgoing message.
type DeliveryState string

const (
	Pending DeliveryState = "pending"
	Sent    DeliveryState = "sent"
	Failed  DeliveryState = "failed"
)

// User is the subset of a user record needed to render a message.
type User struct {
	ID    string
	Name  string
	Email string
}

// DisplayName falls back to email, then id.
func (u User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Attachment describes a file carried by a message.
type Attachment struct {
	ID       Identity
	Name     string
	MimeType string
	Size     int64
}

// Message is one entry of a conversation.
type Message struct {
	ID          Identity
	Key         Key
	Sender      User
	Receiver    User
	Subject     string
	Content     string
	Attachments []Attachment
	CreatedAt   time.Time
	State       DeliveryState
	// IsRead is owned by the server and never set optimistically.
	IsRead bool
}

// LocalID returns the local identity if the message has not been confirmed yet.
func (m Message) LocalID() (LocalID, bool) {
	id, ok := m.ID.(LocalID)
	return id, ok
}

// ServerID returns the server identity if the message is confirmed.
func (m Message) ServerID() (ServerID, bool) {
	id, ok := m.ID.(ServerID)
	return id, ok
}

// IsPending reports whether the message still awaits server confirmation.
func (m Message) IsPending() bool {
	_, ok := m.LocalID()
	return ok
}

func (m Message) clone() Message {
	m.Attachments = append([]Attachment(nil), m.Attachments...)
	return m
}
