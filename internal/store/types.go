package store

// User is a messaging participant.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt int64
}

// Message is a stored message. Timestamps are Unix milliseconds.
type Message struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Subject     string
	Content     string
	IsRead      bool
	CreatedAt   int64
	Attachments []Attachment
}

// Attachment is stored file metadata. Data is only loaded by Attachment.
type Attachment struct {
	ID           string
	MessageID    string
	OriginalName string
	MimeType     string
	Size         int64
	Data         []byte
}

// NewAttachment is an upload to store alongside a new message.
type NewAttachment struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

// UnreadEntry counts unread messages from one sender.
type UnreadEntry struct {
	SenderID string
	Count    int
}

// Notification is a generic notification addressed to one user.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Type      string
	IsRead    bool
	CreatedAt int64
}
