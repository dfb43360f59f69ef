package outbox

import (
	"context"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/conversation"
)

// Result is the settled outcome of a send. On failure Draft carries the
// original content and accepted files.
type Result struct {
	Message conversation.Message
	Err     error
	Draft   Draft
}

// Ticket tracks one queued send.
type Ticket struct {
	Key     conversation.Key
	LocalID conversation.LocalID
	// Pending is the optimistic message appended to the store.
	Pending  conversation.Message
	Rejected []*attachment.Rejection

	draft  Draft
	done   chan struct{}
	result Result
}

func newTicket(d Draft, rejected []*attachment.Rejection) *Ticket {
	id := conversation.NewLocalID()
	key := d.Key()
	atts := make([]conversation.Attachment, 0, len(d.Files))
	for _, f := range d.Files {
		atts = append(atts, conversation.Attachment{
			ID:       conversation.NewLocalID(),
			Name:     f.Name,
			MimeType: f.MimeType,
			Size:     f.Size,
		})
	}
	return &Ticket{
		Key:     key,
		LocalID: id,
		Pending: conversation.Message{
			ID:          id,
			Key:         key,
			Sender:      d.From,
			Receiver:    d.To,
			Subject:     d.Subject,
			Content:     d.Content,
			Attachments: atts,
			CreatedAt:   time.Now(),
			State:       conversation.Pending,
		},
		Rejected: rejected,
		draft:    d,
		done:     make(chan struct{}),
	}
}

// Done is closed once the send has been reconciled or rolled back.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the send settles or ctx ends. Giving up waiting does not
// cancel the send.
func (t *Ticket) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Ticket) settle(r Result) {
	t.result = r
	close(t.done)
}
