// Package outbox sends messages optimistically: the pending message is shown at
// once and reconciled with the server's record when the request settles.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/bus"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrEmptyMessage is returned for a draft with no text and no sendable file.
	ErrEmptyMessage = errors.New("message has no content and no attachments")
	// ErrNoRecipient is returned for a draft without sender or receiver.
	ErrNoRecipient = errors.New("message has no sender or receiver")
	// ErrStopped is returned by Send after Stop.
	ErrStopped = errors.New("outbox stopped")
	// ErrUnknownFailure is returned by Retry for an id that has no recorded failure.
	ErrUnknownFailure = errors.New("no failed send with that id")
)

// Uploader submits one message with its files as a single request.
type Uploader interface {
	Upload(ctx context.Context, files []attachment.File, env attachment.Envelope, progress attachment.ProgressFunc) (conversation.Message, error)
}

// Refresher is poked after every settled send.
type Refresher interface {
	RefreshNow()
}

// Draft is what the user composed. It is kept intact on failure for retry.
type Draft struct {
	From    conversation.User
	To      conversation.User
	Subject string
	Content string
	Files   []attachment.File
}

// Key returns the conversation the draft belongs to.
func (d Draft) Key() conversation.Key {
	return conversation.NewKey(d.From.ID, d.To.ID)
}

// Failure is a send that was rolled back. Draft holds the accepted files.
type Failure struct {
	Key     conversation.Key
	LocalID conversation.LocalID
	Draft   Draft
	Err     error
	At      time.Time
}

// Ack is the payload of bus.KindMessageAck.
type Ack struct {
	Key      conversation.Key
	LocalID  conversation.LocalID
	ServerID conversation.ServerID
}

// Progress is the payload of bus.KindUploadProgress.
type Progress struct {
	Key     conversation.Key
	LocalID conversation.LocalID
	File    string
	Sent    int64
	Total   int64
}

// Pipeline serializes sends per conversation and reconciles them into the store.
type Pipeline struct {
	store    *conversation.Store
	uploader Uploader
	policy   attachment.Policy
	refresh  Refresher
	bus      *bus.Bus
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	stopped  bool
	lanes    map[conversation.Key]*lane
	failures map[conversation.LocalID]Failure
}

// lane is the FIFO of one conversation. A lane's goroutine exits when it drains.
type lane struct {
	jobs []*Ticket
}

// NewPipeline creates a pipeline. Sends run on the pipeline's own context, so a
// caller navigating away never cancels them; only Stop does.
func NewPipeline(store *conversation.Store, uploader Uploader, policy attachment.Policy, refresh Refresher, b *bus.Bus, logger *zap.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:    store,
		uploader: uploader,
		policy:   policy,
		refresh:  refresh,
		bus:      b,
		logger:   logging.OrNop(logger),
		ctx:      ctx,
		cancel:   cancel,
		lanes:    make(map[conversation.Key]*lane),
		failures: make(map[conversation.LocalID]Failure),
	}
}

// Send validates d, appends the pending message to the store and queues the
// submission behind earlier sends of the same conversation. Files refused by the
// policy are reported on the ticket and left out; they never block the rest.
func (p *Pipeline) Send(d Draft) (*Ticket, error) {
	if d.From.ID == "" || d.To.ID == "" {
		return nil, ErrNoRecipient
	}
	accepted, rejected := p.policy.Screen(d.Files)
	if strings.TrimSpace(d.Content) == "" && len(accepted) == 0 {
		errs := []error{ErrEmptyMessage}
		for _, r := range rejected {
			errs = append(errs, r)
		}
		return nil, errors.Join(errs...)
	}
	d.Files = accepted

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrStopped
	}
	t := newTicket(d, rejected)
	p.store.Append(t.Pending)
	p.enqueueLocked(t)
	p.mu.Unlock()

	p.bus.Emit(bus.KindMessagePending, t.Pending)
	p.logger.Info("message queued",
		zap.String("local_id", t.LocalID.String()),
		zap.String("receiver", d.To.ID),
		zap.Int("attachments", len(accepted)),
		zap.Int("rejected", len(rejected)),
	)
	return t, nil
}

// Retry resends a rolled-back draft under a new local id.
func (p *Pipeline) Retry(id conversation.LocalID) (*Ticket, error) {
	p.mu.Lock()
	f, ok := p.failures[id]
	delete(p.failures, id)
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("retry %s: %w", id, ErrUnknownFailure)
	}
	t, err := p.Send(f.Draft)
	if err != nil {
		// Not resubmitted: keep the draft retryable.
		p.mu.Lock()
		p.failures[id] = f
		p.mu.Unlock()
		return nil, fmt.Errorf("retry %s: %w", id, err)
	}
	return t, nil
}

// Failures returns rolled-back sends, oldest first.
func (p *Pipeline) Failures() []Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Failure, 0, len(p.failures))
	for _, f := range p.failures {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Failure) int { return a.At.Compare(b.At) })
	return out
}

// Dismiss forgets a failure without retrying it.
func (p *Pipeline) Dismiss(id conversation.LocalID) {
	p.mu.Lock()
	delete(p.failures, id)
	p.mu.Unlock()
}

// Stop cancels queued and in-flight sends and waits for the lanes to drain.
// Cancelled sends are rolled back like any other failure.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) enqueueLocked(t *Ticket) {
	l, ok := p.lanes[t.Key]
	if !ok {
		l = &lane{}
		p.lanes[t.Key] = l
		p.wg.Add(1)
		go p.drain(t.Key, l)
	}
	l.jobs = append(l.jobs, t)
}

func (p *Pipeline) drain(key conversation.Key, l *lane) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(l.jobs) == 0 {
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		t := l.jobs[0]
		l.jobs = l.jobs[1:]
		p.mu.Unlock()

		p.submit(t)
	}
}

func (p *Pipeline) submit(t *Ticket) {
	d := t.draft
	env := attachment.Envelope{Receiver: d.To.ID, Subject: d.Subject, Content: d.Content}
	progress := func(file string, sent, total int64) {
		p.bus.Emit(bus.KindUploadProgress, Progress{Key: t.Key, LocalID: t.LocalID, File: file, Sent: sent, Total: total})
	}

	msg, err := p.uploader.Upload(p.ctx, d.Files, env, progress)
	if err != nil {
		p.fail(t, err)
	} else {
		p.confirm(t, msg)
	}
	if p.refresh != nil {
		p.refresh.RefreshNow()
	}
}

func (p *Pipeline) confirm(t *Ticket, msg conversation.Message) {
	// The response's id, timestamp and attachment ids are authoritative.
	msg.Key = t.Key
	msg.State = conversation.Sent
	p.store.Replace(t.Key, t.LocalID, msg)

	serverID, _ := msg.ServerID()
	p.logger.Info("message sent",
		zap.String("local_id", t.LocalID.String()),
		zap.String("server_id", string(serverID)),
	)
	p.bus.Emit(bus.KindMessageAck, Ack{Key: t.Key, LocalID: t.LocalID, ServerID: serverID})
	t.settle(Result{Message: msg})
}

func (p *Pipeline) fail(t *Ticket, err error) {
	p.store.Remove(t.Key, t.LocalID)
	f := Failure{Key: t.Key, LocalID: t.LocalID, Draft: t.draft, Err: err, At: time.Now()}

	p.mu.Lock()
	p.failures[t.LocalID] = f
	p.mu.Unlock()

	p.logger.Warn("message send failed",
		zap.String("local_id", t.LocalID.String()),
		zap.Error(err),
	)
	p.bus.Emit(bus.KindMessageFailed, f)
	t.settle(Result{Err: err, Draft: t.draft})
}
