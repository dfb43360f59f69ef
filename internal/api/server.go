package api

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/broadcast"
	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/messenger"
	"github.com/matheus3301/inbox/internal/status"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Service implements InboxServer on top of a Messenger.
type Service struct {
	sessionName string
	startedAt   time.Time
	messenger   *messenger.Messenger
	machine     *status.Machine
	hub         *broadcast.Hub
	logger      *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewService creates the gRPC service for one session.
func NewService(sessionName string, m *messenger.Messenger, machine *status.Machine, hub *broadcast.Hub, logger *zap.Logger) *Service {
	return &Service{
		sessionName: sessionName,
		startedAt:   time.Now(),
		messenger:   m,
		machine:     machine,
		hub:         hub,
		logger:      logging.OrNop(logger),
		closing:     make(chan struct{}),
	}
}

// Shutdown ends open WatchUnread streams so a graceful stop does not wait on them.
func (s *Service) Shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
}

var _ InboxServer = (*Service)(nil)

func respond(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

func (s *Service) Status(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return respond(map[string]any{
		"session":   s.sessionName,
		"state":     string(s.machine.Current()),
		"since":     formatTime(s.machine.Since()),
		"user_id":   s.messenger.Me().ID,
		"uptime_ms": float64(time.Since(s.startedAt).Milliseconds()),
		"polling":   s.hub.Running(),
		"failures":  float64(len(s.messenger.Failures())),
	})
}

func (s *Service) Unread(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return respond(snapshotValue(s.messenger.FreshUnread(ctx)))
}

func (s *Service) Users(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	users, err := s.messenger.Users(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{"users": usersValue(users, s.messenger.FreshUnread(ctx))})
}

// Open returns the merged history with a user and marks it read. The
// conversation is released again once the history has been returned.
func (s *Service) Open(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	userID := in.GetValue()
	if userID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "user id is required")
	}
	msgs, err := s.messenger.Open(ctx, userID)
	if err != nil {
		return nil, toStatus(err)
	}
	defer s.messenger.Close(userID)
	return respond(map[string]any{"messages": messagesValue(msgs)})
}

// Send queues a message. Fields: to, subject, content, files (paths readable by
// the daemon) and wait (block until the send settles).
func (s *Service) Send(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f := in.GetFields()
	var paths []string
	for _, v := range f["files"].GetListValue().GetValues() {
		paths = append(paths, v.GetStringValue())
	}
	files, unreadable := attachment.FromPaths(paths)

	ticket, err := s.messenger.Send(f["to"].GetStringValue(), f["subject"].GetStringValue(), f["content"].GetStringValue(), files)
	if err != nil {
		return nil, toStatus(err)
	}
	out := map[string]any{
		"local_id": ticket.LocalID.String(),
		"rejected": rejectionsValue(append(unreadable, ticket.Rejected...)),
		"state":    string(conversation.Pending),
		"message":  messageValue(ticket.Pending),
	}
	if !f["wait"].GetBoolValue() {
		return respond(out)
	}

	res, err := ticket.Wait(ctx)
	if err != nil {
		// The send carries on in the background.
		return respond(out)
	}
	if res.Err != nil {
		out["state"] = string(conversation.Failed)
		out["error"] = res.Err.Error()
		return respond(out)
	}
	out["state"] = string(conversation.Sent)
	out["message"] = messageValue(res.Message)
	return respond(out)
}

func (s *Service) Failures(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	fs := s.messenger.Failures()
	list := make([]any, 0, len(fs))
	for _, f := range fs {
		list = append(list, failureValue(f))
	}
	return respond(map[string]any{"failures": list})
}

func (s *Service) Retry(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	ticket, err := s.messenger.Retry(conversation.LocalID(in.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]any{
		"local_id": ticket.LocalID.String(),
		"state":    string(conversation.Pending),
		"message":  messageValue(ticket.Pending),
	})
}

func (s *Service) Download(ctx context.Context, in *structpb.Struct) (*wrapperspb.StringValue, error) {
	f := in.GetFields()
	messageID, attachmentID := f["message_id"].GetStringValue(), f["attachment_id"].GetStringValue()
	if messageID == "" || attachmentID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "message_id and attachment_id are required")
	}
	path, err := s.messenger.Download(ctx, messageID, attachmentID)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(path), nil
}

func (s *Service) Notifications(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	ns, err := s.messenger.Notifications(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	list := make([]any, 0, len(ns))
	for _, n := range ns {
		list = append(list, notificationValue(n))
	}
	return respond(map[string]any{"notifications": list})
}

// MarkNotificationsRead marks one notification read, or all when the value is empty.
func (s *Service) MarkNotificationsRead(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	snap, err := s.messenger.MarkNotificationRead(ctx, in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(snapshotValue(snap))
}

func (s *Service) Logout(_ context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.messenger.Logout(); err != nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, err.Error())
	}
	return &emptypb.Empty{}, nil
}

// WatchUnread streams every unread snapshot until the client goes away. The
// stream is one more hub subscriber; it does not add network polls.
func (s *Service) WatchUnread(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, unsub := s.messenger.Subscribe()
	defer unsub()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		case snap := <-ch:
			msg, err := structpb.NewStruct(snapshotValue(snap))
			if err != nil {
				return grpcstatus.Errorf(codes.Internal, "encode snapshot: %v", err)
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
