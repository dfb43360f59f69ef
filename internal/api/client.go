package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the Inbox service of a running daemon.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, fullMethod(method), in, out)
}

func (c *Client) structCall(ctx context.Context, method string, in any) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.call(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.structCall(ctx, "Status", &emptypb.Empty{})
}

func (c *Client) Unread(ctx context.Context) (map[string]any, error) {
	return c.structCall(ctx, "Unread", &emptypb.Empty{})
}

func (c *Client) Users(ctx context.Context) (map[string]any, error) {
	return c.structCall(ctx, "Users", &emptypb.Empty{})
}

func (c *Client) Open(ctx context.Context, userID string) (map[string]any, error) {
	return c.structCall(ctx, "Open", wrapperspb.String(userID))
}

// SendRequest is the client-side form of a Send call.
type SendRequest struct {
	To      string
	Subject string
	Content string
	Files   []string
	Wait    bool
}

func (c *Client) Send(ctx context.Context, r SendRequest) (map[string]any, error) {
	files := make([]any, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, f)
	}
	in, err := structpb.NewStruct(map[string]any{
		"to":      r.To,
		"subject": r.Subject,
		"content": r.Content,
		"files":   files,
		"wait":    r.Wait,
	})
	if err != nil {
		return nil, err
	}
	return c.structCall(ctx, "Send", in)
}

func (c *Client) Failures(ctx context.Context) (map[string]any, error) {
	return c.structCall(ctx, "Failures", &emptypb.Empty{})
}

func (c *Client) Retry(ctx context.Context, localID string) (map[string]any, error) {
	return c.structCall(ctx, "Retry", wrapperspb.String(localID))
}

// Download saves an attachment on the daemon's host and returns its path.
func (c *Client) Download(ctx context.Context, messageID, attachmentID string) (string, error) {
	in, err := structpb.NewStruct(map[string]any{"message_id": messageID, "attachment_id": attachmentID})
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.call(ctx, "Download", in, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

func (c *Client) Notifications(ctx context.Context) (map[string]any, error) {
	return c.structCall(ctx, "Notifications", &emptypb.Empty{})
}

// MarkNotificationsRead marks one notification read, or all of them when id is empty.
func (c *Client) MarkNotificationsRead(ctx context.Context, id string) (map[string]any, error) {
	return c.structCall(ctx, "MarkNotificationsRead", wrapperspb.String(id))
}

func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, "Logout", &emptypb.Empty{}, new(emptypb.Empty))
}

// WatchUnread calls fn with every unread snapshot until ctx ends or fn returns
// an error.
func (c *Client) WatchUnread(ctx context.Context, fn func(map[string]any) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchUnread"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		snap := new(structpb.Struct)
		if err := stream.RecvMsg(snap); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(snap.AsMap()); err != nil {
			return err
		}
	}
}
