package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/matheus3301/inbox/internal/conversation"
	"github.com/matheus3301/inbox/internal/logging"
	"go.uber.org/zap"
)

// Multipart field names expected by POST /messages.
const (
	FieldReceiver    = "receiver"
	FieldSubject     = "subject"
	FieldContent     = "content"
	FieldAttachments = "attachments"
)

// Poster submits an encoded message body and returns the persisted message.
type Poster interface {
	PostMessage(ctx context.Context, contentType string, body io.Reader) (conversation.Message, error)
}

// Fetcher streams a single stored attachment.
type Fetcher interface {
	FetchAttachment(ctx context.Context, messageID, attachmentID string) (body io.ReadCloser, filename string, err error)
}

// Envelope carries the text fields sent alongside the files.
type Envelope struct {
	Receiver string
	Subject  string
	Content  string
}

// ProgressFunc observes upload progress for one file. total is the declared size.
type ProgressFunc func(file string, sent, total int64)

// Transfer moves attachment payloads between the client and the API.
type Transfer struct {
	policy  Policy
	poster  Poster
	fetcher Fetcher
	logger  *zap.Logger
}

// NewTransfer creates a transfer bound to the given policy and transport.
func NewTransfer(policy Policy, poster Poster, fetcher Fetcher, logger *zap.Logger) *Transfer {
	return &Transfer{
		policy:  policy,
		poster:  poster,
		fetcher: fetcher,
		logger:  logging.OrNop(logger),
	}
}

// Policy returns the validation policy in force.
func (t *Transfer) Policy() Policy {
	return t.policy
}

// Upload sends env and files as one multipart request, files in the given order.
// Files failing the policy are refused before any byte is sent. The body is
// streamed; a transport failure leaves nothing to clean up client-side.
func (t *Transfer) Upload(ctx context.Context, files []File, env Envelope, progress ProgressFunc) (conversation.Message, error) {
	for _, f := range files {
		if err := t.policy.Validate(f); err != nil {
			return conversation.Message{}, err
		}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBody(mw, files, env, progress))
	}()

	msg, err := t.poster.PostMessage(ctx, mw.FormDataContentType(), pr)
	// Unblocks the writer if the transport gave up before draining the body.
	_ = pr.CloseWithError(errors.New("upload aborted"))
	if err != nil {
		return conversation.Message{}, err
	}
	if len(msg.Attachments) != len(files) {
		t.logger.Warn("server recorded a different attachment count",
			zap.Int("sent", len(files)), zap.Int("recorded", len(msg.Attachments)))
	}
	return msg, nil
}

func writeBody(mw *multipart.Writer, files []File, env Envelope, progress ProgressFunc) error {
	fields := []struct{ name, value string }{
		{FieldReceiver, env.Receiver},
		{FieldSubject, env.Subject},
		{FieldContent, env.Content},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := writeFile(mw, f, progress); err != nil {
			return fmt.Errorf("attach %s: %w", f.Name, err)
		}
	}
	return mw.Close()
}

func writeFile(mw *multipart.Writer, f File, progress ProgressFunc) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		FieldAttachments, quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", f.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	rc, err := f.Source.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	var src io.Reader = rc
	if progress != nil {
		src = &countingReader{r: rc, onRead: func(n int64) { progress(f.Name, n, f.Size) }}
	}
	_, err = io.Copy(part, src)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"", "\r", "", "\n", "")

type countingReader struct {
	r      io.Reader
	n      int64
	onRead func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.n += int64(n)
		c.onRead(c.n)
	}
	return n, err
}

// Download saves one attachment into dir and returns the final path. The body is
// written to a temporary file first, which is released on every path, error or not.
func (t *Transfer) Download(ctx context.Context, messageID, attachmentID, dir string) (path string, err error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	body, filename, err := t.fetcher.FetchAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return "", fmt.Errorf("download %s: %w", attachmentID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	final := uniquePath(dir, safeName(filename, attachmentID))
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("save %s: %w", final, err)
	}
	t.logger.Info("attachment saved",
		zap.String("message_id", messageID), zap.String("attachment_id", attachmentID), zap.String("path", final))
	return final, nil
}

func safeName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" || strings.HasPrefix(name, ".") {
		return fallback
	}
	return name
}

func uniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
}
