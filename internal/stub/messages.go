package stub

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

func (s *Server) listUsers(c *gin.Context) {
	users, err := s.db.ListUsersExcept(currentUser(c))
	if err != nil {
		s.internal(c, "list users", err)
		return
	}
	out := make([]backend.UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, userDTO(u))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) unreadCount(c *gin.Context) {
	n, err := s.db.UnreadCount(currentUser(c))
	if err != nil {
		s.internal(c, "unread count", err)
		return
	}
	c.JSON(http.StatusOK, backend.CountDTO{Count: n})
}

func (s *Server) unreadByUser(c *gin.Context) {
	entries, err := s.db.UnreadByUser(currentUser(c))
	if err != nil {
		s.internal(c, "unread by user", err)
		return
	}
	out := make([]backend.UnreadEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, backend.UnreadEntry{ID: e.SenderID, Count: e.Count})
	}
	c.JSON(http.StatusOK, out)
}

// conversation returns the full history with :userId. Fetching it marks the
// counterpart's messages to the caller read.
func (s *Server) conversation(c *gin.Context) {
	me := currentUser(c)
	other, ok := s.lookupUser(c, c.Param("userId"))
	if !ok {
		return
	}
	self, ok := s.lookupUser(c, me)
	if !ok {
		return
	}
	marked, err := s.db.MarkConversationRead(me, other.ID)
	if err != nil {
		s.internal(c, "mark conversation read", err)
		return
	}
	msgs, err := s.db.Conversation(me, other.ID)
	if err != nil {
		s.internal(c, "load conversation", err)
		return
	}
	if marked > 0 {
		s.logger.Debug("conversation marked read",
			zap.String("user_id", me), zap.String("counterpart", other.ID), zap.Int64("messages", marked))
	}

	users := map[string]store.User{self.ID: self, other.ID: other}
	out := make([]backend.MessageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO(m, users))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) lookupUser(c *gin.Context, id string) (store.User, bool) {
	u, err := s.db.GetUser(id)
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, fmt.Sprintf("user %q not found", id))
		return store.User{}, false
	}
	if err != nil {
		s.internal(c, "look up user", err)
		return store.User{}, false
	}
	return *u, true
}

// sendMessage accepts a multipart message. Every attachment is checked before
// anything is stored, and the message and its files are saved together.
func (s *Server) sendMessage(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		fail(c, http.StatusBadRequest, "expected a multipart/form-data body")
		return
	}
	receiverID := formValue(form, attachment.FieldReceiver)
	if receiverID == "" {
		fail(c, http.StatusBadRequest, "receiver is required")
		return
	}
	me := currentUser(c)
	if receiverID == me {
		fail(c, http.StatusBadRequest, "cannot send a message to yourself")
		return
	}
	receiver, ok := s.lookupUser(c, receiverID)
	if !ok {
		return
	}
	sender, ok := s.lookupUser(c, me)
	if !ok {
		return
	}

	files := make([]store.NewAttachment, 0, len(form.File[attachment.FieldAttachments]))
	for _, fh := range form.File[attachment.FieldAttachments] {
		f, err := s.readUpload(fh)
		if err != nil {
			var rej *attachment.Rejection
			if errors.As(err, &rej) {
				fail(c, http.StatusBadRequest, rej.Error())
				return
			}
			s.internal(c, "read upload", err)
			return
		}
		files = append(files, f)
	}

	content := formValue(form, attachment.FieldContent)
	if strings.TrimSpace(content) == "" && len(files) == 0 {
		fail(c, http.StatusBadRequest, "message has no content and no attachments")
		return
	}

	m := &store.Message{
		SenderID:   me,
		ReceiverID: receiver.ID,
		Subject:    formValue(form, attachment.FieldSubject),
		Content:    content,
	}
	if err := s.db.InsertMessage(m, files); err != nil {
		s.internal(c, "store message", err)
		return
	}
	s.logger.Info("message stored",
		zap.String("message_id", m.ID),
		zap.String("sender", me),
		zap.String("receiver", receiver.ID),
		zap.Int("attachments", len(files)),
	)
	c.JSON(http.StatusCreated, messageDTO(*m, map[string]store.User{sender.ID: sender, receiver.ID: receiver}))
}

func formValue(form *multipart.Form, name string) string {
	if v := form.Value[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// readUpload loads one part and applies the upload policy. The declared part
// type is used; a missing or generic type is sniffed from content.
func (s *Server) readUpload(fh *multipart.FileHeader) (store.NewAttachment, error) {
	policy := s.opts.Policy
	if policy.MaxBytes > 0 && fh.Size > policy.MaxBytes {
		return store.NewAttachment{}, policy.Validate(attachment.File{Name: fh.Filename, Size: fh.Size})
	}
	src, err := fh.Open()
	if err != nil {
		return store.NewAttachment{}, err
	}
	defer func() { _ = src.Close() }()
	data, err := io.ReadAll(src)
	if err != nil {
		return store.NewAttachment{}, err
	}

	mt := fh.Header.Get("Content-Type")
	if mt == "" || strings.HasPrefix(mt, "application/octet-stream") {
		mt = attachment.FromBytes(fh.Filename, data).MimeType
	}
	if err := policy.Validate(attachment.File{Name: fh.Filename, MimeType: mt, Size: int64(len(data))}); err != nil {
		return store.NewAttachment{}, err
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}
	return store.NewAttachment{OriginalName: fh.Filename, MimeType: mt, Data: data}, nil
}

func (s *Server) downloadAttachment(c *gin.Context) {
	a, err := s.db.Attachment(currentUser(c), c.Param("messageId"), c.Param("attachmentId"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "attachment not found")
		return
	}
	if err != nil {
		s.internal(c, "load attachment", err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.OriginalName}))
	c.Data(http.StatusOK, a.MimeType, a.Data)
}
