package stub

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/store"
)

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.db.ListNotifications(currentUser(c))
	if err != nil {
		s.internal(c, "list notifications", err)
		return
	}
	out := make([]backend.Notification, 0, len(list))
	for _, n := range list {
		out = append(out, notificationDTO(n))
	}
	c.JSON(http.StatusOK, out)
}

type notificationRequest struct {
	UserID  string `json:"userId"`
	Title   string `json:"title" binding:"required"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// createNotification lets development tooling raise a notification for a
// user, the caller by default.
func (s *Server) createNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "title is required")
		return
	}
	if req.UserID == "" {
		req.UserID = currentUser(c)
	}
	if _, ok := s.lookupUser(c, req.UserID); !ok {
		return
	}
	n := &store.Notification{UserID: req.UserID, Title: req.Title, Message: req.Message, Type: req.Type}
	if err := s.db.InsertNotification(n); err != nil {
		s.internal(c, "store notification", err)
		return
	}
	c.JSON(http.StatusCreated, notificationDTO(*n))
}

func (s *Server) notificationUnreadCount(c *gin.Context) {
	n, err := s.db.NotificationUnreadCount(currentUser(c))
	if err != nil {
		s.internal(c, "notification unread count", err)
		return
	}
	c.JSON(http.StatusOK, backend.CountDTO{Count: n})
}

func (s *Server) markNotificationRead(c *gin.Context) {
	err := s.db.MarkNotificationRead(currentUser(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		fail(c, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		s.internal(c, "mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) markAllNotificationsRead(c *gin.Context) {
	if err := s.db.MarkAllNotificationsRead(currentUser(c)); err != nil {
		s.internal(c, "mark all notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
