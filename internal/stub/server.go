// Package stub is a local stand-in for the admin REST API. It serves the
// messaging and notification endpoints the client depends on, backed by SQLite.
package stub

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/inbox/internal/attachment"
	"github.com/matheus3301/inbox/internal/logging"
	"github.com/matheus3301/inbox/internal/store"
	"go.uber.org/zap"
)

// DefaultTokenTTL is the lifetime of tokens minted by POST /auth/token.
const DefaultTokenTTL = 24 * time.Hour

// Options configures the stub server.
type Options struct {
	// Secret signs and verifies HS256 bearer tokens.
	Secret []byte
	// TokenTTL bounds minted tokens. Zero means DefaultTokenTTL.
	TokenTTL time.Duration
	// BasePath prefixes every route, "/api" by default.
	BasePath string
	// Policy is enforced on uploads. The zero value means attachment.DefaultPolicy.
	Policy attachment.Policy
	Debug  bool
	Logger *zap.Logger
}

// Server is the stub API.
type Server struct {
	db     *store.DB
	opts   Options
	logger *zap.Logger
	router *gin.Engine
}

// New creates the stub API over db.
func New(db *store.DB, opts Options) (*Server, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("stub: signing secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.BasePath == "" {
		opts.BasePath = "/api"
	}
	if opts.Policy.MaxBytes == 0 && len(opts.Policy.Allowed) == 0 {
		opts.Policy = attachment.DefaultPolicy()
	}
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{db: db, opts: opts, logger: logging.OrNop(opts.Logger)}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length", "Content-Type", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))
	// Uploads above this spill to temp files instead of memory.
	router.MaxMultipartMemory = 32 << 20

	api := router.Group(s.opts.BasePath)
	api.POST("/auth/token", s.issueToken)

	authed := api.Group("", s.authenticate)

	messages := authed.Group("/messages")
	messages.GET("/users", s.listUsers)
	messages.GET("/unread-count", s.unreadCount)
	messages.GET("/unread-by-user", s.unreadByUser)
	messages.GET("/conversation/:userId", s.conversation)
	messages.POST("", s.sendMessage)
	messages.GET("/:messageId/attachment/:attachmentId", s.downloadAttachment)

	notifications := authed.Group("/notifications")
	notifications.GET("", s.listNotifications)
	notifications.POST("", s.createNotification)
	notifications.GET("/unread-count", s.notificationUnreadCount)
	notifications.PUT("/read-all", s.markAllNotificationsRead)
	notifications.PUT("/:id/read", s.markNotificationRead)

	return router
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("user_id", c.GetString(userIDKey)),
		)
	}
}

// fail writes the error body the client reads: {"error": "..."}.
func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// internal logs err and answers 500 without leaking details.
func (s *Server) internal(c *gin.Context, what string, err error) {
	s.logger.Error(what, zap.Error(err))
	fail(c, http.StatusInternalServerError, "internal error")
}
