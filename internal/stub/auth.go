package stub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/matheus3301/inbox/internal/backend"
	"github.com/matheus3301/inbox/internal/store"
)

const userIDKey = "inbox.user_id"

// Claims are carried by stub tokens. The client reads the "id" claim.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for userID.
func (s *Server) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
}

// verify checks the signature and expiry of raw and returns its user id.
func (s *Server) verify(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.opts.Secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", errors.New("invalid token")
	}
	return claims.UserID, nil
}

func bearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authenticate rejects requests without a valid bearer token for a known user.
func (s *Server) authenticate(c *gin.Context) {
	raw := bearer(c.GetHeader("Authorization"))
	if raw == "" {
		fail(c, http.StatusUnauthorized, "missing bearer token")
		return
	}
	userID, err := s.verify(raw)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid token")
		return
	}
	if _, err := s.db.GetUser(userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fail(c, http.StatusUnauthorized, "unknown user")
			return
		}
		s.internal(c, "look up token user", err)
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

type tokenRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tokenResponse struct {
	Token string          `json:"token"`
	User  backend.UserDTO `json:"user"`
}

// issueToken registers (or updates) a user and mints a token for it. It exists
// for local development only; the real API has its own login.
func (s *Server) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.db.UpsertUser(&store.User{ID: req.ID, Name: req.Name, Email: req.Email}); err != nil {
		s.internal(c, "upsert user", err)
		return
	}
	u, err := s.db.GetUser(req.ID)
	if err != nil {
		s.internal(c, "load user", err)
		return
	}
	token, err := s.IssueToken(u.ID)
	if err != nil {
		s.internal(c, "sign token", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token, User: userDTO(*u)})
}
