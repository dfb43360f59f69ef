package backend

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Claims is what the client needs to know about its own bearer token.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp is in the past. Tokens without exp never expire.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseToken reads the claims of raw without verifying its signature; the API
// verifies it on every request. The user id is taken from "id", "user_id" or "sub".
func ParseToken(raw string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	var out Claims
	for _, name := range []string{"id", "user_id", "sub"} {
		if id := claimString(claims[name]); id != "" {
			out.UserID = id
			break
		}
	}
	if out.UserID == "" {
		return Claims{}, errors.New("parse token: no user id claim")
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return out, nil
}

func claimString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return ""
	}
}
