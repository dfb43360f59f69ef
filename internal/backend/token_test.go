package backend

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestParseToken(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"id claim", jwt.MapClaims{"id": "u1", "exp": exp.Unix()}, "u1"},
		{"user_id claim", jwt.MapClaims{"user_id": "u2"}, "u2"},
		{"sub claim", jwt.MapClaims{"sub": "u3"}, "u3"},
		{"numeric id", jwt.MapClaims{"id": 17}, "17"},
		{"id wins over sub", jwt.MapClaims{"id": "a", "sub": "b"}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseToken(sign(t, tt.claims))
			if err != nil {
				t.Fatalf("ParseToken() error: %v", err)
			}
			if c.UserID != tt.want {
				t.Errorf("UserID = %q, want %q", c.UserID, tt.want)
			}
		})
	}
}

func TestParseTokenErrors(t *testing.T) {
	if _, err := ParseToken("not-a-jwt"); err == nil {
		t.Error("expected error for garbage token")
	}
	if _, err := ParseToken(sign(t, jwt.MapClaims{"role": "admin"})); err == nil {
		t.Error("expected error for token without user id")
	}
}

func TestClaimsExpired(t *testing.T) {
	now := time.Now()
	c, err := ParseToken(sign(t, jwt.MapClaims{"id": "u1", "exp": now.Add(-time.Minute).Unix()}))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Expired(now) {
		t.Error("token with past exp should be expired")
	}
	if (Claims{UserID: "u1"}).Expired(now) {
		t.Error("token without exp should not expire")
	}
}
