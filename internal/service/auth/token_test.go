package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

func newService(t *testing.T, secret string, ttl time.Duration) *TokenService {
	t.Helper()
	s, err := NewTokenService(secret, ttl, logger.NewNop())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return s
}

func TestTokenService_IssueValidate(t *testing.T) {
	s := newService(t, "top-secret", time.Hour)
	ctx := context.Background()

	tok, err := s.Issue(ctx, "ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.AccessToken == "" || tok.ExpiresAt.IsZero() {
		t.Fatalf("unexpected token %+v", tok)
	}

	claims, err := s.Validate(ctx, tok.AccessToken)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Operator != "ops" || claims.Issuer != Issuer || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenService_Expired(t *testing.T) {
	s := newService(t, "top-secret", time.Minute)
	s.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	tok, err := s.Issue(context.Background(), "ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s.now = time.Now
	if _, err := s.Validate(context.Background(), tok.AccessToken); !errors.Is(err, ErrExpToken) {
		t.Fatalf("expected ErrExpToken, got %v", err)
	}
}

func TestTokenService_WrongSecret(t *testing.T) {
	tok, err := newService(t, "one", time.Hour).Issue(context.Background(), "ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := newService(t, "two", time.Hour).Validate(context.Background(), tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	s := newService(t, "top-secret", time.Hour)

	claims := models.ControlClaims{
		Operator: "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Validate(context.Background(), unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenService_Garbage(t *testing.T) {
	s := newService(t, "top-secret", time.Hour)
	for _, in := range []string{"", "abc", "a.b.c"} {
		if _, err := s.Validate(context.Background(), in); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: expected ErrInvalidToken, got %v", in, err)
		}
	}
}

func TestNewTokenService_EmptySecret(t *testing.T) {
	if _, err := NewTokenService("", time.Hour, logger.NewNop()); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}
