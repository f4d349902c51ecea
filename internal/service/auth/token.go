package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

const (
	Issuer     = "hust-run"
	DefaultTTL = 24 * time.Hour
)

// TokenService issues and validates HS256 bearer tokens for the control API.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	log    logger.Logger
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration, log logger.Logger) (*TokenService, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}, nil
}

// Issue signs a token for operator.
func (s *TokenService) Issue(ctx context.Context, operator string) (models.Token, error) {
	ctx = wrap.WithAction(ctx, types.ActionIssueToken)

	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.ttl)

	claims := models.ControlClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   operator,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.Token{}, wrap.Error(ctx, fmt.Errorf("sign token: %w", err))
	}

	s.log.Debug(ctx, "control token issued", "operator", operator, "expires_at", expiresAt)
	return models.Token{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// Validate parses token and returns its claims. Expired tokens yield ErrExpToken,
// everything else ErrInvalidToken.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.ControlClaims, error) {
	ctx = wrap.WithAction(ctx, types.ActionValidateToken)

	claims := &models.ControlClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, wrap.Error(ctx, ErrExpToken)
		}
		return nil, wrap.Error(ctx, fmt.Errorf("%w: %v", ErrInvalidToken, err))
	}
	if !parsed.Valid || claims.Operator == "" {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	return claims, nil
}
