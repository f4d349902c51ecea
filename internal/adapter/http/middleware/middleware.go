package middleware

import (
	"context"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

type (
	TokenValidator interface {
		Validate(ctx context.Context, token string) (*models.ControlClaims, error)
	}

	Middleware struct {
		auth TokenValidator
		log  logger.Logger
	}
)

// NewMiddleware builds the middleware set. A nil auth disables token checks.
func NewMiddleware(auth TokenValidator, log logger.Logger) *Middleware {
	return &Middleware{
		auth: auth,
		log:  log,
	}
}
