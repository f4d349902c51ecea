package modes

import (
	"context"

	"github.com/Temutjin2k/hust-run/config"
	"github.com/Temutjin2k/hust-run/internal/service/auth"
	"github.com/Temutjin2k/hust-run/pkg/logger"
)

// Token issues a bearer token for the control API.
type Token struct {
	tokens   *auth.TokenService
	operator string
}

func NewToken(_ context.Context, cfg config.Config, log logger.Logger) (*Token, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	if err != nil {
		return nil, err
	}
	return &Token{tokens: tokens, operator: cfg.Auth.Operator}, nil
}

func (t *Token) Start(ctx context.Context) error {
	tok, err := t.tokens.Issue(ctx, t.operator)
	if err != nil {
		return err
	}
	return printJSON(tok)
}
