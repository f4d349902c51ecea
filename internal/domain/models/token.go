package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ControlClaims authorize calls to the control API.
type ControlClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}
