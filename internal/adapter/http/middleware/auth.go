package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

type ctxKeyClaims struct{}

var publicPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// ClaimsFromContext returns the claims of the authenticated operator.
func ClaimsFromContext(ctx context.Context) (*models.ControlClaims, bool) {
	c, ok := ctx.Value(ctxKeyClaims{}).(*models.ControlClaims)
	return c, ok
}

// Auth requires a valid bearer token on every path except the public ones.
// Websocket clients may pass the token in the "token" query parameter.
func (h *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		token, err := tokenFromRequest(r)
		if err != nil {
			errorResponse(w, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := h.auth.Validate(ctx, token)
		if err != nil {
			h.log.Warn(wrap.ErrorCtx(ctx, err), "failed to authenticate operator", "error", err.Error())
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, ctxKeyClaims{}, claims)))
	})
}

func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return extractBearerToken(header)
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		if t := r.URL.Query().Get("token"); t != "" {
			return t, nil
		}
	}
	return "", errors.New("authorization required")
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}
