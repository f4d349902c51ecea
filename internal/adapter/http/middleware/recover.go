package middleware

import (
	"fmt"
	"net/http"

	"github.com/Temutjin2k/hust-run/internal/domain/types"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

func (app *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				err := fmt.Errorf("%v", p)
				app.log.Error(wrap.WithAction(r.Context(), types.ActionHTTPPanic), "handler panicked", err, "URL", r.URL.Path)

				w.Header().Set("Connection", "close")
				errorResponse(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
