package handler

import (
	"net/http"
	"time"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

// SessionLister lists sessions known to the runner.
type SessionLister interface {
	Sessions() []models.SessionStatus
}

type Health struct {
	serviceName string
	started     time.Time
	sessions    SessionLister
	log         logger.Logger
}

func NewHealth(serviceName string, sessions SessionLister, log logger.Logger) *Health {
	return &Health{
		serviceName: serviceName,
		started:     time.Now(),
		sessions:    sessions,
		log:         log,
	}
}

// HealthCheck returns service information.
func (a *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionHealthCheck)

	info := map[string]any{
		"service-name": a.serviceName,
		"uptime":       time.Since(a.started).Round(time.Second).String(),
	}
	if a.sessions != nil {
		info["sessions"] = len(a.sessions.Sessions())
	}

	response := envelope{
		"status":      "available",
		"system_info": info,
	}

	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		a.log.Error(ctx, "healthcheck", err)
		return
	}
}
