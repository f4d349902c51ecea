package handler

import (
	"context"
	"net/http"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

type SessionService interface {
	Status(id string) (models.SessionStatus, error)
	Sessions() []models.SessionStatus
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
}

type Session struct {
	sessions SessionService
	l        logger.Logger
}

func NewSession(sessions SessionService, l logger.Logger) *Session {
	return &Session{
		sessions: sessions,
		l:        l,
	}
}

// List returns a snapshot of every tracked session.
func (h *Session) List(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionListSessions)

	if err := writeJSON(w, http.StatusOK, envelope{"sessions": h.sessions.Sessions()}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

func (h *Session) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := wrap.WithSessionID(wrap.WithAction(r.Context(), types.ActionGetSession), id)

	status, err := h.sessions.Status(id)
	if err != nil {
		errResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"session": status, "progress": status.Progress()}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

func (h *Session) Pause(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, types.ActionSessionPause, h.sessions.Pause)
}

func (h *Session) Resume(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, types.ActionSessionResume, h.sessions.Resume)
}

func (h *Session) Stop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, types.ActionSessionStop, h.sessions.Stop)
}

// command runs fn and answers with the session state that follows it.
func (h *Session) command(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, string) error) {
	id, err := pathID(r, "id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := wrap.WithSessionID(wrap.WithAction(r.Context(), action), id)

	if err := fn(ctx, id); err != nil {
		if GetCode(err) == http.StatusInternalServerError {
			h.l.Error(wrap.ErrorCtx(ctx, err), "session command failed", err)
		}
		errResponse(w, err)
		return
	}

	status, err := h.sessions.Status(id)
	if err != nil {
		errResponse(w, err)
		return
	}

	h.l.Info(ctx, "session command accepted", "state", status.State.String())
	if err := writeJSON(w, http.StatusAccepted, envelope{"session_id": id, "state": status.State}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}
