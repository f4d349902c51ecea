package handler

import (
	"context"
	"net/http"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/logger"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
)

type HistoryService interface {
	History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error)
	Stats(ctx context.Context, filter models.HistoryFilter) (models.HistoryStats, error)
	Ticks(ctx context.Context, sessionID string) ([]models.Tick, error)
}

type History struct {
	history HistoryService
	l       logger.Logger
}

func NewHistory(history HistoryService, l logger.Logger) *History {
	return &History{
		history: history,
		l:       l,
	}
}

// List returns history records matching the query filter, newest first.
func (h *History) List(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionListHistory)

	filter, problems := parseFilter(r)
	if problems != nil {
		failedValidationResponse(w, problems)
		return
	}

	records, err := h.history.History(ctx, filter)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to query history", err)
		errResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"records": records, "count": len(records)}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

func (h *History) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), types.ActionHistoryStats)

	filter, problems := parseFilter(r)
	if problems != nil {
		failedValidationResponse(w, problems)
		return
	}

	stats, err := h.history.Stats(ctx, filter)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to compute stats", err)
		errResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"stats": stats}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}

func (h *History) Ticks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := wrap.WithSessionID(wrap.WithAction(r.Context(), types.ActionHistoryTicks), id)

	ticks, err := h.history.Ticks(ctx, id)
	if err != nil {
		if GetCode(err) == http.StatusInternalServerError {
			h.l.Error(wrap.ErrorCtx(ctx, err), "failed to load ticks", err)
		}
		errResponse(w, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"session_id": id, "ticks": ticks}, nil); err != nil {
		h.l.Error(ctx, "failed to write response", err)
	}
}
