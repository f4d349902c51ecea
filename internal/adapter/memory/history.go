package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

// HistoryStore keeps session records and ticks in process memory.
type HistoryStore struct {
	mu      sync.RWMutex
	records map[string]models.HistoryRecord
	order   []string
	ticks   map[string][]models.Tick
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		records: make(map[string]models.HistoryRecord),
		ticks:   make(map[string][]models.Tick),
	}
}

func (s *HistoryStore) Begin(_ context.Context, rec models.HistoryRecord) error {
	const op = "HistoryStore.Begin"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.SessionID]; ok {
		return fmt.Errorf("%s: session %s already exists", op, rec.SessionID)
	}
	rec.Finalized = false
	s.records[rec.SessionID] = rec
	s.order = append(s.order, rec.SessionID)
	return nil
}

func (s *HistoryStore) AppendTicks(_ context.Context, sessionID string, ticks []models.Tick) error {
	const op = "HistoryStore.AppendTicks"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return fmt.Errorf("%s: %w", op, types.ErrSessionNotFound)
	}
	if rec.Finalized {
		return fmt.Errorf("%s: %w", op, types.ErrDuplicateFinalize)
	}
	s.ticks[sessionID] = append(s.ticks[sessionID], ticks...)
	return nil
}

// Finalize completes a record once. A second call keeps the first result.
func (s *HistoryStore) Finalize(_ context.Context, rec models.HistoryRecord) error {
	const op = "HistoryStore.Finalize"

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.records[rec.SessionID]
	if !ok {
		return fmt.Errorf("%s: %w", op, types.ErrSessionNotFound)
	}
	if cur.Finalized {
		return fmt.Errorf("%s: %w", op, types.ErrDuplicateFinalize)
	}

	rec.StartedAt = cur.StartedAt
	rec.Finalized = true
	s.records[rec.SessionID] = rec
	return nil
}

// Query returns matching records, newest first.
func (s *HistoryStore) Query(_ context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryRecord, 0)
	for _, id := range slices.Backward(s.order) {
		rec := s.records[id]
		if !filter.Match(rec) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *HistoryStore) Ticks(_ context.Context, sessionID string) ([]models.Tick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.records[sessionID]; !ok {
		return nil, fmt.Errorf("HistoryStore.Ticks: %w", types.ErrSessionNotFound)
	}
	return slices.Clone(s.ticks[sessionID]), nil
}

func (s *HistoryStore) Unfinalized(_ context.Context) ([]models.HistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.HistoryRecord
	for _, id := range s.order {
		if rec := s.records[id]; !rec.Finalized {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *HistoryStore) Stats(ctx context.Context, filter models.HistoryFilter) (models.HistoryStats, error) {
	filter.Limit = 0
	records, err := s.Query(ctx, filter)
	if err != nil {
		return models.HistoryStats{}, err
	}
	return models.Aggregate(records), nil
}
