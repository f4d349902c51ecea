package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
)

var recordColumns = []string{
	"session_id", "route_id", "route_name", "device_id", "started_at", "ended_at", "status",
	"waypoints_total", "waypoints_sent", "waypoints_skipped", "distance_covered", "error_count",
	"error", "start_address", "finalized",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestHistoryRepo_Begin(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	started := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO run_sessions`).
		WithArgs("s1", "r1", "east lake", "emulator-5554", started, "RUNNING", 120, "Luoyu Road 1037").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Begin(context.Background(), models.HistoryRecord{
		SessionID:      "s1",
		RouteID:        "r1",
		RouteName:      "east lake",
		DeviceID:       "emulator-5554",
		StartedAt:      started,
		Status:         types.StateRunning,
		WaypointsTotal: 120,
		StartAddress:   "Luoyu Road 1037",
	})
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Begin_Duplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectExec(`INSERT INTO run_sessions`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Begin(context.Background(), models.HistoryRecord{SessionID: "s1", Status: types.StateRunning})
	if err == nil {
		t.Fatal("expected error for duplicate session")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_AppendTicks(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT finalized FROM run_sessions WHERE session_id = \$1 FOR SHARE`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"finalized"}).AddRow(false))
	mock.ExpectCopyFrom(pgx.Identifier{"run_ticks"}, tickColumns).WillReturnResult(2)
	mock.ExpectCommit()

	err := repo.AppendTicks(context.Background(), "s1", []models.Tick{
		{SessionID: "s1", Index: 0, Latitude: 30.51, Longitude: 114.41, SentAt: now},
		{SessionID: "s1", Index: 1, Latitude: 30.52, Longitude: 114.42, Offset: time.Second, SentAt: now},
	})
	if err != nil {
		t.Fatalf("AppendTicks: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_AppendTicks_Empty(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	if err := repo.AppendTicks(context.Background(), "s1", nil); err != nil {
		t.Fatalf("AppendTicks: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no queries expected: %v", err)
	}
}

func TestHistoryRepo_AppendTicks_Finalized(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT finalized FROM run_sessions`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"finalized"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.AppendTicks(context.Background(), "s1", []models.Tick{{SessionID: "s1"}})
	if !errors.Is(err, types.ErrDuplicateFinalize) {
		t.Fatalf("expected ErrDuplicateFinalize, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Finalize(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	ended := time.Date(2026, 5, 1, 7, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT finalized FROM run_sessions WHERE session_id = \$1 FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"finalized"}).AddRow(false))
	mock.ExpectExec(`UPDATE run_sessions`).
		WithArgs("s1", ended, "COMPLETED", 120, 3, 2400.5, 1, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.Finalize(context.Background(), models.HistoryRecord{
		SessionID:        "s1",
		EndedAt:          ended,
		Status:           types.StateCompleted,
		WaypointsSent:    120,
		WaypointsSkipped: 3,
		DistanceCovered:  2400.5,
		ErrorCount:       1,
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Finalize_Twice(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"finalized"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Finalize(context.Background(), models.HistoryRecord{SessionID: "s1", Status: types.StateAborted})
	if !errors.Is(err, types.ErrDuplicateFinalize) {
		t.Fatalf("expected ErrDuplicateFinalize, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Finalize_Unknown(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Finalize(context.Background(), models.HistoryRecord{SessionID: "missing"})
	if !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Query(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	started := time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)
	ended := started.Add(30 * time.Minute)

	mock.ExpectQuery(`FROM run_sessions WHERE route_id = \$1 AND status = \$2 ORDER BY started_at DESC LIMIT \$3`).
		WithArgs("r1", "COMPLETED", 10).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow("s2", "r1", "east lake", "dev", started.Add(time.Hour), nil, "COMPLETED",
				100, 100, 0, 1000.0, 0, "", "", true).
			AddRow("s1", "r1", "east lake", "dev", started, ended, "COMPLETED",
				100, 98, 2, 990.0, 1, "", "Luoyu Road 1037", true))

	got, err := repo.Query(context.Background(), models.HistoryFilter{RouteID: "r1", Status: types.StateCompleted, Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].SessionID != "s2" || !got[0].EndedAt.IsZero() {
		t.Fatalf("unexpected first record: %+v", got[0])
	}
	if got[1].Status != types.StateCompleted || !got[1].EndedAt.Equal(ended) || got[1].WaypointsSkipped != 2 {
		t.Fatalf("unexpected second record: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Ticks(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	now := time.Now()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`FROM run_ticks`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"idx", "latitude", "longitude", "offset_ms", "sent_at"}).
			AddRow(0, 30.51, 114.41, int64(0), now).
			AddRow(1, 30.52, 114.42, int64(1500), now))

	ticks, err := repo.Ticks(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 2 || ticks[1].Offset != 1500*time.Millisecond || ticks[1].SessionID != "s1" {
		t.Fatalf("unexpected ticks: %+v", ticks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestHistoryRepo_Ticks_Unknown(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	if _, err := repo.Ticks(context.Background(), "nope"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestHistoryRepo_Unfinalized(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)
	started := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`WHERE NOT finalized ORDER BY started_at`).
		WillReturnRows(pgxmock.NewRows(recordColumns).
			AddRow("s9", "r1", "", "dev", started, nil, "RUNNING", 50, 20, 0, 200.0, 0, "", "", false))

	got, err := repo.Unfinalized(context.Background())
	if err != nil {
		t.Fatalf("Unfinalized: %v", err)
	}
	if len(got) != 1 || got[0].Finalized || got[0].Status != types.StateRunning {
		t.Fatalf("unexpected records: %+v", got)
	}
}

func TestHistoryRepo_Stats(t *testing.T) {
	mock := newMock(t)
	repo := NewHistoryRepo(mock)

	mock.ExpectQuery(`FROM run_sessions WHERE route_id = \$1 AND finalized\s+GROUP BY status`).
		WithArgs("r1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count", "distance", "seconds"}).
			AddRow("COMPLETED", 2, 4000.0, 1600.0).
			AddRow("ABORTED", 1, 500.0, 400.0))

	stats, err := repo.Stats(context.Background(), models.HistoryFilter{RouteID: "r1", Limit: 5})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Sessions != 3 {
		t.Fatalf("expected 3 sessions, got %d", stats.Sessions)
	}
	if stats.ByStatus[types.StateCompleted] != 2 || stats.ByStatus[types.StateAborted] != 1 {
		t.Fatalf("unexpected by-status: %v", stats.ByStatus)
	}
	if stats.TotalDistance != 4500 || stats.TotalDuration != 2000*time.Second {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.AverageSpeed != 2.5 {
		t.Fatalf("expected average speed 2.5, got %v", stats.AverageSpeed)
	}
}

func TestWhereClause(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	where, args := whereClause(models.HistoryFilter{Since: since, Until: since.Add(time.Hour)})
	if where != " WHERE started_at >= $1 AND started_at <= $2" {
		t.Fatalf("unexpected clause %q", where)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}

	if where, args := whereClause(models.HistoryFilter{}); where != "" || args != nil {
		t.Fatalf("empty filter should produce no clause, got %q %v", where, args)
	}
}
