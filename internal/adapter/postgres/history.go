package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
	pgdb "github.com/Temutjin2k/hust-run/pkg/postgres"
	"github.com/Temutjin2k/hust-run/pkg/trm"
)

//go:embed schema.sql
var schema string

const sessionColumns = `session_id, route_id, route_name, device_id, started_at, ended_at, status,
	waypoints_total, waypoints_sent, waypoints_skipped, distance_covered, error_count,
	error, start_address, finalized`

var tickColumns = []string{"session_id", "idx", "latitude", "longitude", "offset_ms", "sent_at"}

// HistoryRepo keeps session records in run_sessions and ticks in run_ticks.
type HistoryRepo struct {
	db  DB
	trm *trm.Manager
}

func NewHistoryRepo(db DB) *HistoryRepo {
	return &HistoryRepo{db: db, trm: trm.New(db)}
}

// Migrate creates the tables if they do not exist.
func (r *HistoryRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history repo: Migrate: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Begin(ctx context.Context, rec models.HistoryRecord) (err error) {
	defer observe("history_begin", time.Now(), &err)

	query := `INSERT INTO run_sessions (session_id, route_id, route_name, device_id, started_at, status,
                                        waypoints_total, start_address)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err = TxorDB(ctx, r.db).Exec(ctx, query,
		rec.SessionID, rec.RouteID, rec.RouteName, rec.DeviceID, rec.StartedAt, string(rec.Status),
		rec.WaypointsTotal, rec.StartAddress,
	)
	if err != nil {
		if pgdb.IsUniqueViolation(err) {
			return fmt.Errorf("history repo: Begin: session %s already exists: %w", rec.SessionID, err)
		}
		return fmt.Errorf("history repo: Begin: %w", err)
	}
	return nil
}

// AppendTicks copies ticks in one statement. Ticks of a finalized session are
// rejected.
func (r *HistoryRepo) AppendTicks(ctx context.Context, sessionID string, ticks []models.Tick) (err error) {
	if len(ticks) == 0 {
		return nil
	}
	defer observe("history_append_ticks", time.Now(), &err)

	return r.trm.Do(ctx, func(ctx context.Context) error {
		if err := r.lockOpen(ctx, sessionID, "FOR SHARE"); err != nil {
			return fmt.Errorf("history repo: AppendTicks: %w", err)
		}

		rows := make([][]any, len(ticks))
		for i, t := range ticks {
			rows[i] = []any{sessionID, t.Index, t.Latitude, t.Longitude, t.Offset.Milliseconds(), t.SentAt}
		}

		if _, err := TxorDB(ctx, r.db).CopyFrom(ctx, pgx.Identifier{"run_ticks"}, tickColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("history repo: AppendTicks: %w", err)
		}
		return nil
	})
}

// Finalize completes the record once under a row lock.
func (r *HistoryRepo) Finalize(ctx context.Context, rec models.HistoryRecord) (err error) {
	defer observe("history_finalize", time.Now(), &err)

	return r.trm.Do(ctx, func(ctx context.Context) error {
		if err := r.lockOpen(ctx, rec.SessionID, "FOR UPDATE"); err != nil {
			return fmt.Errorf("history repo: Finalize: %w", err)
		}

		query := `
            UPDATE run_sessions
            SET
                ended_at = $2,
                status = $3,
                waypoints_sent = $4,
                waypoints_skipped = $5,
                distance_covered = $6,
                error_count = $7,
                error = $8,
                finalized = TRUE
            WHERE session_id = $1;`

		_, err := TxorDB(ctx, r.db).Exec(ctx, query,
			rec.SessionID, rec.EndedAt, string(rec.Status), rec.WaypointsSent, rec.WaypointsSkipped,
			rec.DistanceCovered, rec.ErrorCount, rec.Error,
		)
		if err != nil {
			return fmt.Errorf("history repo: Finalize: %w", err)
		}
		return nil
	})
}

// lockOpen locks the session row and fails unless it exists and is open.
func (r *HistoryRepo) lockOpen(ctx context.Context, sessionID, lock string) error {
	var finalized bool
	err := TxorDB(ctx, r.db).QueryRow(ctx,
		"SELECT finalized FROM run_sessions WHERE session_id = $1 "+lock+";", sessionID,
	).Scan(&finalized)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return types.ErrSessionNotFound
	case err != nil:
		return err
	case finalized:
		return types.ErrDuplicateFinalize
	}
	return nil
}

// Query returns matching records, newest first.
func (r *HistoryRepo) Query(ctx context.Context, filter models.HistoryFilter) (out []models.HistoryRecord, err error) {
	defer observe("history_query", time.Now(), &err)

	where, args := whereClause(filter)
	query := "SELECT " + sessionColumns + " FROM run_sessions" + where + " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := TxorDB(ctx, r.db).Query(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("history repo: Query: %w", err)
	}
	defer rows.Close()

	out, err = scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("history repo: Query: %w", err)
	}
	return out, nil
}

func (r *HistoryRepo) Unfinalized(ctx context.Context) (out []models.HistoryRecord, err error) {
	defer observe("history_unfinalized", time.Now(), &err)

	rows, err := TxorDB(ctx, r.db).Query(ctx,
		"SELECT "+sessionColumns+" FROM run_sessions WHERE NOT finalized ORDER BY started_at;",
	)
	if err != nil {
		return nil, fmt.Errorf("history repo: Unfinalized: %w", err)
	}
	defer rows.Close()

	out, err = scanRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("history repo: Unfinalized: %w", err)
	}
	return out, nil
}

func (r *HistoryRepo) Ticks(ctx context.Context, sessionID string) (out []models.Tick, err error) {
	defer observe("history_ticks", time.Now(), &err)
	q := TxorDB(ctx, r.db)

	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM run_sessions WHERE session_id = $1);", sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("history repo: Ticks: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("history repo: Ticks: %w", types.ErrSessionNotFound)
	}

	rows, err := q.Query(ctx, `
        SELECT idx, latitude, longitude, offset_ms, sent_at
        FROM run_ticks
        WHERE session_id = $1
        ORDER BY idx;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("history repo: Ticks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		t := models.Tick{SessionID: sessionID}
		var offsetMs int64
		if err := rows.Scan(&t.Index, &t.Latitude, &t.Longitude, &offsetMs, &t.SentAt); err != nil {
			return nil, fmt.Errorf("history repo: Ticks: %w", err)
		}
		t.Offset = time.Duration(offsetMs) * time.Millisecond
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history repo: Ticks: %w", err)
	}
	return out, nil
}

// Stats aggregates finalized records per status in SQL.
func (r *HistoryRepo) Stats(ctx context.Context, filter models.HistoryFilter) (stats models.HistoryStats, err error) {
	defer observe("history_stats", time.Now(), &err)

	filter.Limit = 0
	where, args := whereClause(filter)
	if where == "" {
		where = " WHERE finalized"
	} else {
		where += " AND finalized"
	}

	query := `
        SELECT status,
               COUNT(*),
               COALESCE(SUM(distance_covered), 0),
               COALESCE(SUM(EXTRACT(EPOCH FROM ended_at - started_at)), 0)
        FROM run_sessions` + where + `
        GROUP BY status;`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("history repo: Stats: %w", err)
	}
	defer rows.Close()

	stats.ByStatus = make(map[types.SessionState]int)
	var completedDistance, completedSeconds float64
	for rows.Next() {
		var (
			status   string
			count    int
			distance float64
			seconds  float64
		)
		if err := rows.Scan(&status, &count, &distance, &seconds); err != nil {
			return stats, fmt.Errorf("history repo: Stats: %w", err)
		}

		stats.Sessions += count
		stats.ByStatus[types.SessionState(status)] = count
		stats.TotalDistance += distance
		stats.TotalDuration += time.Duration(seconds * float64(time.Second))
		if types.SessionState(status) == types.StateCompleted {
			completedDistance, completedSeconds = distance, seconds
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("history repo: Stats: %w", err)
	}

	if completedSeconds > 0 {
		stats.AverageSpeed = completedDistance / completedSeconds
	}
	return stats, nil
}

func whereClause(f models.HistoryFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.RouteID != "" {
		add("route_id = $%d", f.RouteID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("started_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("started_at <= $%d", f.Until)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRecords(rows pgx.Rows) ([]models.HistoryRecord, error) {
	out := make([]models.HistoryRecord, 0)
	for rows.Next() {
		var (
			rec     models.HistoryRecord
			status  string
			endedAt sql.NullTime
		)
		err := rows.Scan(
			&rec.SessionID, &rec.RouteID, &rec.RouteName, &rec.DeviceID, &rec.StartedAt, &endedAt, &status,
			&rec.WaypointsTotal, &rec.WaypointsSent, &rec.WaypointsSkipped, &rec.DistanceCovered, &rec.ErrorCount,
			&rec.Error, &rec.StartAddress, &rec.Finalized,
		)
		if err != nil {
			return nil, err
		}
		rec.Status = types.SessionState(status)
		if endedAt.Valid {
			rec.EndedAt = endedAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func observe(op string, started time.Time, err *error) {
	metrics.RecordDatabaseQuery(op, *err, time.Since(started))
}
