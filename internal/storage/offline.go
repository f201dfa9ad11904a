package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/user/pingwatch/internal/model"
)

// HistoryLimit caps per-device history queries.
const HistoryLimit = 100

// OfflineStorage handles offline event persistence.
type OfflineStorage struct {
	db  *DB
	now func() time.Time
}

// NewOfflineStorage creates a new offline event storage handler.
func NewOfflineStorage(db *DB) *OfflineStorage {
	return &OfflineStorage{db: db, now: time.Now}
}

// RecordOffline stores a closed offline event.
func (s *OfflineStorage) RecordOffline(ctx context.Context, rec model.OfflineRecord) error {
	var online sql.NullTime
	if rec.OnlineAt != nil {
		online = sql.NullTime{Time: rec.OnlineAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO offline_events (run_id, ip, offline_at, online_at, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.IP, rec.OfflineAt.UTC(), online, rec.DurationMs, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record offline event: %w", err)
	}
	return nil
}

// EventsByIP returns the most recent events of one device, newest first.
func (s *OfflineStorage) EventsByIP(ctx context.Context, ip string) ([]model.OfflineRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ip, offline_at, online_at, duration_ms, created_at
		 FROM offline_events WHERE ip = ? ORDER BY offline_at DESC LIMIT ?`,
		ip, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query offline events: %w", err)
	}
	return scanEvents(rows)
}

// EventsBetween returns every event that started within [since, until).
func (s *OfflineStorage) EventsBetween(ctx context.Context, since, until time.Time) ([]model.OfflineRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ip, offline_at, online_at, duration_ms, created_at
		 FROM offline_events WHERE offline_at >= ? AND offline_at < ? ORDER BY offline_at ASC`,
		since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query offline events: %w", err)
	}
	return scanEvents(rows)
}

// TodayStats returns how often ip went offline today and the average
// outage length in milliseconds.
func (s *OfflineStorage) TodayStats(ctx context.Context, ip string) (count int, avgMs float64, err error) {
	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(duration_ms) FROM offline_events WHERE ip = ? AND offline_at >= ?`,
		ip, startOfDay(s.now()).UTC()).Scan(&count, &avg)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query today stats: %w", err)
	}
	return count, avg.Float64, nil
}

// TotalStats returns the number of events of ip and their summed duration.
func (s *OfflineStorage) TotalStats(ctx context.Context, ip string) (count int, totalMs int64, err error) {
	var total sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), SUM(duration_ms) FROM offline_events WHERE ip = ?`,
		ip).Scan(&count, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query total stats: %w", err)
	}
	return count, total.Int64, nil
}

// DevicesToday aggregates today's events per device, most affected first.
func (s *OfflineStorage) DevicesToday(ctx context.Context) ([]model.DeviceOfflineStats, error) {
	return s.DevicesSince(ctx, startOfDay(s.now()))
}

// DevicesSince aggregates events started at or after since per device.
func (s *OfflineStorage) DevicesSince(ctx context.Context, since time.Time) ([]model.DeviceOfflineStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, COUNT(*) AS n, SUM(duration_ms), AVG(duration_ms)
		 FROM offline_events WHERE offline_at >= ?
		 GROUP BY ip ORDER BY n DESC, ip ASC`,
		since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query device stats: %w", err)
	}
	defer rows.Close()

	var stats []model.DeviceOfflineStats
	for rows.Next() {
		var st model.DeviceOfflineStats
		if err := rows.Scan(&st.IP, &st.Count, &st.TotalDurationMs, &st.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan device stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Cleanup deletes events recorded before cutoff and returns how many.
func (s *OfflineStorage) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM offline_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up offline events: %w", err)
	}
	return res.RowsAffected()
}

// Count returns the total number of stored events.
func (s *OfflineStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM offline_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count offline events: %w", err)
	}
	return n, nil
}

// ExportJSON writes every stored event as an indented JSON array.
func (s *OfflineStorage) ExportJSON(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ip, offline_at, online_at, duration_ms, created_at
		 FROM offline_events ORDER BY offline_at DESC`)
	if err != nil {
		return fmt.Errorf("failed to query offline events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return err
	}
	if events == nil {
		events = []model.OfflineRecord{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

func scanEvents(rows *sql.Rows) ([]model.OfflineRecord, error) {
	defer rows.Close()

	var events []model.OfflineRecord
	for rows.Next() {
		var (
			rec    model.OfflineRecord
			runID  sql.NullString
			online sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &runID, &rec.IP, &rec.OfflineAt, &online, &rec.DurationMs, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan offline event: %w", err)
		}
		rec.RunID = runID.String
		rec.OfflineAt = rec.OfflineAt.Local()
		rec.CreatedAt = rec.CreatedAt.Local()
		if online.Valid {
			t := online.Time.Local()
			rec.OnlineAt = &t
		}
		events = append(events, rec)
	}
	return events, rows.Err()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
