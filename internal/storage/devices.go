package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"

	"github.com/user/pingwatch/internal/model"
)

// DeviceStorage persists the latest tracker view of each device.
type DeviceStorage struct {
	db *DB
}

// NewDeviceStorage creates a new device storage handler.
func NewDeviceStorage(db *DB) *DeviceStorage {
	return &DeviceStorage{db: db}
}

// SaveDevices upserts every record in one transaction.
func (s *DeviceStorage) SaveDevices(ctx context.Context, recs []model.DeviceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO devices (ip, hostname, mac, vendor, status, first_seen, last_seen, last_status_change, consecutive_failures)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(ip) DO UPDATE SET
		 hostname = excluded.hostname,
		 mac = excluded.mac,
		 vendor = excluded.vendor,
		 status = excluded.status,
		 last_seen = excluded.last_seen,
		 last_status_change = excluded.last_status_change,
		 consecutive_failures = excluded.consecutive_failures`)
	if err != nil {
		return fmt.Errorf("failed to prepare device upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		_, err := stmt.ExecContext(ctx,
			r.Addr.String(), r.Hostname, r.MAC, r.Vendor, r.Status.String(),
			r.FirstSeen.UTC(), r.LastSeen.UTC(), r.LastStatusChange.UTC(), r.ConsecutiveFailures)
		if err != nil {
			return fmt.Errorf("failed to save device %s: %w", r.Addr, err)
		}
	}
	return tx.Commit()
}

// ListDevices returns the stored devices ordered by address text.
func (s *DeviceStorage) ListDevices(ctx context.Context) ([]model.DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ip, hostname, mac, vendor, status, first_seen, last_seen, last_status_change, consecutive_failures
		 FROM devices ORDER BY ip`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var recs []model.DeviceRecord
	for rows.Next() {
		var (
			r                     model.DeviceRecord
			ip, status            string
			hostname, mac, vendor sql.NullString
			changed               sql.NullTime
		)
		if err := rows.Scan(&ip, &hostname, &mac, &vendor, &status, &r.FirstSeen, &r.LastSeen, &changed, &r.ConsecutiveFailures); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			continue
		}
		r.Addr = addr
		r.Hostname, r.MAC, r.Vendor = hostname.String, mac.String, vendor.String
		r.Status = model.ParseStatus(status)
		r.FirstSeen, r.LastSeen = r.FirstSeen.Local(), r.LastSeen.Local()
		if changed.Valid {
			r.LastStatusChange = changed.Time.Local()
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// CountByStatus returns the number of stored devices per status.
func (s *DeviceStorage) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM devices GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", err)
		}
		counts[model.ParseStatus(status)] += n
	}
	return counts, rows.Err()
}
