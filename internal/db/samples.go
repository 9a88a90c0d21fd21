package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/banshee-data/racelogger/internal/sensor"
)

// insertAll writes rows in one transaction through a single prepared
// statement.
func (db *DB) insertAll(ctx context.Context, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// InsertGPSUpdates stores GPS samples for a session.
func (db *DB) InsertGPSUpdates(ctx context.Context, sessionID string, samples []sensor.GPSSample) error {
	err := db.insertAll(ctx,
		`INSERT INTO gps_data (session_id, timestamp, speed, lat, lon, alt, track) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(samples), func(i int) []any {
			s := samples[i]
			return []any{sessionID, s.Time, s.Speed, s.Lat, s.Lon, s.Altitude, s.Track}
		})
	if err != nil {
		return fmt.Errorf("failed to insert gps data: %w", err)
	}
	return nil
}

// InsertIMUUpdates stores accelerometer samples for a session.
func (db *DB) InsertIMUUpdates(ctx context.Context, sessionID string, samples []sensor.IMUSample) error {
	err := db.insertAll(ctx,
		`INSERT INTO imu_data (session_id, timestamp, x, y, z) VALUES (?, ?, ?, ?, ?)`,
		len(samples), func(i int) []any {
			s := samples[i]
			return []any{sessionID, s.Time, s.X, s.Y, s.Z}
		})
	if err != nil {
		return fmt.Errorf("failed to insert imu data: %w", err)
	}
	return nil
}

// InsertCANUpdates stores decoded CAN channel values for a session.
func (db *DB) InsertCANUpdates(ctx context.Context, sessionID string, samples []sensor.CANSample) error {
	err := db.insertAll(ctx,
		`INSERT INTO can_data (session_id, timestamp, arbitration_id, channel, value) VALUES (?, ?, ?, ?, ?)`,
		len(samples), func(i int) []any {
			s := samples[i]
			return []any{sessionID, s.Time, int64(s.ArbitrationID), s.Channel, s.Value}
		})
	if err != nil {
		return fmt.Errorf("failed to insert can data: %w", err)
	}
	return nil
}

// SessionGPS returns a session's GPS samples in time order.
func (db *DB) SessionGPS(ctx context.Context, sessionID string) ([]sensor.GPSSample, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT timestamp, speed, lat, lon, alt, track FROM gps_data
		WHERE session_id = ? ORDER BY timestamp, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query gps data: %w", err)
	}
	defer rows.Close()

	var out []sensor.GPSSample
	for rows.Next() {
		var s sensor.GPSSample
		var speed, lat, lon, alt, track sql.NullFloat64
		if err := rows.Scan(&s.Time, &speed, &lat, &lon, &alt, &track); err != nil {
			return nil, err
		}
		s.Speed, s.Lat, s.Lon, s.Altitude, s.Track = speed.Float64, lat.Float64, lon.Float64, alt.Float64, track.Float64
		out = append(out, s)
	}
	return out, rows.Err()
}

// SessionCAN returns a session's values for one CAN channel in time order.
func (db *DB) SessionCAN(ctx context.Context, sessionID, channel string) ([]sensor.CANSample, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT timestamp, arbitration_id, value FROM can_data
		WHERE session_id = ? AND channel = ? ORDER BY timestamp, rowid`, sessionID, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to query can data: %w", err)
	}
	defer rows.Close()

	var out []sensor.CANSample
	for rows.Next() {
		var (
			s     sensor.CANSample
			id    int64
			value sql.NullFloat64
		)
		if err := rows.Scan(&s.Time, &id, &value); err != nil {
			return nil, err
		}
		s.ArbitrationID = uint64(id)
		s.Channel = channel
		s.Value = value.Float64
		out = append(out, s)
	}
	return out, rows.Err()
}
