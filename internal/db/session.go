package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/racelogger/internal/timeutil"
)

var ErrSessionNotFound = errors.New("session not found")

// earthRadiusM is the IUGG mean Earth radius.
const earthRadiusM = 6371008.8

// Session is one recorded interval of driving. Summary fields are nil until
// PopulateSessionInfo has run.
type Session struct {
	ID         string   `json:"id"`
	CreatedAt  float64  `json:"created_at"`
	StartTime  *float64 `json:"start_time,omitempty"`
	EndTime    *float64 `json:"end_time,omitempty"`
	MaxSpeed   *float64 `json:"max_speed,omitempty"`
	MeanSpeed  *float64 `json:"mean_speed,omitempty"`
	DistanceM  *float64 `json:"distance_m,omitempty"`
	GPSSamples int64    `json:"gps_samples"`
	IMUSamples int64    `json:"imu_samples"`
	CANSamples int64    `json:"can_samples"`
}

// Duration returns the session length in seconds, or 0 before finalization.
func (s Session) Duration() float64 {
	if s.StartTime == nil || s.EndTime == nil {
		return 0
	}
	return *s.EndTime - *s.StartTime
}

// NewSession creates an empty session and returns its id.
func (db *DB) NewSession(ctx context.Context) (string, error) {
	id := uuid.NewString()
	_, err := db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
		id, timeutil.Seconds(db.clock.Now()))
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// PopulateSessionInfo computes the time span, speed summary, distance and
// sample counts of a session from its stored samples.
func (db *DB) PopulateSessionInfo(ctx context.Context, id string) error {
	var start, end sql.NullFloat64
	err := db.QueryRowContext(ctx, `
		SELECT MIN(t), MAX(t) FROM (
			SELECT timestamp AS t FROM gps_data WHERE session_id = ?
			UNION ALL SELECT timestamp FROM imu_data WHERE session_id = ?
			UNION ALL SELECT timestamp FROM can_data WHERE session_id = ?
		)`, id, id, id).Scan(&start, &end)
	if err != nil {
		return fmt.Errorf("failed to query session span: %w", err)
	}

	gps, err := db.SessionGPS(ctx, id)
	if err != nil {
		return err
	}
	var maxSpeed, meanSpeed, distance sql.NullFloat64
	if len(gps) > 0 {
		speeds := make([]float64, len(gps))
		for i, s := range gps {
			speeds[i] = s.Speed
		}
		maxSpeed = sql.NullFloat64{Float64: floats.Max(speeds), Valid: true}
		meanSpeed = sql.NullFloat64{Float64: stat.Mean(speeds, nil), Valid: true}

		legs := make([]float64, 0, len(gps))
		for i := 1; i < len(gps); i++ {
			a, b := gps[i-1], gps[i]
			if a.Lat == 0 || a.Lon == 0 || b.Lat == 0 || b.Lon == 0 {
				continue
			}
			legs = append(legs, haversine(a.Lat, a.Lon, b.Lat, b.Lon))
		}
		distance = sql.NullFloat64{Float64: floats.Sum(legs), Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		UPDATE sessions SET
			start_time = ?, end_time = ?, max_speed = ?, mean_speed = ?, distance_m = ?,
			gps_samples = (SELECT COUNT(*) FROM gps_data WHERE session_id = ?),
			imu_samples = (SELECT COUNT(*) FROM imu_data WHERE session_id = ?),
			can_samples = (SELECT COUNT(*) FROM can_data WHERE session_id = ?)
		WHERE session_id = ?`,
		start, end, maxSpeed, meanSpeed, distance, id, id, id, id)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const sessionColumns = `session_id, created_at, start_time, end_time, max_speed, mean_speed,
	distance_m, gps_samples, imu_samples, can_samples`

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var (
		s                                Session
		start, end, maxSpeed, mean, dist sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.CreatedAt, &start, &end, &maxSpeed, &mean, &dist,
		&s.GPSSamples, &s.IMUSamples, &s.CANSamples); err != nil {
		return Session{}, err
	}
	s.StartTime = nullable(start)
	s.EndTime = nullable(end)
	s.MaxSpeed = nullable(maxSpeed)
	s.MeanSpeed = nullable(mean)
	s.DistanceM = nullable(dist)
	return s, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Session returns one session by id.
func (db *DB) Session(ctx context.Context, id string) (Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, err
}

// Sessions returns the most recent sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// haversine returns the great-circle distance in metres between two fixes.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
