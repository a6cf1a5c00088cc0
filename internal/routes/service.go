// Package routes stores uploaded GPS points and serves recorded routes back
// to the map viewer.
package routes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"gpstracker/internal/db"
	"gpstracker/internal/stream"
)

// latestTTL bounds how long a stale "current position" survives in redis
// after an agent goes quiet.
const latestTTL = 24 * time.Hour

type Service struct {
	db    db.Querier
	hub   *stream.Hub
	redis *redis.Client
}

func NewService(querier db.Querier, hub *stream.Hub, redisClient *redis.Client) *Service {
	return &Service{db: querier, hub: hub, redis: redisClient}
}

// SavePoint stores one uploaded point, refreshes the session's latest-point
// cache and pushes the point to live viewers.
func (s *Service) SavePoint(ctx context.Context, loc GPSLocation) (GPSLocation, error) {
	loc.ID = uuid.NewString()

	row := s.db.QueryRow(ctx, `
		INSERT INTO gps_locations
			(id, latitude, longitude, speed, direction, distance, gps_time,
			 location_method, user_name, phone_number, session_id, accuracy, extra_info, event_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING created_at
	`, loc.ID, loc.Latitude, loc.Longitude, loc.SpeedMph, loc.Direction, loc.DistanceMiles,
		loc.GPSTime, loc.LocationMethod, loc.UserName, loc.PhoneNumber, loc.SessionID,
		loc.Accuracy, loc.ExtraInfo, loc.EventType)
	if err := row.Scan(&loc.CreatedAt); err != nil {
		return GPSLocation{}, err
	}

	payload, _ := json.Marshal(loc)
	if s.redis != nil {
		// cache only; the point is already durable
		_ = s.redis.Set(ctx, latestKey(loc.SessionID), payload, latestTTL).Err()
	}
	if s.hub != nil {
		s.hub.Broadcast(loc.SessionID, payload)
	}
	return loc, nil
}

// Latest returns the cached most recent point of a session, if any.
func (s *Service) Latest(ctx context.Context, sessionID string) (GPSLocation, bool, error) {
	if s.redis == nil {
		return GPSLocation{}, false, nil
	}
	raw, err := s.redis.Get(ctx, latestKey(sessionID)).Bytes()
	if err == redis.Nil {
		return GPSLocation{}, false, nil
	}
	if err != nil {
		return GPSLocation{}, false, err
	}
	var loc GPSLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return GPSLocation{}, false, err
	}
	return loc, true, nil
}

// Routes lists recorded sessions, newest first.
func (s *Service) Routes(ctx context.Context) ([]RouteSummary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT session_id, user_name, MIN(gps_time), MAX(gps_time)
		FROM gps_locations
		GROUP BY session_id, user_name
		ORDER BY MAX(gps_time) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []RouteSummary{}
	for rows.Next() {
		var r RouteSummary
		if err := rows.Scan(&r.SessionID, &r.UserName, &r.StartTime, &r.EndTime); err != nil {
			return nil, err
		}
		summaries = append(summaries, r)
	}
	return summaries, rows.Err()
}

// RouteForMap returns every point of one session in travel order.
func (s *Service) RouteForMap(ctx context.Context, sessionID string) ([]GPSLocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, latitude, longitude, speed, direction, distance, gps_time,
		       location_method, user_name, phone_number, session_id, accuracy, extra_info, event_type, created_at
		FROM gps_locations
		WHERE session_id = $1
		ORDER BY gps_time
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLocations(rows)
}

// AllRoutesLatest returns the most recent point of every session, for the
// all-routes map view.
func (s *Service) AllRoutesLatest(ctx context.Context) ([]GPSLocation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (session_id)
		       id, latitude, longitude, speed, direction, distance, gps_time,
		       location_method, user_name, phone_number, session_id, accuracy, extra_info, event_type, created_at
		FROM gps_locations
		ORDER BY session_id, gps_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLocations(rows)
}

// DeleteRoute removes every point of a session and its cached position.
func (s *Service) DeleteRoute(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM gps_locations WHERE session_id = $1`, sessionID); err != nil {
		return err
	}
	if s.redis != nil {
		_ = s.redis.Del(ctx, latestKey(sessionID)).Err()
	}
	return nil
}

func scanLocations(rows pgx.Rows) ([]GPSLocation, error) {
	points := []GPSLocation{}
	for rows.Next() {
		var p GPSLocation
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.SpeedMph, &p.Direction,
			&p.DistanceMiles, &p.GPSTime, &p.LocationMethod, &p.UserName, &p.PhoneNumber,
			&p.SessionID, &p.Accuracy, &p.ExtraInfo, &p.EventType, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func latestKey(sessionID string) string {
	return "locations:" + sessionID + ":latest"
}
