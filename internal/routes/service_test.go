package routes

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/redis/go-redis/v9"

	"gpstracker/internal/stream"
)

var locationColumns = []string{
	"id", "latitude", "longitude", "speed", "direction", "distance", "gps_time",
	"location_method", "user_name", "phone_number", "session_id", "accuracy",
	"extra_info", "event_type", "created_at",
}

func samplePoint() GPSLocation {
	return GPSLocation{
		Latitude:       47.6062,
		Longitude:      -122.3321,
		SpeedMph:       22,
		Direction:      272,
		DistanceMiles:  1.0,
		GPSTime:        time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		LocationMethod: "gps",
		UserName:       "scout",
		PhoneNumber:    "app-1",
		SessionID:      "session-1",
		Accuracy:       5,
		ExtraInfo:      "56",
		EventType:      "start",
	}
}

func expectInsert(mock pgxmock.PgxPoolIface, p GPSLocation) {
	mock.ExpectQuery(`INSERT INTO gps_locations`).
		WithArgs(pgxmock.AnyArg(), p.Latitude, p.Longitude, p.SpeedMph, p.Direction,
			p.DistanceMiles, p.GPSTime, p.LocationMethod, p.UserName, p.PhoneNumber,
			p.SessionID, p.Accuracy, p.ExtraInfo, p.EventType).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))
}

func TestSavePointBroadcastsAndCaches(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := stream.NewHub(nil)
	viewer := hub.Register("session-1")
	defer hub.Unregister(viewer)

	point := samplePoint()
	expectInsert(mock, point)

	svc := NewService(mock, hub, rdb)
	saved, err := svc.SavePoint(context.Background(), point)
	if err != nil {
		t.Fatalf("save point: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be set")
	}

	select {
	case payload := <-viewer.Send:
		var got GPSLocation
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if got.SessionID != "session-1" || got.Latitude != point.Latitude {
			t.Fatalf("unexpected broadcast: %+v", got)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for broadcast")
	}

	cached, found, err := svc.Latest(context.Background(), "session-1")
	if err != nil || !found {
		t.Fatalf("expected cached point, found=%v err=%v", found, err)
	}
	if cached.Latitude != point.Latitude || cached.EventType != "start" {
		t.Fatalf("unexpected cached point: %+v", cached)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestLatestMissing(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	svc := NewService(nil, nil, rdb)
	_, found, err := svc.Latest(context.Background(), "nothing-here")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if found {
		t.Fatalf("expected no cached point")
	}
}

func TestLatestWithoutRedis(t *testing.T) {
	svc := NewService(nil, nil, nil)
	_, found, err := svc.Latest(context.Background(), "session-1")
	if err != nil || found {
		t.Fatalf("expected no result without redis, found=%v err=%v", found, err)
	}
}

func TestRoutes(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	mock.ExpectQuery(`SELECT session_id, user_name, MIN`).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "user_name", "min", "max"}).
			AddRow("session-2", "scout", start.Add(time.Hour), end.Add(time.Hour)).
			AddRow("session-1", "scout", start, end))

	svc := NewService(mock, nil, nil)
	routes, err := svc.Routes(context.Background())
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	if len(routes) != 2 || routes[0].SessionID != "session-2" {
		t.Fatalf("unexpected routes: %+v", routes)
	}
}

func TestRouteForMap(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	p := samplePoint()
	mock.ExpectQuery(`FROM gps_locations\s+WHERE session_id`).
		WithArgs("session-1").
		WillReturnRows(pgxmock.NewRows(locationColumns).
			AddRow("id-1", p.Latitude, p.Longitude, p.SpeedMph, p.Direction, p.DistanceMiles,
				p.GPSTime, p.LocationMethod, p.UserName, p.PhoneNumber, p.SessionID,
				p.Accuracy, p.ExtraInfo, p.EventType, time.Now()))

	svc := NewService(mock, nil, nil)
	points, err := svc.RouteForMap(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("route for map: %v", err)
	}
	if len(points) != 1 || points[0].ID != "id-1" || points[0].SpeedMph != 22 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestAllRoutesLatest(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	p := samplePoint()
	mock.ExpectQuery(`SELECT DISTINCT ON \(session_id\)`).
		WillReturnRows(pgxmock.NewRows(locationColumns).
			AddRow("id-1", p.Latitude, p.Longitude, p.SpeedMph, p.Direction, p.DistanceMiles,
				p.GPSTime, p.LocationMethod, p.UserName, p.PhoneNumber, "session-1",
				p.Accuracy, p.ExtraInfo, p.EventType, time.Now()).
			AddRow("id-2", p.Latitude, p.Longitude, p.SpeedMph, p.Direction, p.DistanceMiles,
				p.GPSTime, p.LocationMethod, p.UserName, p.PhoneNumber, "session-2",
				p.Accuracy, p.ExtraInfo, p.EventType, time.Now()))

	svc := NewService(mock, nil, nil)
	points, err := svc.AllRoutesLatest(context.Background())
	if err != nil {
		t.Fatalf("all routes: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
}

func TestDeleteRoute(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Set(latestKey("session-1"), "{}")

	mock.ExpectExec(`DELETE FROM gps_locations`).
		WithArgs("session-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	svc := NewService(mock, nil, rdb)
	if err := svc.DeleteRoute(context.Background(), "session-1"); err != nil {
		t.Fatalf("delete route: %v", err)
	}
	if mr.Exists(latestKey("session-1")) {
		t.Fatalf("expected cached position to be removed")
	}
}

func TestSavePointInsertError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO gps_locations`).
		WillReturnError(context.Canceled)

	svc := NewService(mock, nil, nil)
	if _, err := svc.SavePoint(context.Background(), samplePoint()); err == nil {
		t.Fatalf("expected insert error")
	}
}
