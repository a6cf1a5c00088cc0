package upload

import (
	"testing"
	"time"

	"gpstracker/internal/location"
)

func TestNewRecordConvertsUnits(t *testing.T) {
	fix := location.Fix{
		Latitude:   47.6062,
		Longitude:  -122.3321,
		AltitudeM:  56.4,
		SpeedMps:   10,
		BearingDeg: 271.6,
		AccuracyM:  4.4,
		Time:       time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC),
		Method:     "gps",
	}
	rec := NewRecord(fix, "scout", "app-1", "session-1", 1609.34, EventUpdate)

	if rec.Latitude != "47.6062" || rec.Longitude != "-122.3321" {
		t.Fatalf("unexpected coordinates: %q %q", rec.Latitude, rec.Longitude)
	}
	if rec.SpeedMph != 22 {
		t.Fatalf("expected 22 mph, got %d", rec.SpeedMph)
	}
	if rec.DirectionDeg != 272 {
		t.Fatalf("expected direction 272, got %d", rec.DirectionDeg)
	}
	if rec.Date != "2025-06-01 10:30:00" {
		t.Fatalf("unexpected date: %q", rec.Date)
	}
	if rec.DistanceMiles != "1.0" {
		t.Fatalf("expected one mile with one fraction digit, got %q", rec.DistanceMiles)
	}
	if rec.AccuracyM != 4 {
		t.Fatalf("expected accuracy 4, got %d", rec.AccuracyM)
	}
	if rec.ExtraInfo != "56" {
		t.Fatalf("expected altitude 56 in extrainfo, got %q", rec.ExtraInfo)
	}
}

func TestRecordValuesFieldNames(t *testing.T) {
	rec := NewRecord(location.Fix{Time: time.Now()}, "scout", "app-1", "session-1", 0, EventStart)
	v := rec.Values()

	for _, key := range []string{
		"latitude", "longitude", "speed", "direction", "date", "locationmethod",
		"distance", "username", "phonenumber", "sessionid", "accuracy", "extrainfo", "eventtype",
	} {
		if !v.Has(key) {
			t.Fatalf("missing form field %q", key)
		}
	}
	if v.Get("phonenumber") != "app-1" {
		t.Fatalf("phonenumber must carry the app id, got %q", v.Get("phonenumber"))
	}
	if v.Get("eventtype") != EventStart {
		t.Fatalf("unexpected eventtype: %q", v.Get("eventtype"))
	}
	if v.Get("distance") != "0.0" {
		t.Fatalf("unexpected distance: %q", v.Get("distance"))
	}
}
