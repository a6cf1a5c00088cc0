package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeClampsSpeedAndBearing(t *testing.T) {
	f := Fix{SpeedMps: -3, BearingDeg: 725, AccuracyM: -1}.Normalize()
	if f.SpeedMps != 0 {
		t.Fatalf("negative speed must clamp to 0, got %v", f.SpeedMps)
	}
	if f.BearingDeg < 0 || f.BearingDeg >= 360 {
		t.Fatalf("bearing out of range: %v", f.BearingDeg)
	}
	if f.BearingDeg != 5 {
		t.Fatalf("expected bearing 5, got %v", f.BearingDeg)
	}
	if f.AccuracyM != 0 {
		t.Fatalf("negative accuracy must clamp to 0, got %v", f.AccuracyM)
	}
}

func TestNormalizeClampsCoordinates(t *testing.T) {
	f := Fix{Latitude: 93.5, Longitude: -181.2}.Normalize()
	if f.Latitude != 90 {
		t.Fatalf("latitude beyond the pole must clamp to 90, got %v", f.Latitude)
	}
	if f.Longitude != -180 {
		t.Fatalf("longitude past the antimeridian must clamp to -180, got %v", f.Longitude)
	}

	f = Fix{Latitude: 47.6062, Longitude: -122.3321}.Normalize()
	if f.Latitude != 47.6062 || f.Longitude != -122.3321 {
		t.Fatalf("in-range coordinates must pass through unchanged: %v %v", f.Latitude, f.Longitude)
	}
}

func TestAuthStateAllows(t *testing.T) {
	if AuthDenied.Allows() || AuthRestrictedForeground.Allows() {
		t.Fatalf("denied states must not allow tracking")
	}
	if !AuthFullyAuthorized.Allows() {
		t.Fatalf("fully authorized must allow tracking")
	}
}

const sampleGPX = `<?xml version="1.0"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>loop</name><trkseg>
    <trkpt lat="47.6062" lon="-122.3321"><ele>56</ele><time>2025-06-01T10:00:00Z</time></trkpt>
    <trkpt lat="47.6063" lon="-122.3321"><ele>57</ele><time>2025-06-01T10:01:00Z</time></trkpt>
    <trkpt lat="47.6065" lon="-122.3324"><ele>58</ele><time>2025-06-01T10:02:00Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func writeTrack(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.gpx")
	if err := os.WriteFile(path, []byte(sampleGPX), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
	return path
}

func TestReplaySourceEmitsTrackPoints(t *testing.T) {
	src, err := NewReplaySource(writeTrack(t))
	if err != nil {
		t.Fatalf("new replay source: %v", err)
	}
	if src.Authorization() != AuthFullyAuthorized {
		t.Fatalf("replay source should be fully authorized")
	}

	if err := src.Start(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	var fixes []Fix
	for len(fixes) < 3 {
		select {
		case f := <-src.Fixes():
			fixes = append(fixes, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d fixes", len(fixes))
		}
	}

	if fixes[0].Latitude != 47.6062 || fixes[0].Longitude != -122.3321 {
		t.Fatalf("unexpected first fix: %+v", fixes[0])
	}
	if fixes[1].SpeedMps <= 0 {
		t.Fatalf("expected derived speed on second fix, got %v", fixes[1].SpeedMps)
	}
	if fixes[0].Method != "replay" {
		t.Fatalf("unexpected method: %q", fixes[0].Method)
	}
}

func TestReplaySourceReportsExhaustion(t *testing.T) {
	src, err := NewReplaySource(writeTrack(t))
	if err != nil {
		t.Fatalf("new replay source: %v", err)
	}
	if err := src.Start(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-src.Fixes():
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out draining fixes")
		}
	}

	select {
	case err := <-src.Errors():
		if err == nil {
			t.Fatalf("expected exhaustion error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for exhaustion error")
	}
}

func TestReplaySourceRejectsEmptyTrack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gpx")
	if err := os.WriteFile(path, []byte(`<gpx version="1.1"></gpx>`), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
	if _, err := NewReplaySource(path); err == nil {
		t.Fatalf("expected error for empty track")
	}
}

func TestReplaySourceDoubleStart(t *testing.T) {
	src, err := NewReplaySource(writeTrack(t))
	if err != nil {
		t.Fatalf("new replay source: %v", err)
	}
	if err := src.Start(context.Background(), time.Minute); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer src.Stop()
	if err := src.Start(context.Background(), time.Minute); err == nil {
		t.Fatalf("expected error on double start")
	}
}
