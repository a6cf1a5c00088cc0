package location

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"gpstracker/internal/geo"
)

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat       float64   `xml:"lat,attr"`
	Lon       float64   `xml:"lon,attr"`
	Elevation float64   `xml:"ele"`
	Time      time.Time `xml:"time"`
}

// ReplaySource plays the points of a GPX track back as a live fix stream,
// one point per interval. It is how the agent gets fixes on hardware with
// no location provider of its own.
type ReplaySource struct {
	mu     sync.Mutex
	points []gpxPoint
	auth   AuthState

	fixes  chan Fix
	authCh chan AuthState
	errCh  chan error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReplaySource(path string) (*ReplaySource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track file: %w", err)
	}
	var g gpxFile
	if err := xml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse track file: %w", err)
	}

	var points []gpxPoint
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			points = append(points, seg.Points...)
		}
	}
	if len(points) == 0 {
		return nil, errors.New("track file has no points")
	}

	return &ReplaySource{
		points: points,
		auth:   AuthFullyAuthorized,
		fixes:  make(chan Fix, 1),
		authCh: make(chan AuthState, 1),
		errCh:  make(chan error, 1),
	}, nil
}

func (r *ReplaySource) Start(ctx context.Context, interval time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errors.New("replay already started")
	}
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v", interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, interval)
	return nil
}

func (r *ReplaySource) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (r *ReplaySource) Fixes() <-chan Fix             { return r.fixes }
func (r *ReplaySource) AuthChanges() <-chan AuthState { return r.authCh }
func (r *ReplaySource) Errors() <-chan error          { return r.errCh }

func (r *ReplaySource) Authorization() AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth
}

func (r *ReplaySource) run(ctx context.Context, interval time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if idx >= len(r.points) {
			select {
			case r.errCh <- errors.New("track replay exhausted"):
			default:
			}
			return
		}

		fix := r.fixAt(idx)
		idx++
		select {
		case r.fixes <- fix:
		case <-ctx.Done():
			return
		}
	}
}

func (r *ReplaySource) fixAt(idx int) Fix {
	p := r.points[idx]
	fix := Fix{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		AltitudeM: p.Elevation,
		AccuracyM: 5,
		Time:      time.Now(),
		Method:    "replay",
	}
	if idx > 0 {
		prev := r.points[idx-1]
		fix.SpeedMps, fix.BearingDeg = motionBetween(prev, p)
	}
	return fix.Normalize()
}

// motionBetween derives speed and heading from two consecutive track points.
func motionBetween(a, b gpxPoint) (speedMps, bearingDeg float64) {
	d := geo.DistanceMeters(geo.Point{Lat: a.Lat, Lng: a.Lon}, geo.Point{Lat: b.Lat, Lng: b.Lon})
	if !a.Time.IsZero() && !b.Time.IsZero() && b.Time.After(a.Time) {
		speedMps = d / b.Time.Sub(a.Time).Seconds()
	}

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lon - a.Lon) * math.Pi / 180
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	bearingDeg = math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	return speedMps, bearingDeg
}
