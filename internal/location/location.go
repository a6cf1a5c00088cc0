package location

import (
	"context"
	"math"
	"time"
)

// Fix is one location sample as delivered by a Source.
type Fix struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AltitudeM  float64   `json:"altitude_m"`
	SpeedMps   float64   `json:"speed_mps"`
	BearingDeg float64   `json:"bearing_deg"`
	AccuracyM  float64   `json:"accuracy_m"`
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
}

// Normalize clamps fields into their documented ranges: latitude into
// [-90,90], longitude into [-180,180], speed is never negative, bearing
// wraps into [0,360).
func (f Fix) Normalize() Fix {
	f.Latitude = math.Max(-90, math.Min(90, f.Latitude))
	f.Longitude = math.Max(-180, math.Min(180, f.Longitude))
	if f.SpeedMps < 0 {
		f.SpeedMps = 0
	}
	if f.AccuracyM < 0 {
		f.AccuracyM = 0
	}
	f.BearingDeg = math.Mod(f.BearingDeg, 360)
	if f.BearingDeg < 0 {
		f.BearingDeg += 360
	}
	return f
}

type AuthState int

const (
	AuthNotDetermined AuthState = iota
	AuthDenied
	AuthRestrictedForeground
	AuthFullyAuthorized
)

func (a AuthState) String() string {
	switch a {
	case AuthDenied:
		return "denied"
	case AuthRestrictedForeground:
		return "restricted-foreground"
	case AuthFullyAuthorized:
		return "fully-authorized"
	default:
		return "not-determined"
	}
}

// Allows reports whether tracking may run under this authorization state.
func (a AuthState) Allows() bool {
	return a == AuthFullyAuthorized || a == AuthNotDetermined
}

// Source is a push feed of location fixes. Start begins emitting on the
// Fixes channel at roughly the given interval; Stop ends the stream. If
// authorization is revoked mid-stream the source stops emitting fixes and
// delivers the terminal state on AuthChanges instead of hanging. Acquisition
// problems that are not fixes (provider down, bad data) arrive on Errors.
type Source interface {
	Start(ctx context.Context, interval time.Duration) error
	Stop()
	Fixes() <-chan Fix
	AuthChanges() <-chan AuthState
	Errors() <-chan error
	Authorization() AuthState
}
