package upload

import (
	"math"
	"net/url"
	"strconv"

	"gpstracker/internal/geo"
	"gpstracker/internal/location"
)

// Event tags sent with each point.
const (
	EventStart  = "start"
	EventUpdate = "update"
	EventStop   = "stop"
)

// Record is the wire payload for one location sample: a snapshot of the fix,
// the identity settings and the session state at send time. Numeric fields
// are already converted to the units the server expects (mph, miles,
// rounded integers).
type Record struct {
	Latitude       string
	Longitude      string
	SpeedMph       int
	DirectionDeg   int
	Date           string
	LocationMethod string
	DistanceMiles  string
	Username       string
	AppID          string
	SessionID      string
	AccuracyM      int
	ExtraInfo      string
	EventType      string
}

// NewRecord builds the payload for one fix. totalDistanceM is the running
// session distance in meters; the wire carries it in miles with one
// fraction digit.
func NewRecord(fix location.Fix, username, appID, sessionID string, totalDistanceM float64, eventType string) Record {
	return Record{
		Latitude:       strconv.FormatFloat(fix.Latitude, 'f', -1, 64),
		Longitude:      strconv.FormatFloat(fix.Longitude, 'f', -1, 64),
		SpeedMph:       int(math.Round(geo.MpsToMph(fix.SpeedMps))),
		DirectionDeg:   int(math.Round(fix.BearingDeg)),
		Date:           fix.Time.Format("2006-01-02 15:04:05"),
		LocationMethod: fix.Method,
		DistanceMiles:  strconv.FormatFloat(geo.MetersToMiles(totalDistanceM), 'f', 1, 64),
		Username:       username,
		AppID:          appID,
		SessionID:      sessionID,
		AccuracyM:      int(math.Round(fix.AccuracyM)),
		ExtraInfo:      strconv.Itoa(int(math.Round(fix.AltitudeM))),
		EventType:      eventType,
	}
}

// Values returns the form fields exactly as the update endpoint names them.
func (r Record) Values() url.Values {
	v := url.Values{}
	v.Set("latitude", r.Latitude)
	v.Set("longitude", r.Longitude)
	v.Set("speed", strconv.Itoa(r.SpeedMph))
	v.Set("direction", strconv.Itoa(r.DirectionDeg))
	v.Set("date", r.Date)
	v.Set("locationmethod", r.LocationMethod)
	v.Set("distance", r.DistanceMiles)
	v.Set("username", r.Username)
	v.Set("phonenumber", r.AppID)
	v.Set("sessionid", r.SessionID)
	v.Set("accuracy", strconv.Itoa(r.AccuracyM))
	v.Set("extrainfo", r.ExtraInfo)
	v.Set("eventtype", r.EventType)
	return v
}
