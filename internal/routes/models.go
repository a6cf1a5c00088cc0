package routes

import "time"

// GPSLocation is one uploaded point. Field names on the wire follow the
// upload form: speed is mph, distance is miles, extra_info carries altitude.
type GPSLocation struct {
	ID             string    `json:"id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	SpeedMph       int       `json:"speed"`
	Direction      int       `json:"direction"`
	DistanceMiles  float64   `json:"distance"`
	GPSTime        time.Time `json:"gps_time"`
	LocationMethod string    `json:"location_method"`
	UserName       string    `json:"username"`
	PhoneNumber    string    `json:"phone_number"`
	SessionID      string    `json:"session_id"`
	Accuracy       int       `json:"accuracy"`
	ExtraInfo      string    `json:"extra_info"`
	EventType      string    `json:"event_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// RouteSummary describes one recorded session for the route picker.
type RouteSummary struct {
	SessionID string    `json:"session_id"`
	UserName  string    `json:"username"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
