// Package settings is the durable key/value store for the agent: user
// identity, upload target, tracking interval, the install-scoped app id and
// the per-session resumption state (previous fix, running distance). One
// JSON file holds everything; every mutation is written via a temp file and
// rename so a crash never leaves a torn state behind.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"gpstracker/internal/geo"
)

const (
	DefaultServerURL       = "https://www.websmithing.com/gpstracker/api/locations/update"
	DefaultIntervalMinutes = 1
)

type persisted struct {
	Username        string     `json:"username"`
	ServerURL       string     `json:"serverUrl"`
	IntervalMinutes int        `json:"trackingIntervalMinutes"`
	DistanceFilterM int        `json:"distanceFilterMeters"`
	AppID           string     `json:"appId,omitempty"`
	SessionID       string     `json:"sessionId,omitempty"`
	Tracking        bool       `json:"currentlyTracking"`
	TotalDistanceM  float64    `json:"totalDistanceMeters"`
	FirstFix        bool       `json:"firstFixOfSession"`
	PreviousFix     *geo.Point `json:"previousFix,omitempty"`
}

// Store serializes every read-modify-write on the settings file, so
// concurrent callers can never race two different app ids or session ids
// into existence.
type Store struct {
	mu   sync.Mutex
	path string
	data persisted
}

// Open loads the settings file at path, creating defaults if it does not
// exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data = persisted{
			ServerURL:       DefaultServerURL,
			IntervalMinutes: DefaultIntervalMinutes,
			FirstFix:        true,
		}
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("parse settings: %w", err)
		}
	}
	return s, nil
}

// flush writes the current state durably. Callers hold s.mu.
func (s *Store) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// GetOrCreateAppID returns the install-scoped device id, generating and
// persisting it on first call. It is never regenerated afterwards.
func (s *Store) GetOrCreateAppID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.AppID != "" {
		return s.data.AppID, nil
	}
	id := uuid.NewString()
	s.data.AppID = id
	if err := s.flush(); err != nil {
		s.data.AppID = ""
		return "", err
	}
	return id, nil
}

// GetOrCreateSessionID returns the active session id, generating one if no
// session is active. Unlike the app id it is cleared when tracking stops.
func (s *Store) GetOrCreateSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.SessionID != "" {
		return s.data.SessionID, nil
	}
	id := uuid.NewString()
	s.data.SessionID = id
	if err := s.flush(); err != nil {
		s.data.SessionID = ""
		return "", err
	}
	return id, nil
}

func (s *Store) SessionID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SessionID, s.data.SessionID != ""
}

func (s *Store) ClearSessionID() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.SessionID = ""
	return s.flush()
}

func (s *Store) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Username
}

func (s *Store) SetUsername(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Username = name
	return s.flush()
}

func (s *Store) ServerURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.ServerURL == "" {
		return DefaultServerURL
	}
	return s.data.ServerURL
}

func (s *Store) SetServerURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.ServerURL = url
	return s.flush()
}

func (s *Store) IntervalMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.IntervalMinutes <= 0 {
		return DefaultIntervalMinutes
	}
	return s.data.IntervalMinutes
}

func (s *Store) SetIntervalMinutes(minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("interval must be positive, got %d", minutes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.IntervalMinutes = minutes
	return s.flush()
}

func (s *Store) DistanceFilterM() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DistanceFilterM
}

func (s *Store) SetDistanceFilterM(meters int) error {
	if meters < 0 {
		return fmt.Errorf("distance filter must not be negative, got %d", meters)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DistanceFilterM = meters
	return s.flush()
}

func (s *Store) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Tracking
}

func (s *Store) SetTracking(tracking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Tracking = tracking
	return s.flush()
}

// ResetSession clears the per-session resumption state: distance back to
// zero, no previous fix, next fix is the first of the session.
func (s *Store) ResetSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.TotalDistanceM = 0
	s.data.FirstFix = true
	s.data.PreviousFix = nil
	return s.flush()
}

// Progress returns the persisted session state: the previous fix position
// (nil before the first fix), the running distance, and whether the next
// fix is the first of the session.
func (s *Store) Progress() (prev *geo.Point, totalDistanceM float64, firstFix bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.PreviousFix != nil {
		p := *s.data.PreviousFix
		prev = &p
	}
	return prev, s.data.TotalDistanceM, s.data.FirstFix
}

// SaveProgress persists the session state after an accepted fix.
func (s *Store) SaveProgress(prev geo.Point, totalDistanceM float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if totalDistanceM < s.data.TotalDistanceM {
		return fmt.Errorf("total distance must not decrease: %v < %v", totalDistanceM, s.data.TotalDistanceM)
	}
	s.data.PreviousFix = &prev
	s.data.TotalDistanceM = totalDistanceM
	s.data.FirstFix = false
	return s.flush()
}
