// Package tracker owns the tracking session lifecycle: it subscribes to the
// location source, accumulates distance, persists progress after every fix
// and hands each point to the upload worker.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gpstracker/internal/geo"
	"gpstracker/internal/location"
	"gpstracker/internal/settings"
	"gpstracker/internal/upload"
)

type State int

const (
	StateIdle State = iota
	StateStarting
	StateTracking
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateTracking:
		return "tracking"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

var (
	ErrAlreadyTracking = errors.New("tracking already active")
	ErrNotAuthorized   = errors.New("location authorization denied")
)

// Uploader delivers one record to the server with whatever retry policy it
// carries. *upload.Retrier satisfies it.
type Uploader interface {
	Upload(ctx context.Context, endpoint string, rec upload.Record) (upload.Status, error)
}

// Snapshot is the observable coordinator state handed to the UI layer.
type Snapshot struct {
	State          State
	SessionID      string
	LastFix        *location.Fix
	TotalDistanceM float64
	Upload         upload.Status
	StopReason     string
}

// uploadQueueSize bounds how many points may wait behind a retrying upload.
// Points arriving beyond that are dropped with a log line rather than
// growing the queue without bound.
const uploadQueueSize = 16

// Coordinator is the session state machine. One goroutine (the event loop)
// is the only mutator of session progress, and a single worker serializes
// uploads, so at most one upload is in flight and later points queue behind
// a retrying one.
type Coordinator struct {
	settings *settings.Store
	source   location.Source
	uploader Uploader
	log      zerolog.Logger

	mu             sync.Mutex
	state          State
	sessionID      string
	username       string
	appID          string
	endpoint       string
	lastFix        *location.Fix
	totalDistanceM float64
	uploadStatus   upload.Status
	stopReason     string
	cancel         context.CancelFunc
	runCtx         context.Context
	queue          chan upload.Record

	loopWG   sync.WaitGroup
	workerWG sync.WaitGroup

	onChange func(Snapshot)
}

func New(store *settings.Store, source location.Source, uploader Uploader, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		settings:     store,
		source:       source,
		uploader:     uploader,
		log:          log.With().Str("component", "tracker").Logger(),
		uploadStatus: upload.IdleStatus(),
	}
}

// OnChange registers the state observer. Must be set before Start.
func (c *Coordinator) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) snapshotLocked() Snapshot {
	var fix *location.Fix
	if c.lastFix != nil {
		f := *c.lastFix
		fix = &f
	}
	return Snapshot{
		State:          c.state,
		SessionID:      c.sessionID,
		LastFix:        fix,
		TotalDistanceM: c.totalDistanceM,
		Upload:         c.uploadStatus,
		StopReason:     c.stopReason,
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fn := c.onChange
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Start begins a new tracking session: fresh session id, distance reset to
// zero, location stream live. It is rejected while a session is active or
// when location authorization does not allow tracking.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyTracking
	}
	if !c.source.Authorization().Allows() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAuthorized, c.source.Authorization())
	}
	c.state = StateStarting
	c.mu.Unlock()
	c.notify()

	sessionID, endpoint, err := c.prepareSession()
	if err != nil {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		c.notify()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.sessionID = sessionID
	c.endpoint = endpoint
	c.lastFix = nil
	c.totalDistanceM = 0
	c.uploadStatus = upload.IdleStatus()
	c.stopReason = ""
	c.cancel = cancel
	c.runCtx = runCtx
	c.queue = make(chan upload.Record, uploadQueueSize)
	c.mu.Unlock()

	interval := time.Duration(c.settings.IntervalMinutes()) * time.Minute
	if err := c.source.Start(runCtx, interval); err != nil {
		cancel()
		c.rollbackSession()
		return fmt.Errorf("start location source: %w", err)
	}

	c.workerWG.Add(1)
	go c.uploadWorker(runCtx)
	c.loopWG.Add(1)
	go c.eventLoop(runCtx)

	c.mu.Lock()
	c.state = StateTracking
	c.mu.Unlock()
	c.notify()
	c.log.Info().Str("event", "tracking_started").Str("session_id", sessionID).Msg("")
	return nil
}

// prepareSession resolves identity and resets durable session state for a
// fresh start.
func (c *Coordinator) prepareSession() (sessionID, endpoint string, err error) {
	endpoint, err = upload.ResolveEndpoint(c.settings.ServerURL())
	if err != nil {
		return "", "", err
	}
	appID, err := c.settings.GetOrCreateAppID()
	if err != nil {
		return "", "", fmt.Errorf("resolve app id: %w", err)
	}
	sessionID, err = c.settings.GetOrCreateSessionID()
	if err != nil {
		return "", "", fmt.Errorf("create session id: %w", err)
	}
	if err := c.settings.ResetSession(); err != nil {
		return "", "", fmt.Errorf("reset session state: %w", err)
	}
	if err := c.settings.SetTracking(true); err != nil {
		return "", "", fmt.Errorf("persist tracking flag: %w", err)
	}

	c.mu.Lock()
	c.username = c.settings.Username()
	c.appID = appID
	c.mu.Unlock()
	return sessionID, endpoint, nil
}

func (c *Coordinator) rollbackSession() {
	_ = c.settings.ClearSessionID()
	_ = c.settings.SetTracking(false)
	c.mu.Lock()
	c.state = StateIdle
	c.sessionID = ""
	c.cancel = nil
	c.mu.Unlock()
	c.notify()
}

// Stop ends the active session on user request.
func (c *Coordinator) Stop() {
	c.stop("stopped by user", true)
}

func (c *Coordinator) stop(reason string, waitLoop bool) {
	c.mu.Lock()
	if c.state != StateTracking {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	cancel := c.cancel
	c.mu.Unlock()
	c.notify()

	cancel()
	c.source.Stop()
	if waitLoop {
		c.loopWG.Wait()
	}
	c.workerWG.Wait()

	if err := c.settings.ClearSessionID(); err != nil {
		c.log.Error().Err(err).Msg("clearing session id")
	}
	if err := c.settings.ResetSession(); err != nil {
		c.log.Error().Err(err).Msg("clearing session state")
	}
	if err := c.settings.SetTracking(false); err != nil {
		c.log.Error().Err(err).Msg("persisting tracking flag")
	}

	c.mu.Lock()
	c.state = StateIdle
	c.sessionID = ""
	c.stopReason = reason
	c.cancel = nil
	c.runCtx = nil
	c.mu.Unlock()
	c.notify()
	c.log.Info().Str("event", "tracking_stopped").Str("reason", reason).Msg("")
}

// SetIntervalMinutes persists a new sampling interval. While tracking, the
// location stream is restarted with the new hint; session id and distance
// are untouched.
func (c *Coordinator) SetIntervalMinutes(minutes int) error {
	if err := c.settings.SetIntervalMinutes(minutes); err != nil {
		return err
	}

	c.mu.Lock()
	tracking := c.state == StateTracking
	runCtx := c.runCtx
	c.mu.Unlock()
	if !tracking {
		return nil
	}

	c.source.Stop()
	if err := c.source.Start(runCtx, time.Duration(minutes)*time.Minute); err != nil {
		return fmt.Errorf("restart location source: %w", err)
	}
	c.log.Info().Str("event", "interval_changed").Int("minutes", minutes).Msg("")
	return nil
}

func (c *Coordinator) eventLoop(ctx context.Context) {
	defer c.loopWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fix := <-c.source.Fixes():
			c.handleFix(fix)
		case st := <-c.source.AuthChanges():
			if !st.Allows() {
				reason := "location authorization revoked: " + st.String()
				c.log.Warn().Str("event", "authorization_lost").Str("state", st.String()).Msg("")
				go c.stop(reason, true)
				return
			}
		case err := <-c.source.Errors():
			// transient provider trouble; no fix was delivered, tracking continues
			c.log.Warn().Str("event", "location_provider_error").Err(err).Msg("")
		}
	}
}

// handleFix is called only from the event loop: distance accumulation and
// persistence for one fix always complete before the next is processed.
func (c *Coordinator) handleFix(fix location.Fix) {
	fix = fix.Normalize()
	point := geo.Point{Lat: fix.Latitude, Lng: fix.Longitude}

	prev, total, first := c.settings.Progress()
	inc := geo.Increment(prev, point)

	if filter := c.settings.DistanceFilterM(); filter > 0 && prev != nil && inc < float64(filter) {
		c.log.Debug().Str("event", "fix_filtered").Float64("increment_m", inc).Msg("")
		return
	}

	total += inc
	if err := c.settings.SaveProgress(point, total); err != nil {
		// skip the upload rather than send a point that disagrees with
		// what we could not persist
		c.log.Error().Str("event", "persist_failed").Err(err).Msg("")
		return
	}

	c.mu.Lock()
	c.lastFix = &fix
	c.totalDistanceM = total
	rec := upload.NewRecord(fix, c.username, c.appID, c.sessionID, total, eventTypeFor(first))
	queue := c.queue
	c.mu.Unlock()
	c.notify()

	select {
	case queue <- rec:
	default:
		c.log.Warn().Str("event", "upload_queue_full").Msg("dropping point")
	}
}

func eventTypeFor(firstFix bool) string {
	if firstFix {
		return upload.EventStart
	}
	return upload.EventUpdate
}

// uploadWorker is the single goroutine performing uploads; points queue
// behind a retrying upload instead of spawning concurrent requests.
func (c *Coordinator) uploadWorker(ctx context.Context) {
	defer c.workerWG.Done()

	c.mu.Lock()
	endpoint := c.endpoint
	queue := c.queue
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-queue:
			c.setUploadStatus(ctx, upload.Status{Kind: upload.StatusUploading, At: time.Now()})
			st, err := c.uploader.Upload(ctx, endpoint, rec)
			if err != nil {
				// cancelled mid-retry; never publish a stale status
				return
			}
			c.setUploadStatus(ctx, st)
		}
	}
}

func (c *Coordinator) setUploadStatus(ctx context.Context, st upload.Status) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.uploadStatus = st
	c.mu.Unlock()
	c.notify()
}
