package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StatusKind is the observable outcome of the most recent upload.
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusUploading
	StatusSuccess
	StatusFailure
)

func (k StatusKind) String() string {
	switch k {
	case StatusUploading:
		return "uploading"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "idle"
	}
}

type Status struct {
	Kind    StatusKind
	At      time.Time
	Message string
}

func IdleStatus() Status { return Status{Kind: StatusIdle} }

// Sender is one upload attempt. *Client satisfies it; tests substitute stubs.
type Sender interface {
	Send(ctx context.Context, endpoint string, rec Record) (ServerAck, error)
}

const (
	maxAttempts = 3
	backoffUnit = time.Second
)

// Retrier wraps a Sender with the bounded backoff policy: at most three
// attempts, waiting n seconds before attempt n+1. The retry loop runs on the
// upload worker and aborts between attempts when the context is cancelled,
// reporting the cancellation instead of a stale status.
type Retrier struct {
	sender Sender
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewRetrier(sender Sender, log zerolog.Logger) *Retrier {
	return &Retrier{
		sender: sender,
		log:    log.With().Str("component", "uploader").Logger(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Upload attempts to deliver one record until it succeeds or attempts are
// exhausted, and returns the terminal status. A non-nil error means the
// context was cancelled and no status should be published.
func (r *Retrier) Upload(ctx context.Context, endpoint string, rec Record) (Status, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, backoffUnit*time.Duration(attempt-1)); err != nil {
				return Status{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return Status{}, err
		}

		_, err := r.sender.Send(ctx, endpoint, rec)
		if err == nil {
			return Status{Kind: StatusSuccess, At: r.now()}, nil
		}
		if ctx.Err() != nil {
			return Status{}, ctx.Err()
		}
		lastErr = err
		r.log.Warn().Str("event", "upload_attempt_failed").Int("attempt", attempt).Err(err).Msg("")
	}
	return Status{Kind: StatusFailure, At: r.now(), Message: lastErr.Error()}, nil
}
