package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Kind classifies a failed upload attempt.
type Kind int

const (
	KindNetwork Kind = iota
	KindServerRejected
	KindInvalidResponse
	KindMalformedURL
)

func (k Kind) String() string {
	switch k {
	case KindServerRejected:
		return "server-rejected"
	case KindInvalidResponse:
		return "invalid-server-response"
	case KindMalformedURL:
		return "malformed-target-url"
	default:
		return "network"
	}
}

type Error struct {
	Kind       Kind
	StatusCode int
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindServerRejected:
		return fmt.Sprintf("server rejected upload: status %d: %s", e.StatusCode, e.Body)
	case KindInvalidResponse:
		return fmt.Sprintf("server reported logical failure: %q", e.Body)
	case KindMalformedURL:
		return fmt.Sprintf("malformed target url: %q", e.Body)
	default:
		return fmt.Sprintf("upload network failure: %v", e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// ServerAck is the raw transport-level acknowledgement of one accepted point.
type ServerAck struct {
	StatusCode int
	Body       string
}

// errorSentinel is the body the legacy servers return on logical failure
// even when the HTTP status is 2xx.
const errorSentinel = "-1"

// Client performs exactly one upload attempt per call; retry policy lives in
// Retrier. It is called only from the upload worker, never from the goroutine
// receiving fixes.
type Client struct {
	http *http.Client
	log  zerolog.Logger
}

func NewClient(log zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log.With().Str("component", "upload-client").Logger(),
	}
}

func (c *Client) Send(ctx context.Context, endpoint string, rec Record) (ServerAck, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(rec.Values().Encode()))
	if err != nil {
		return ServerAck{}, &Error{Kind: KindMalformedURL, Body: endpoint, Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return ServerAck{}, &Error{Kind: KindNetwork, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return ServerAck{}, &Error{Kind: KindNetwork, Cause: err}
	}
	body := strings.TrimSpace(string(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ServerAck{}, &Error{Kind: KindServerRejected, StatusCode: resp.StatusCode, Body: body}
	}
	if body == errorSentinel {
		return ServerAck{}, &Error{Kind: KindInvalidResponse, StatusCode: resp.StatusCode, Body: body}
	}

	c.log.Debug().Str("event", "point_uploaded").Int("status", resp.StatusCode).Str("session_id", rec.SessionID).Msg("")
	return ServerAck{StatusCode: resp.StatusCode, Body: body}, nil
}
