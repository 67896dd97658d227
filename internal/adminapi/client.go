// Package adminapi is the HTTP client a presenter view uses for admin reads and writes.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aura-pulse/backend/internal/auth"
	"github.com/aura-pulse/backend/internal/events"
	"github.com/aura-pulse/backend/internal/realtime"
	"github.com/aura-pulse/backend/internal/sessions"
	"github.com/aura-pulse/backend/pkg/response"
)

// ErrRejected is returned when the server answers with success:false.
var ErrRejected = errors.New("request rejected by server")

// maxBody caps how much of a response is read.
const maxBody = 8 << 20

// Client calls the admin API with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. A nil httpClient gets a 15s timeout.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// Token returns the bearer token in use.
func (c *Client) Token() string { return c.token }

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (auth.TokenResponse, error) {
	out, err := do[auth.TokenResponse](ctx, c, http.MethodPost, "/auth/login", auth.LoginRequest{Email: email, Password: password})
	if err != nil {
		return out, err
	}
	c.token = out.Token
	return out, nil
}

// EndSession soft-ends a session. It fails unless the server reports the session inactive.
func (c *Client) EndSession(ctx context.Context, sessionID uuid.UUID) (sessions.EndResult, error) {
	out, err := do[sessions.EndResult](ctx, c, http.MethodPost, "/api/sessions/"+sessionID.String()+"/end", nil)
	if err != nil {
		return out, err
	}
	if out.IsActive {
		return out, fmt.Errorf("end session: %w: session still active", ErrRejected)
	}
	return out, nil
}

// RemoveParticipant deletes a participant from a session.
func (c *Client) RemoveParticipant(ctx context.Context, sessionID, participantID uuid.UUID) error {
	_, err := do[json.RawMessage](ctx, c, http.MethodDelete,
		"/api/sessions/"+sessionID.String()+"/participants/"+participantID.String(), nil)
	return err
}

// Snapshot loads a session and its participants.
func (c *Client) Snapshot(ctx context.Context, sessionID uuid.UUID) (events.Snapshot, error) {
	out, err := do[sessions.SnapshotResponse](ctx, c, http.MethodGet, "/api/sessions/"+sessionID.String()+"/snapshot", nil)
	if err != nil {
		return events.Snapshot{}, err
	}
	return events.Snapshot{SessionID: out.Session.ID, State: out.Session, Participants: out.Participants}, nil
}

// Capabilities reports whether a session can be streamed and the poll interval to use if not.
func (c *Client) Capabilities(ctx context.Context, sessionID uuid.UUID) (realtime.Capabilities, error) {
	return do[realtime.Capabilities](ctx, c, http.MethodGet, "/api/sessions/"+sessionID.String()+"/capabilities", nil)
}

// Probe adapts Capabilities for one session to streamclient.CapabilityProbe.
func (c *Client) Probe(sessionID uuid.UUID) *Probe { return &Probe{client: c, sessionID: sessionID} }

// Probe checks one session's stream capabilities.
type Probe struct {
	client    *Client
	sessionID uuid.UUID
}

func (p *Probe) Capabilities(ctx context.Context) (bool, time.Duration, error) {
	caps, err := p.client.Capabilities(ctx, p.sessionID)
	if err != nil {
		return false, 0, err
	}
	return caps.Streaming, time.Duration(caps.PollIntervalMs) * time.Millisecond, nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// Unwrap lets errors.Is(err, ErrRejected) match any failed response.
func (e *StatusError) Unwrap() error { return ErrRejected }

func do[T any](ctx context.Context, c *Client, method, path string, body any) (T, error) {
	var zero T
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return zero, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	env, decodeErr := response.Decode[T](raw)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return zero, &StatusError{Status: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("%s %s: decode: %w", method, path, decodeErr)
	}
	if !env.Success {
		if env.Error != "" {
			return zero, fmt.Errorf("%w: %s", ErrRejected, env.Error)
		}
		return zero, ErrRejected
	}
	return env.Data, nil
}
