// Package hub talks to the external Hub authentication service: SSO token validation,
// health probing, and reading its replicated session-liveness table.
package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	validatePath = "/api/sso/validate-token"
	healthPath   = "/api/health"

	defaultValidateTimeout = 10 * time.Second
	defaultHealthTimeout   = 5 * time.Second

	// maxBodyBytes bounds how much of a Hub response is read.
	maxBodyBytes = 1 << 20
)

var (
	// ErrHubUnavailable is returned when the Hub cannot be reached or answers with an unusable body.
	ErrHubUnavailable = errors.New("hub unavailable")
	// ErrHubTimeout is returned when the Hub does not answer within the configured timeout.
	ErrHubTimeout = errors.New("hub timeout")
)

// RejectedError is returned when the Hub answered and refused the token.
type RejectedError struct {
	// StatusCode is the Hub's HTTP status (200 when the body carried success:false).
	StatusCode int
	// Code is the Hub's machine-readable error, if any.
	Code string
	// Message is the Hub's human-readable message, if any.
	Message string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hub rejected token: status=%d error=%s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("hub rejected token: status=%d", e.StatusCode)
}

// Identity is the user returned by the Hub for a valid SSO token.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type validateRequest struct {
	Token   string `json:"token"`
	Service string `json:"service"`
}

type validateResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Data    struct {
		User *Identity `json:"user"`
	} `json:"data"`
}

// Client calls the Hub over HTTP.
type Client struct {
	BaseURL         string
	Service         string
	ValidateTimeout time.Duration
	HealthTimeout   time.Duration
	// MaxAttempts bounds attempts on transport failures. Timeouts and Hub answers are never retried.
	MaxAttempts uint
	HTTPClient  *http.Client
}

// NewClient returns a Client for the Hub at baseURL identifying itself as service.
// Zero timeouts fall back to 10s (validate) and 5s (health).
func NewClient(baseURL, service string, validateTimeout, healthTimeout time.Duration, maxAttempts int) *Client {
	if validateTimeout <= 0 {
		validateTimeout = defaultValidateTimeout
	}
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Client{
		BaseURL:         strings.TrimSuffix(baseURL, "/"),
		Service:         service,
		ValidateTimeout: validateTimeout,
		HealthTimeout:   healthTimeout,
		MaxAttempts:     uint(maxAttempts),
		HTTPClient:      &http.Client{},
	}
}

// ValidateSSOToken asks the Hub whether token is valid for this service.
// Returns *RejectedError when the Hub refuses it, ErrHubTimeout when the call exceeds ValidateTimeout,
// and ErrHubUnavailable for network failures or malformed answers. If ctx is canceled first, its error
// is returned.
func (c *Client) ValidateSSOToken(ctx context.Context, token string) (*Identity, error) {
	raw, err := json.Marshal(validateRequest{Token: token, Service: c.Service})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.ValidateTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = time.Second

	id, err := backoff.Retry(ctx, func() (*Identity, error) {
		return c.validateOnce(ctx, raw)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.MaxAttempts))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if ctx.Err() != nil && !isRejected(err) {
			return nil, contextError(ctx)
		}
		return nil, err
	}
	return id, nil
}

// validateOnce makes a single attempt. Only failures to reach the Hub are retryable: once the Hub
// has answered, the token may already be consumed, so every other outcome is permanent.
func (c *Client) validateOnce(ctx context.Context, raw []byte) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+validatePath, bytes.NewReader(raw))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		if errors.Is(err, ErrHubTimeout) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, backoff.Permanent(classifyTransportError(err))
	}
	var parsed validateResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rej := &RejectedError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			rej.Code, rej.Message = parsed.Error, parsed.Message
		}
		return nil, backoff.Permanent(rej)
	}
	if decodeErr != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: malformed response: %v", ErrHubUnavailable, decodeErr))
	}
	if !parsed.Success {
		return nil, backoff.Permanent(&RejectedError{StatusCode: resp.StatusCode, Code: parsed.Error, Message: parsed.Message})
	}
	if parsed.Data.User == nil || parsed.Data.User.ID == "" {
		return nil, backoff.Permanent(fmt.Errorf("%w: response without user id", ErrHubUnavailable))
	}
	return parsed.Data.User, nil
}

// CheckHealthy probes the Hub health endpoint within HealthTimeout. Returns nil on 2xx.
func (c *Client) CheckHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return contextError(ctx)
		}
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: health status=%d", ErrHubUnavailable, resp.StatusCode)
	}
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrHubTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrHubTimeout
	}
	return fmt.Errorf("%w: %v", ErrHubUnavailable, err)
}

// contextError maps a finished context to ErrHubTimeout when its deadline passed. A cancellation
// (e.g. the caller went away) is returned as is.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrHubTimeout
	}
	return ctx.Err()
}

func isRejected(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej)
}
