package xuiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"xui-sync/internal/constants"
	apperrors "xui-sync/internal/errors"
)

// RequestFn performs one authenticated call against a panel endpoint
type RequestFn func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error)

// RetryPolicy controls how the executor retries failed remote calls
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	// Sleep is overridable so tests run with a fake clock
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the standard bounded-retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: constants.DefaultMaxAttempts,
		Backoff:     FixedBackoff(constants.DefaultRetryWait * time.Second),
		Sleep:       sleepWithContext,
	}
}

// FixedBackoff waits the same duration between every attempt
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration {
		return d
	}
}

// ExponentialBackoff doubles the wait per attempt up to a cap
func ExponentialBackoff(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base << (attempt - 1)
		if d > max {
			return max
		}
		return d
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor wraps panel calls with session handling and bounded retry.
// A call that appears to have been silently redirected to the login page
// invalidates the cached session and retries with a fresh one.
type Executor struct {
	sessions *SessionManager
	policy   RetryPolicy
	logger   *logrus.Logger
	attempts atomic.Int32
}

// NewExecutor creates an executor with the given retry policy
func NewExecutor(sessions *SessionManager, policy RetryPolicy, logger *logrus.Logger) *Executor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = constants.DefaultMaxAttempts
	}
	if policy.Backoff == nil {
		policy.Backoff = FixedBackoff(constants.DefaultRetryWait * time.Second)
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepWithContext
	}
	return &Executor{
		sessions: sessions,
		policy:   policy,
		logger:   logger,
	}
}

// LastAttempts reports how many attempts the most recent call consumed
func (e *Executor) LastAttempts() int {
	return int(e.attempts.Load())
}

// Do runs the request through the retry loop and returns the decoded
// success envelope. A structured panel rejection (success=false) is
// returned immediately as RemoteRejectedError and never retried.
func (e *Executor) Do(ctx context.Context, server Server, operation string, fn RequestFn) (*APIResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		e.attempts.Store(int32(attempt))

		apiResp, retryable, err := e.attemptOnce(ctx, server, operation, fn)
		if err == nil {
			return apiResp, nil
		}
		if !retryable {
			return nil, err
		}

		lastErr = err
		if attempt == e.policy.MaxAttempts {
			break
		}

		wait := e.policy.Backoff(attempt)
		e.logger.Warnf("Call %s on server %d failed (attempt %d/%d), retrying in %s: %v",
			operation, server.ID, attempt, e.policy.MaxAttempts, wait, err)
		if err := e.policy.Sleep(ctx, wait); err != nil {
			return nil, &apperrors.RemoteCallError{
				ServerID: server.ID, Operation: operation, Attempts: attempt, Err: err,
			}
		}
	}

	if apperrors.IsAuthentication(lastErr) {
		return nil, lastErr
	}
	return nil, &apperrors.RemoteCallError{
		ServerID:  server.ID,
		Operation: operation,
		Attempts:  e.policy.MaxAttempts,
		Err:       lastErr,
	}
}

// attemptOnce performs a single authenticated attempt. The second return
// value reports whether the failure is retryable.
func (e *Executor) attemptOnce(ctx context.Context, server Server, operation string, fn RequestFn) (*APIResponse, bool, error) {
	cookies, err := e.sessions.EnsureSession(ctx, server)
	if err != nil {
		return nil, true, err
	}

	resp, err := fn(ctx, cookies)
	if err != nil {
		return nil, true, err
	}

	if sessionRejected(resp) {
		e.logger.Debugf("Session rejected by server %d during %s, re-authenticating", server.ID, operation)
		e.sessions.Invalidate(server.ID)
		return nil, true, &apperrors.RemoteCallError{
			ServerID: server.ID, Operation: operation, Attempts: 1,
			Err: errSessionRejected,
		}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, true, &apperrors.RemoteCallError{
			ServerID: server.ID, Operation: operation, Attempts: 1,
			Err: &httpStatusError{Status: resp.StatusCode(), Body: string(resp.Body())},
		}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, true, &apperrors.RemoteCallError{
			ServerID: server.ID, Operation: operation, Attempts: 1, Err: err,
		}
	}

	if !apiResp.Success {
		return nil, false, &apperrors.RemoteRejectedError{Operation: operation, Message: apiResp.Msg}
	}

	return &apiResp, false, nil
}

// sessionRejected detects an expired session: the panel answers 401, or
// serves its HTML login page instead of a JSON envelope
func sessionRejected(resp *resty.Response) bool {
	if resp.StatusCode() == http.StatusUnauthorized {
		return true
	}
	contentType := resp.Header().Get("Content-Type")
	if resp.StatusCode() == http.StatusOK && strings.Contains(contentType, "text/html") {
		return true
	}
	return false
}

type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	return "unexpected status " + http.StatusText(e.Status) + ": " + e.Body
}

var errSessionRejected = &httpStatusError{Status: http.StatusUnauthorized, Body: "session rejected"}
