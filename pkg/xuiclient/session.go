package xuiclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xui-sync/internal/constants"
	apperrors "xui-sync/internal/errors"
)

// NewHTTPClient builds the resty client shared by all panel calls
func NewHTTPClient() *resty.Client {
	return resty.New().
		SetTimeout(constants.DefaultTimeout * time.Second).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
}

// SessionManager obtains and caches an authenticated session per server.
// Authentication is serialized per server so concurrent callers never
// race to log in twice; unrelated servers authenticate independently.
type SessionManager struct {
	httpClient *resty.Client
	sessions   *cache.Cache
	lifetime   time.Duration
	mu         sync.Mutex
	locks      map[uint]*sync.Mutex
	logger     *logrus.Logger
}

// NewSessionManager creates a session manager with the default session lifetime
func NewSessionManager(httpClient *resty.Client, logger *logrus.Logger) *SessionManager {
	return NewSessionManagerWithLifetime(httpClient, constants.SessionLifetime*time.Minute, logger)
}

// NewSessionManagerWithLifetime creates a session manager with an explicit
// session lifetime, used by tests exercising expiry
func NewSessionManagerWithLifetime(httpClient *resty.Client, lifetime time.Duration, logger *logrus.Logger) *SessionManager {
	return &SessionManager{
		httpClient: httpClient,
		sessions:   cache.New(lifetime, constants.CacheCleanupInterval*time.Minute),
		lifetime:   lifetime,
		locks:      make(map[uint]*sync.Mutex),
		logger:     logger,
	}
}

// EnsureSession returns a cached, unexpired session cookie set for the
// server, logging in if none is cached
func (m *SessionManager) EnsureSession(ctx context.Context, server Server) ([]*http.Cookie, error) {
	key := sessionKey(server.ID)
	if cookies, found := m.sessions.Get(key); found {
		return cookies.([]*http.Cookie), nil
	}

	lock := m.serverLock(server.ID)
	lock.Lock()
	defer lock.Unlock()

	// Another caller may have logged in while we waited for the lock
	if cookies, found := m.sessions.Get(key); found {
		return cookies.([]*http.Cookie), nil
	}

	cookies, err := m.login(ctx, server)
	if err != nil {
		return nil, err
	}

	m.sessions.Set(key, cookies, m.lifetime)
	return cookies, nil
}

// Invalidate clears the cached session for a server. The next call will
// authenticate from scratch.
func (m *SessionManager) Invalidate(serverID uint) {
	m.sessions.Delete(sessionKey(serverID))
}

// login authenticates against the server's login endpoint
func (m *SessionManager) login(ctx context.Context, server Server) ([]*http.Cookie, error) {
	m.logger.Infof("Logging in to panel at %s", server.BaseURL)

	resp, err := m.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": server.Username,
			"password": server.Password,
		}).
		Post(fmt.Sprintf("%s/login", server.BaseURL))

	if err != nil {
		return nil, &apperrors.AuthenticationError{ServerID: server.ID, Message: err.Error()}
	}

	if resp.StatusCode() != http.StatusOK {
		m.logger.Errorf("Login failed - URL: %s/login, Status: %d, Response: %s",
			server.BaseURL, resp.StatusCode(), string(resp.Body()))
		return nil, &apperrors.AuthenticationError{
			ServerID: server.ID,
			Message:  fmt.Sprintf("status %d", resp.StatusCode()),
		}
	}

	var apiResp APIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return nil, &apperrors.AuthenticationError{
			ServerID: server.ID,
			Message:  fmt.Sprintf("malformed login response: %v", err),
		}
	}

	if !apiResp.Success {
		return nil, &apperrors.AuthenticationError{ServerID: server.ID, Message: apiResp.Msg}
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return nil, &apperrors.AuthenticationError{
			ServerID: server.ID,
			Message:  "no session cookie received from server",
		}
	}

	m.logger.Infof("Successfully logged in to panel %s", server.BaseURL)
	return cookies, nil
}

// serverLock returns the login mutex for one server
func (m *SessionManager) serverLock(serverID uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[serverID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[serverID] = lock
	}
	return lock
}

func sessionKey(serverID uint) string {
	return fmt.Sprintf("session:%d", serverID)
}
