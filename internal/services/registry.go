package services

import (
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"xui-sync/internal/models"
	"xui-sync/pkg/xuiclient"
)

// GatewayRegistry builds and caches one panel gateway per server.
// Sessions are shared through a single session manager so authentication
// stays single-flight per server.
type GatewayRegistry struct {
	httpClient *resty.Client
	sessions   *xuiclient.SessionManager
	policy     xuiclient.RetryPolicy
	logger     *logrus.Logger

	mu      sync.Mutex
	entries map[uint]*registryEntry
}

type registryEntry struct {
	configKey string
	gateway   *xuiclient.Client
}

// NewGatewayRegistry creates a gateway registry
func NewGatewayRegistry(policy xuiclient.RetryPolicy, logger *logrus.Logger) *GatewayRegistry {
	httpClient := xuiclient.NewHTTPClient()
	return &GatewayRegistry{
		httpClient: httpClient,
		sessions:   xuiclient.NewSessionManager(httpClient, logger),
		policy:     policy,
		logger:     logger,
		entries:    make(map[uint]*registryEntry),
	}
}

// Gateway returns the cached gateway for a server, rebuilding it when
// the server's address or credentials changed
func (r *GatewayRegistry) Gateway(server *models.Server) PanelGateway {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := configKey(server)
	if entry, ok := r.entries[server.ID]; ok && entry.configKey == key {
		return entry.gateway
	}

	r.sessions.Invalidate(server.ID)
	exec := xuiclient.NewExecutor(r.sessions, r.policy, r.logger)
	gateway := xuiclient.NewClient(toClientServer(server), r.httpClient, exec, r.logger)
	r.entries[server.ID] = &registryEntry{configKey: key, gateway: gateway}

	return gateway
}

func toClientServer(server *models.Server) xuiclient.Server {
	return xuiclient.Server{
		ID:        server.ID,
		Name:      server.Name,
		BaseURL:   server.BaseURL,
		Username:  server.Username,
		Password:  server.Password,
		SubPrefix: server.SubPrefix,
	}
}

func configKey(server *models.Server) string {
	return fmt.Sprintf("%s|%s|%s|%s", server.BaseURL, server.Username, server.Password, server.SubPrefix)
}
