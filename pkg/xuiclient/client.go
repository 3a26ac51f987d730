package xuiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "xui-sync/internal/errors"
)

// Client provides typed operations against one remote panel server.
// Every remote call goes through the executor's retry loop.
type Client struct {
	httpClient *resty.Client
	exec       *Executor
	server     Server
	logger     *logrus.Logger
}

// NewClient creates a panel client for one server
func NewClient(server Server, httpClient *resty.Client, exec *Executor, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		exec:       exec,
		server:     server,
		logger:     logger,
	}
}

// Server returns the server this client talks to
func (c *Client) Server() Server {
	return c.server
}

// ListInbounds gets all inbounds from the panel
func (c *Client) ListInbounds(ctx context.Context) ([]Inbound, error) {
	apiResp, err := c.exec.Do(ctx, c.server, "listInbounds", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Get(fmt.Sprintf("%s/xui/API/inbounds", c.server.BaseURL))
	})
	if err != nil {
		return nil, err
	}

	var inbounds []Inbound
	if err := json.Unmarshal(apiResp.Obj, &inbounds); err != nil {
		return nil, &apperrors.RemoteCallError{
			ServerID: c.server.ID, Operation: "listInbounds", Attempts: c.exec.LastAttempts(),
			Err: fmt.Errorf("failed to unmarshal inbounds: %w", err),
		}
	}

	return inbounds, nil
}

// GetInbound gets a single inbound by its remote identifier
func (c *Client) GetInbound(ctx context.Context, inboundID int) (*Inbound, error) {
	apiResp, err := c.exec.Do(ctx, c.server, "getInbound", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Get(fmt.Sprintf("%s/xui/API/inbounds/get/%d", c.server.BaseURL, inboundID))
	})
	if err != nil {
		if apperrors.IsRemoteRejected(err) {
			return nil, &apperrors.NotFoundError{Kind: "inbound", Key: fmt.Sprintf("%d", inboundID)}
		}
		return nil, err
	}

	var inbound Inbound
	if err := json.Unmarshal(apiResp.Obj, &inbound); err != nil {
		return nil, &apperrors.RemoteCallError{
			ServerID: c.server.ID, Operation: "getInbound", Attempts: c.exec.LastAttempts(),
			Err: fmt.Errorf("failed to unmarshal inbound: %w", err),
		}
	}

	return &inbound, nil
}

// AddClient creates a client on an inbound. The protocol-appropriate
// identifier (uuid or password) and subscription id are generated here.
func (c *Client) AddClient(ctx context.Context, inbound *Inbound, spec ClientSpec) (*ClientSettings, error) {
	settings := ClientSettings{
		Email:      spec.Label,
		TotalGB:    spec.TotalBytes,
		LimitIP:    spec.LimitIP,
		ExpiryTime: spec.ExpiryTime,
		Enable:     true,
		SubID:      GenerateToken(),
	}

	switch inbound.Protocol {
	case ProtocolVmess, ProtocolVless:
		settings.ID = uuid.NewString()
	default:
		settings.Password = GenerateToken()
	}

	payload := map[string]interface{}{
		"clients": []ClientSettings{settings},
	}
	settingsJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal client settings: %w", err)
	}

	requestBody := map[string]interface{}{
		"id":       inbound.ID,
		"settings": string(settingsJSON),
	}

	c.logger.Infof("Adding client %s to inbound %d on server %d", spec.Label, inbound.ID, c.server.ID)

	_, err = c.exec.Do(ctx, c.server, "addClient", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			SetBody(requestBody).
			Post(fmt.Sprintf("%s/xui/API/inbounds/addClient", c.server.BaseURL))
	})
	if err != nil {
		return nil, err
	}

	c.logger.Infof("Successfully added client %s to inbound %d", spec.Label, inbound.ID)
	return &settings, nil
}

// RemoveClient deletes a client from an inbound by its remote identifier
func (c *Client) RemoveClient(ctx context.Context, inboundID int, clientID string) error {
	c.logger.Debugf("Deleting client %s from inbound %d on server %d", clientID, inboundID, c.server.ID)

	_, err := c.exec.Do(ctx, c.server, "removeClient", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Post(fmt.Sprintf("%s/xui/API/inbounds/%d/delClient/%s", c.server.BaseURL, inboundID, clientID))
	})
	if err != nil && apperrors.IsRemoteRejected(err) {
		return &apperrors.NotFoundError{Kind: "client", Key: clientID}
	}
	return err
}

// UpdateClient replaces a client's settings on an inbound, used for
// traffic-limit and expiry adjustments
func (c *Client) UpdateClient(ctx context.Context, inboundID int, clientID string, settings ClientSettings) error {
	payload := map[string]interface{}{
		"clients": []ClientSettings{settings},
	}
	settingsJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal client settings: %w", err)
	}

	requestBody := map[string]interface{}{
		"id":       inboundID,
		"settings": string(settingsJSON),
	}

	_, err = c.exec.Do(ctx, c.server, "updateClient", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			SetBody(requestBody).
			Post(fmt.Sprintf("%s/xui/API/inbounds/updateClient/%s", c.server.BaseURL, clientID))
	})
	return err
}

// GetClientTraffic gets the traffic counters for one client by label
func (c *Client) GetClientTraffic(ctx context.Context, label string) (*ClientTraffic, error) {
	apiResp, err := c.exec.Do(ctx, c.server, "getClientTraffic", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Get(fmt.Sprintf("%s/xui/API/inbounds/getClientTraffics/%s", c.server.BaseURL, label))
	})
	if err != nil {
		return nil, err
	}

	var traffic ClientTraffic
	if err := json.Unmarshal(apiResp.Obj, &traffic); err != nil {
		return nil, &apperrors.RemoteCallError{
			ServerID: c.server.ID, Operation: "getClientTraffic", Attempts: c.exec.LastAttempts(),
			Err: fmt.Errorf("failed to unmarshal client traffic: %w", err),
		}
	}
	if traffic.Email == "" {
		return nil, &apperrors.NotFoundError{Kind: "client", Key: label}
	}

	return &traffic, nil
}

// ResetClientTraffic zeroes the traffic counters for one client
func (c *Client) ResetClientTraffic(ctx context.Context, inboundID int, label string) error {
	c.logger.Debugf("Resetting traffic for client %s in inbound %d", label, inboundID)

	_, err := c.exec.Do(ctx, c.server, "resetClientTraffic", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Post(fmt.Sprintf("%s/xui/API/inbounds/%d/resetClientTraffic/%s", c.server.BaseURL, inboundID, label))
	})
	return err
}

// GetOnlineClients gets the labels of clients with active connections
func (c *Client) GetOnlineClients(ctx context.Context) ([]string, error) {
	apiResp, err := c.exec.Do(ctx, c.server, "getOnlineClients", func(ctx context.Context, cookies []*http.Cookie) (*resty.Response, error) {
		return c.httpClient.R().
			SetContext(ctx).
			SetCookies(cookies).
			Post(fmt.Sprintf("%s/xui/API/inbounds/onlines", c.server.BaseURL))
	})
	if err != nil {
		return nil, err
	}

	var online []string
	if err := json.Unmarshal(apiResp.Obj, &online); err != nil {
		return nil, &apperrors.RemoteCallError{
			ServerID: c.server.ID, Operation: "getOnlineClients", Attempts: c.exec.LastAttempts(),
			Err: fmt.Errorf("failed to unmarshal online clients: %w", err),
		}
	}

	return online, nil
}
