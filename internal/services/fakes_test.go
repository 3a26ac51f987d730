package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "xui-sync/internal/errors"
	"xui-sync/internal/models"
	"xui-sync/internal/repository"
	"xui-sync/pkg/xuiclient"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

const fakeUUID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

// fakeGateway implements PanelGateway with scripted responses
type fakeGateway struct {
	server   xuiclient.Server
	inbounds []xuiclient.Inbound
	online   []string

	listErr   error
	onlineErr error
	addErr    error
	removeErr error
	updateErr error
	resetErr  error

	addCalls    int
	removeCalls int
	updateCalls int
	resetCalls  int
	lastSpec    xuiclient.ClientSpec
	lastUpdate  xuiclient.ClientSettings

	// optional hooks for blocking a list call mid-flight
	listStarted chan struct{}
	listRelease chan struct{}
}

func (g *fakeGateway) Server() xuiclient.Server { return g.server }

func (g *fakeGateway) ListInbounds(ctx context.Context) ([]xuiclient.Inbound, error) {
	if g.listStarted != nil {
		g.listStarted <- struct{}{}
	}
	if g.listRelease != nil {
		<-g.listRelease
	}
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.inbounds, nil
}

func (g *fakeGateway) GetInbound(ctx context.Context, inboundID int) (*xuiclient.Inbound, error) {
	for i := range g.inbounds {
		if g.inbounds[i].ID == inboundID {
			return &g.inbounds[i], nil
		}
	}
	return nil, &apperrors.NotFoundError{Kind: "inbound", Key: fmt.Sprintf("%d", inboundID)}
}

func (g *fakeGateway) AddClient(ctx context.Context, inbound *xuiclient.Inbound, spec xuiclient.ClientSpec) (*xuiclient.ClientSettings, error) {
	g.addCalls++
	g.lastSpec = spec
	if g.addErr != nil {
		return nil, g.addErr
	}
	return &xuiclient.ClientSettings{
		ID:         fakeUUID,
		Email:      spec.Label,
		TotalGB:    spec.TotalBytes,
		ExpiryTime: spec.ExpiryTime,
		Enable:     true,
		SubID:      "subtoken123",
	}, nil
}

func (g *fakeGateway) RemoveClient(ctx context.Context, inboundID int, clientID string) error {
	g.removeCalls++
	return g.removeErr
}

func (g *fakeGateway) UpdateClient(ctx context.Context, inboundID int, clientID string, settings xuiclient.ClientSettings) error {
	g.updateCalls++
	g.lastUpdate = settings
	return g.updateErr
}

func (g *fakeGateway) GetClientTraffic(ctx context.Context, label string) (*xuiclient.ClientTraffic, error) {
	for i := range g.inbounds {
		for _, stat := range g.inbounds[i].ClientStats {
			if stat.Email == label {
				return &stat, nil
			}
		}
	}
	return nil, &apperrors.NotFoundError{Kind: "client traffic", Key: label}
}

func (g *fakeGateway) ResetClientTraffic(ctx context.Context, inboundID int, label string) error {
	g.resetCalls++
	return g.resetErr
}

func (g *fakeGateway) GetOnlineClients(ctx context.Context) ([]string, error) {
	if g.onlineErr != nil {
		return nil, g.onlineErr
	}
	return g.online, nil
}

// fakeProvider hands every server the same gateway
type fakeProvider struct {
	gateway *fakeGateway
}

func (p *fakeProvider) Gateway(server *models.Server) PanelGateway { return p.gateway }

type fakeServers struct {
	servers map[uint]*models.Server
}

func (s *fakeServers) GetByID(ctx context.Context, id uint) (*models.Server, error) {
	server, ok := s.servers[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "server", Key: fmt.Sprintf("%d", id)}
	}
	return server, nil
}

func (s *fakeServers) ListEnabled(ctx context.Context) ([]models.Server, error) {
	var out []models.Server
	for _, server := range s.servers {
		if server.Enable {
			out = append(out, *server)
		}
	}
	return out, nil
}

// fakeMirrors keeps mirror rows in maps and records applied snapshots
type fakeMirrors struct {
	mu sync.Mutex

	applied     []*repository.ServerSnapshot
	applyErr    error
	applyResult repository.ApplyResult

	inbounds      map[uint]*models.Inbound
	clients       map[uint]*models.Client
	nextInboundID uint
	nextClientID  uint

	createErr error
	deleteErr error
}

func newFakeMirrors() *fakeMirrors {
	return &fakeMirrors{
		inbounds: make(map[uint]*models.Inbound),
		clients:  make(map[uint]*models.Client),
	}
}

func (m *fakeMirrors) ApplyServerSnapshot(ctx context.Context, snap *repository.ServerSnapshot) (repository.ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return repository.ApplyResult{}, m.applyErr
	}
	m.applied = append(m.applied, snap)
	return m.applyResult, nil
}

func (m *fakeMirrors) EnsureInbound(ctx context.Context, inbound *models.Inbound) (*models.Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.inbounds {
		if existing.ServerID == inbound.ServerID && existing.RemoteID == inbound.RemoteID {
			return existing, nil
		}
	}
	m.nextInboundID++
	inbound.ID = m.nextInboundID
	m.inbounds[inbound.ID] = inbound
	return inbound, nil
}

func (m *fakeMirrors) GetInboundByID(ctx context.Context, id uint) (*models.Inbound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inbound, ok := m.inbounds[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "inbound", Key: fmt.Sprintf("%d", id)}
	}
	return inbound, nil
}

func (m *fakeMirrors) GetClientBySubscription(ctx context.Context, subscriptionID uint) (*models.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		if client.SubscriptionID != nil && *client.SubscriptionID == subscriptionID {
			return client, nil
		}
	}
	return nil, nil
}

func (m *fakeMirrors) CreateClient(ctx context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextClientID++
	client.ID = m.nextClientID
	m.clients[client.ID] = client
	return nil
}

func (m *fakeMirrors) UpdateClient(ctx context.Context, client *models.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.ID] = client
	return nil
}

func (m *fakeMirrors) DeleteClient(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.clients, id)
	return nil
}

type fakeSubs struct {
	subs map[uint]*models.Subscription

	linkErr    error
	clearCalls int
	usage      map[uint]float64
}

func newFakeSubs(subs ...*models.Subscription) *fakeSubs {
	f := &fakeSubs{subs: make(map[uint]*models.Subscription), usage: make(map[uint]float64)}
	for _, sub := range subs {
		f.subs[sub.ID] = sub
	}
	return f
}

func (s *fakeSubs) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Kind: "subscription", Key: fmt.Sprintf("%d", id)}
	}
	return sub, nil
}

func (s *fakeSubs) ListByServer(ctx context.Context, serverID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.ServerID == serverID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (s *fakeSubs) LinkClient(ctx context.Context, id uint, inboundID uint, label string) error {
	if s.linkErr != nil {
		return s.linkErr
	}
	sub := s.subs[id]
	sub.InboundID = &inboundID
	sub.Label = label
	return nil
}

func (s *fakeSubs) ClearLink(ctx context.Context, id uint) error {
	s.clearCalls++
	sub := s.subs[id]
	sub.InboundID = nil
	sub.Label = ""
	return nil
}

func (s *fakeSubs) UpdateUsage(ctx context.Context, id uint, usageGB float64) error {
	s.usage[id] = usageGB
	return nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []*models.SyncLog
	nextID  uint
	openErr error
}

func (l *fakeLogs) Open(ctx context.Context, serverID uint, action string) (*models.SyncLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return nil, l.openErr
	}
	l.nextID++
	entry := &models.SyncLog{
		ID:        l.nextID,
		ServerID:  serverID,
		Action:    action,
		Status:    models.SyncStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

func (l *fakeLogs) Close(ctx context.Context, id uint, status, message, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range l.entries {
		if entry.ID == id && entry.Status == models.SyncStatusRunning {
			now := time.Now().UTC()
			entry.Status = status
			entry.Message = message
			entry.Detail = detail
			entry.FinishedAt = &now
			return nil
		}
	}
	return nil
}

func (l *fakeLogs) Latest(ctx context.Context, serverID uint) (*models.SyncLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ServerID == serverID {
			return l.entries[i], nil
		}
	}
	return nil, &apperrors.NotFoundError{Kind: "sync log", Key: fmt.Sprintf("server %d", serverID)}
}

func (l *fakeLogs) CloseStale(ctx context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var closed int64
	for _, entry := range l.entries {
		if entry.Status == models.SyncStatusRunning && entry.StartedAt.Before(olderThan) {
			now := time.Now().UTC()
			entry.Status = models.SyncStatusFailed
			entry.Message = "timed out: closed by watchdog"
			entry.FinishedAt = &now
			closed++
		}
	}
	return closed, nil
}

// last returns the most recent entry regardless of server
func (l *fakeLogs) last() *models.SyncLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

type fakeDescriptors struct {
	store       map[uint]*xuiclient.ConnectionConfig
	getErr      error
	setErr      error
	invalidated int
}

func newFakeDescriptors() *fakeDescriptors {
	return &fakeDescriptors{store: make(map[uint]*xuiclient.ConnectionConfig)}
}

func (d *fakeDescriptors) Get(ctx context.Context, subscriptionID uint) (*xuiclient.ConnectionConfig, error) {
	if d.getErr != nil {
		return nil, d.getErr
	}
	return d.store[subscriptionID], nil
}

func (d *fakeDescriptors) Set(ctx context.Context, subscriptionID uint, cfg *xuiclient.ConnectionConfig) error {
	if d.setErr != nil {
		return d.setErr
	}
	d.store[subscriptionID] = cfg
	return nil
}

func (d *fakeDescriptors) Invalidate(ctx context.Context, subscriptionID uint) error {
	d.invalidated++
	delete(d.store, subscriptionID)
	return nil
}
