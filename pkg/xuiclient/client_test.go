package xuiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xui-sync/internal/errors"
)

// newPanelFixture builds an httptest panel implementing the endpoints the
// gateway talks to, and a client wired to it
func newPanelFixture(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})
	panel := httptest.NewServer(mux)
	t.Cleanup(panel.Close)

	httpClient := NewHTTPClient()
	sessions := NewSessionManager(httpClient, testLogger())
	exec := NewExecutor(sessions, instantPolicy(3), testLogger())
	server := Server{ID: 1, Name: "eu-1", BaseURL: panel.URL, Username: "admin", Password: "secret"}

	return NewClient(server, httpClient, exec, testLogger()), panel
}

func envelope(obj interface{}) string {
	raw, _ := json.Marshal(obj)
	return fmt.Sprintf(`{"success":true,"msg":"","obj":%s}`, raw)
}

func TestListInbounds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(envelope([]Inbound{
			{
				ID:       4,
				Remark:   "main",
				Enable:   true,
				Port:     443,
				Protocol: ProtocolVless,
				ClientStats: []ClientTraffic{
					{Email: "alice", Up: 100, Down: 200, Enable: true},
				},
			},
		})))
	})

	client, _ := newPanelFixture(t, mux)

	inbounds, err := client.ListInbounds(context.Background())
	require.NoError(t, err)
	require.Len(t, inbounds, 1)
	assert.Equal(t, 4, inbounds[0].ID)
	assert.Equal(t, ProtocolVless, inbounds[0].Protocol)
	require.Len(t, inbounds[0].ClientStats, 1)
	assert.Equal(t, int64(200), inbounds[0].ClientStats[0].Down)
}

func TestAddClientGeneratesProtocolIdentifier(t *testing.T) {
	var lastBody map[string]interface{}

	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds/addClient", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})

	client, _ := newPanelFixture(t, mux)

	vlessInbound := &Inbound{ID: 4, Protocol: ProtocolVless}
	created, err := client.AddClient(context.Background(), vlessInbound, ClientSpec{
		Label:      "alice",
		TotalBytes: 1 << 30,
	})
	require.NoError(t, err)
	assert.Len(t, created.ID, 36, "vless clients get a uuid")
	assert.Empty(t, created.Password)
	assert.NotEmpty(t, created.SubID)
	assert.True(t, created.Enable)

	// The settings payload is a JSON string nested in the request body
	assert.Equal(t, float64(4), lastBody["id"])
	var settings InboundSettings
	require.NoError(t, json.Unmarshal([]byte(lastBody["settings"].(string)), &settings))
	require.Len(t, settings.Clients, 1)
	assert.Equal(t, "alice", settings.Clients[0].Email)
	assert.Equal(t, created.ID, settings.Clients[0].ID)

	trojanInbound := &Inbound{ID: 5, Protocol: ProtocolTrojan}
	created, err = client.AddClient(context.Background(), trojanInbound, ClientSpec{Label: "bob"})
	require.NoError(t, err)
	assert.Empty(t, created.ID)
	assert.NotEmpty(t, created.Password, "trojan clients get a password")
}

func TestRemoveClientNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds/4/delClient/uuid-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"msg":"client not found","obj":null}`))
	})

	client, _ := newPanelFixture(t, mux)

	err := client.RemoveClient(context.Background(), 4, "uuid-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetClientTraffic(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds/getClientTraffics/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(envelope(ClientTraffic{Email: "alice", Up: 11, Down: 22, Enable: true})))
	})
	mux.HandleFunc("/xui/API/inbounds/getClientTraffics/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})

	client, _ := newPanelFixture(t, mux)

	traffic, err := client.GetClientTraffic(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(11), traffic.Up)
	assert.Equal(t, int64(22), traffic.Down)

	_, err = client.GetClientTraffic(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResetClientTraffic(t *testing.T) {
	var called bool
	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds/4/resetClientTraffic/alice", func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"msg":"","obj":null}`))
	})

	client, _ := newPanelFixture(t, mux)

	require.NoError(t, client.ResetClientTraffic(context.Background(), 4, "alice"))
	assert.True(t, called)
}

func TestGetOnlineClients(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/xui/API/inbounds/onlines", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(envelope([]string{"alice", "bob"})))
	})

	client, _ := newPanelFixture(t, mux)

	online, err := client.GetOnlineClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)
}
