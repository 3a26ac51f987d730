package xuiclient

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildVmessLink(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com:2053", SubPrefix: "https://sub.example.com"}
	inbound := &Inbound{
		ID:             4,
		Port:           443,
		Protocol:       ProtocolVmess,
		StreamSettings: `{"network":"ws","security":"tls","wsSettings":{"path":"/socket"}}`,
	}
	client := &ClientSettings{ID: "11111111-2222-3333-4444-555555555555", Email: "alice"}

	config, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)
	require.Len(t, config.Links, 1)
	require.True(t, strings.HasPrefix(config.Links[0], "vmess://"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(config.Links[0], "vmess://"))
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "panel.example.com", payload["add"])
	assert.Equal(t, "443", payload["port"])
	assert.Equal(t, client.ID, payload["id"])
	assert.Equal(t, "ws", payload["net"])
	assert.Equal(t, "tls", payload["tls"])
	assert.Equal(t, "/socket", payload["path"])

	assert.Equal(t, "https://sub.example.com/sub/alice", config.SubURL)
}

func TestBuildVlessLink(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com:2053"}
	inbound := &Inbound{
		ID:             4,
		Port:           8443,
		Protocol:       ProtocolVless,
		StreamSettings: `{"network":"tcp","security":"reality"}`,
	}
	client := &ClientSettings{ID: "11111111-2222-3333-4444-555555555555", Email: "bob@site"}

	config, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)
	require.Len(t, config.Links, 1)

	parsed, err := url.Parse(config.Links[0])
	require.NoError(t, err)
	assert.Equal(t, "vless", parsed.Scheme)
	assert.Equal(t, client.ID, parsed.User.Username())
	assert.Equal(t, "panel.example.com:8443", parsed.Host)
	assert.Equal(t, "tcp", parsed.Query().Get("type"))
	assert.Equal(t, "reality", parsed.Query().Get("security"))

	// No subscription prefix configured: fall back to the panel address
	assert.Equal(t, "https://panel.example.com:2053/sub/bob@site", config.SubURL)
}

func TestBuildTrojanLink(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com"}
	inbound := &Inbound{ID: 4, Port: 443, Protocol: ProtocolTrojan}
	client := &ClientSettings{Password: "trojanpass", Email: "carol"}

	config, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)

	parsed, err := url.Parse(config.Links[0])
	require.NoError(t, err)
	assert.Equal(t, "trojan", parsed.Scheme)
	assert.Equal(t, "trojanpass", parsed.User.Username())
	assert.Equal(t, "tcp", parsed.Query().Get("type"), "missing stream settings default to tcp")
}

func TestBuildShadowsocksLink(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com"}
	inbound := &Inbound{
		ID:       4,
		Port:     8388,
		Protocol: ProtocolShadowsocks,
		Settings: `{"clients":[],"method":"chacha20-ietf-poly1305"}`,
	}
	client := &ClientSettings{Password: "sspass", Email: "dave"}

	config, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(config.Links[0], "ss://"))

	encoded := strings.TrimPrefix(config.Links[0], "ss://")
	encoded = encoded[:strings.Index(encoded, "@")]
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "chacha20-ietf-poly1305:sspass", string(raw))
}

func TestBuildConnectionConfigUnsupportedProtocol(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com"}
	inbound := &Inbound{ID: 4, Protocol: "dokodemo-door"}

	_, err := BuildConnectionConfig(server, inbound, &ClientSettings{Email: "x"})
	assert.Error(t, err)
}

func TestBuildConnectionConfigDeterministic(t *testing.T) {
	server := Server{ID: 1, BaseURL: "https://panel.example.com"}
	inbound := &Inbound{ID: 4, Port: 443, Protocol: ProtocolVless}
	client := &ClientSettings{ID: "11111111-2222-3333-4444-555555555555", Email: "alice"}

	first, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)
	second, err := BuildConnectionConfig(server, inbound, client)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
