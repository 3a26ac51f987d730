package xuiclient

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ConnectionConfig holds the user-facing connection descriptors derived
// for one client: protocol links plus the machine subscription URL
type ConnectionConfig struct {
	Links  []string `json:"links"`
	SubURL string   `json:"sub_url"`
}

// vmessLink is the JSON payload encoded into a vmess:// URI
type vmessLink struct {
	V    string `json:"v"`
	PS   string `json:"ps"`
	Add  string `json:"add"`
	Port string `json:"port"`
	ID   string `json:"id"`
	Aid  string `json:"aid"`
	Net  string `json:"net"`
	Type string `json:"type"`
	Host string `json:"host"`
	Path string `json:"path"`
	TLS  string `json:"tls"`
}

// BuildConnectionConfig derives the connection descriptors for a client
// from already-known inbound and client fields. This is a deterministic
// local computation; no remote call is made.
func BuildConnectionConfig(server Server, inbound *Inbound, client *ClientSettings) (*ConnectionConfig, error) {
	host, err := serverHost(server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot derive host from server address: %w", err)
	}

	stream, err := DecodeStreamSettings(inbound.StreamSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stream settings: %w", err)
	}

	var link string
	switch inbound.Protocol {
	case ProtocolVmess:
		link, err = buildVmessLink(host, inbound, client, stream)
	case ProtocolVless:
		link = buildQueryLink(ProtocolVless, client.ID, host, inbound, client, stream)
	case ProtocolTrojan:
		link = buildQueryLink(ProtocolTrojan, client.Password, host, inbound, client, stream)
	case ProtocolShadowsocks:
		link, err = buildShadowsocksLink(host, inbound, client)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", inbound.Protocol)
	}
	if err != nil {
		return nil, err
	}

	return &ConnectionConfig{
		Links:  []string{link},
		SubURL: SubscriptionURL(server, client.Email),
	}, nil
}

// SubscriptionURL returns the machine subscription URL for a client label
func SubscriptionURL(server Server, label string) string {
	prefix := server.SubPrefix
	if prefix == "" {
		prefix = server.BaseURL
	}
	return fmt.Sprintf("%s/sub/%s", strings.TrimRight(prefix, "/"), label)
}

// buildVmessLink encodes the vmess JSON scheme
func buildVmessLink(host string, inbound *Inbound, client *ClientSettings, stream *StreamSettings) (string, error) {
	payload := vmessLink{
		V:    "2",
		PS:   client.Email,
		Add:  host,
		Port: strconv.Itoa(inbound.Port),
		ID:   client.ID,
		Aid:  "0",
		Net:  network(stream),
		Type: "none",
		Path: stream.WSSettings.Path,
		TLS:  security(stream),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vmess link: %w", err)
	}

	return "vmess://" + base64.StdEncoding.EncodeToString(raw), nil
}

// buildQueryLink builds the query-parameter URI shared by vless and trojan
func buildQueryLink(scheme, identifier, host string, inbound *Inbound, client *ClientSettings, stream *StreamSettings) string {
	params := url.Values{}
	params.Set("type", network(stream))
	params.Set("security", security(stream))
	if stream.WSSettings.Path != "" {
		params.Set("path", stream.WSSettings.Path)
	}
	if scheme == ProtocolVless && client.Flow != nil && *client.Flow != "" {
		params.Set("flow", *client.Flow)
	}

	return fmt.Sprintf("%s://%s@%s:%d?%s#%s",
		scheme, identifier, host, inbound.Port, params.Encode(), url.PathEscape(client.Email))
}

// buildShadowsocksLink encodes the ss:// credential scheme
func buildShadowsocksLink(host string, inbound *Inbound, client *ClientSettings) (string, error) {
	settings, err := DecodeSettings(inbound.Settings)
	if err != nil {
		return "", fmt.Errorf("failed to parse inbound settings: %w", err)
	}

	method := settings.Method
	if method == "" {
		method = "aes-256-gcm"
	}

	credentials := base64.StdEncoding.EncodeToString([]byte(method + ":" + client.Password))
	return fmt.Sprintf("ss://%s@%s:%d#%s", credentials, host, inbound.Port, url.PathEscape(client.Email)), nil
}

func network(stream *StreamSettings) string {
	if stream.Network == "" {
		return "tcp"
	}
	return stream.Network
}

func security(stream *StreamSettings) string {
	if stream.Security == "" {
		return "none"
	}
	return stream.Security
}

// serverHost extracts the public host from the panel base address
func serverHost(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("no host in %q", baseURL)
	}
	return host, nil
}
