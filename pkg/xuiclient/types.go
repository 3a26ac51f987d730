package xuiclient

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Protocol families exposed by x-ui panels
const (
	ProtocolVmess       = "vmess"
	ProtocolVless       = "vless"
	ProtocolTrojan      = "trojan"
	ProtocolShadowsocks = "shadowsocks"
)

// Server identifies one remote panel and how to reach it
type Server struct {
	ID        uint
	Name      string
	BaseURL   string
	Username  string
	Password  string
	SubPrefix string
}

// APIResponse represents the envelope every panel endpoint returns
type APIResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Inbound represents a remote inbound configuration
type Inbound struct {
	ID             int             `json:"id"`
	Up             int64           `json:"up"`
	Down           int64           `json:"down"`
	Total          int64           `json:"total"`
	Remark         string          `json:"remark"`
	Enable         bool            `json:"enable"`
	ExpiryTime     int64           `json:"expiryTime"`
	ClientStats    []ClientTraffic `json:"clientStats"`
	Listen         string          `json:"listen"`
	Port           int             `json:"port"`
	Protocol       string          `json:"protocol"`
	Settings       string          `json:"settings"`
	StreamSettings string          `json:"streamSettings"`
}

// ClientTraffic represents per-client counters as reported by the panel
type ClientTraffic struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
	Reset      int64  `json:"reset"`
}

// ClientSettings represents one client entry inside an inbound's settings JSON
type ClientSettings struct {
	ID         string  `json:"id,omitempty"`       // uuid for vmess/vless
	Password   string  `json:"password,omitempty"` // trojan/shadowsocks
	Flow       *string `json:"flow,omitempty"`
	Email      string  `json:"email"`
	TotalGB    int64   `json:"totalGB"`
	LimitIP    int     `json:"limitIp"`
	ExpiryTime int64   `json:"expiryTime"`
	Enable     bool    `json:"enable"`
	TgID       string  `json:"tgId"`
	SubID      string  `json:"subId"`
}

// InboundSettings represents the decoded settings JSON of an inbound
type InboundSettings struct {
	Clients    []ClientSettings `json:"clients"`
	Decryption string           `json:"decryption,omitempty"`
	Method     string           `json:"method,omitempty"` // shadowsocks cipher
}

// StreamSettings represents the transport part of an inbound configuration
type StreamSettings struct {
	Network    string `json:"network"`
	Security   string `json:"security"`
	WSSettings struct {
		Path string `json:"path"`
	} `json:"wsSettings"`
}

// ClientSpec describes the client to create on an inbound
type ClientSpec struct {
	Label      string
	TotalBytes int64
	ExpiryTime int64 // epoch milliseconds, 0 = never
	LimitIP    int
}

// Identifier returns the remote identifier of a client regardless of protocol
func (c *ClientSettings) Identifier() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Password != "" {
		return c.Password
	}
	return c.SubID
}

// DecodeSettings parses an inbound's settings JSON string
func DecodeSettings(raw string) (*InboundSettings, error) {
	var settings InboundSettings
	if raw == "" {
		return &settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// DecodeStreamSettings parses an inbound's streamSettings JSON string
func DecodeStreamSettings(raw string) (*StreamSettings, error) {
	var stream StreamSettings
	if raw == "" {
		return &stream, nil
	}
	if err := json.Unmarshal([]byte(raw), &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// GenerateToken generates a random url-safe token used for subscription
// identifiers and trojan/shadowsocks passwords
func GenerateToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}

	b64 := base64.StdEncoding.EncodeToString(buf)
	b64 = strings.ReplaceAll(b64, "=", "")
	b64 = strings.ReplaceAll(b64, "+", "")
	b64 = strings.ReplaceAll(b64, "/", "")

	if len(b64) > 16 {
		b64 = b64[:16]
	}

	return b64
}
