// Package gateway talks to Iris, the KakaoTalk bridge: chat messages arrive over a
// WebSocket and replies leave over HTTP or the same socket.
package gateway

import "strings"

// Message is one chat line pushed by Iris.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

// MessageJSON carries the raw KakaoTalk record fields Iris forwards.
type MessageJSON struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// UserID is the stable Kakao user id, or the sender name when Iris omits it.
func (m *Message) UserID() string {
	if m == nil {
		return ""
	}
	if m.JSON != nil && strings.TrimSpace(m.JSON.UserID) != "" {
		return strings.TrimSpace(m.JSON.UserID)
	}
	if m.Sender != nil {
		return strings.TrimSpace(*m.Sender)
	}
	return ""
}

// SenderName is the display name used in messages and PGN headers.
func (m *Message) SenderName() string {
	if m != nil && m.Sender != nil && strings.TrimSpace(*m.Sender) != "" {
		return strings.TrimSpace(*m.Sender)
	}
	return "Player"
}

// Config is the subset of Iris's /config response the bot logs at startup.
type Config struct {
	BotName           string `json:"bot_name"`
	Port              int    `json:"bot_http_port"`
	PollingSpeed      int    `json:"db_polling_rate"`
	MessageRate       int    `json:"message_send_rate"`
	WebserverEndpoint string `json:"web_server_endpoint"`
}

// ReplyRequest is the /reply body and the WebSocket reply frame.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

// HeaderProvider supplies per-request headers such as X-User-Id.
type HeaderProvider func() map[string]string

// StaticHeaders builds a HeaderProvider from the X-User-* settings, skipping blanks.
func StaticHeaders(userID, email, sessionID string) HeaderProvider {
	h := map[string]string{}
	for k, v := range map[string]string{"X-User-Id": userID, "X-User-Email": email, "X-Session-Id": sessionID} {
		if strings.TrimSpace(v) != "" {
			h[k] = strings.TrimSpace(v)
		}
	}
	return func() map[string]string { return h }
}
