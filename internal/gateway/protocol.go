// Package gateway maintains a Discord Gateway WebSocket session: connect,
// identify or resume, heartbeat, and reconnect with backoff on the wire
// opcodes Discord's real-time API defines.
package gateway

import "encoding/json"

// Gateway opcodes, per Discord's real-time API.
const (
	OpDispatch            = 0
	OpHeartbeat           = 1
	OpIdentify            = 2
	OpResume              = 6
	OpReconnect           = 7
	OpInvalidSession      = 9
	OpHello               = 10
	OpHeartbeatAck        = 11
)

// Payload is the envelope every Gateway frame is wrapped in.
type Payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// HelloData is the payload of an Op 10 Hello frame.
type HelloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// IdentifyProperties describes the connecting client for Discord's
// telemetry, mirroring the fields Discord's clients send.
type IdentifyProperties struct {
	OS      string `json:"$os"`
	Browser string `json:"$browser"`
	Device  string `json:"$device"`
}

// IdentifyData is the payload of an Op 2 Identify frame.
type IdentifyData struct {
	Token      string              `json:"token"`
	Properties IdentifyProperties  `json:"properties"`
	Intents    int                 `json:"intents"`
}

// ResumeData is the payload of an Op 6 Resume frame.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// ReadyData is carried by the READY dispatch event.
type ReadyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

const (
	clientName    = "discord-bridge"
	apiVersion    = "10"
	gatewayURL    = "wss://gateway.discord.gg"
	gatewayParams = "/?v=" + apiVersion + "&encoding=json"
)
