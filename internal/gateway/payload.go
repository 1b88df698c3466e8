package gateway

import "encoding/json"

// payload is the envelope of every gateway frame. d is kept raw so Dispatch
// event data passes through to subscribers without an intermediate decode.
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData arrives in the first frame of every connection.
type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyData struct {
	Token          string             `json:"token"`
	Intents        int                `json:"intents"`
	Properties     identifyProperties `json:"properties"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]int            `json:"shard,omitempty"`
}

type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// readyData is the subset of the READY dispatch the session itself consumes;
// the full payload still reaches subscribers untouched.
type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// GuildMembersRequest asks the server to stream GUILD_MEMBERS_CHUNK events
// for a guild. Either Query (prefix match, empty for all) or UserIDs must be
// set, not both.
type GuildMembersRequest struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// Dispatch event names the session reacts to itself. EventReconnecting is
// synthetic: emitted locally when the session drops a connection, never by
// the server.
const (
	EventReady        = "READY"
	EventResumed      = "RESUMED"
	EventReconnecting = "GATEWAY_RECONNECTING"
)
