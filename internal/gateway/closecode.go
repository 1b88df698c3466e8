package gateway

import "time"

// Action is what the session does with a dead connection.
type Action int

const (
	// ActionResume reconnects and resumes the existing session.
	ActionResume Action = iota
	// ActionReidentify reconnects and starts a fresh session.
	ActionReidentify
	// ActionFatal terminates the session; reconnecting cannot succeed.
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionResume:
		return "resume"
	case ActionReidentify:
		return "reidentify"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Verdict is the classifier's answer for one close code: what to do next,
// why, and how long to hold off before doing it.
type Verdict struct {
	Action Action
	Reason string
	Delay  time.Duration
}

// identifyThrottleDelay is how long to back off after the server closes a
// connection for identifying too fast.
const identifyThrottleDelay = 5 * time.Second

// Classify maps a websocket close code to the session's next move. It is
// total: codes not in the table are treated as resumable so that transient
// infrastructure hiccups never cost the session.
func Classify(code int) Verdict {
	switch code {
	case 4000:
		return Verdict{Action: ActionResume, Reason: "unknown error"}
	case 4001:
		return Verdict{Action: ActionResume, Reason: "unknown opcode sent"}
	case 4002:
		return Verdict{Action: ActionResume, Reason: "decode error"}
	case 4003:
		return Verdict{Action: ActionReidentify, Reason: "not authenticated"}
	case 4004:
		return Verdict{Action: ActionFatal, Reason: "authentication failed"}
	case 4005:
		return Verdict{Action: ActionReidentify, Reason: "already authenticated"}
	case 4007:
		return Verdict{Action: ActionReidentify, Reason: "invalid resume sequence"}
	case 4008:
		return Verdict{Action: ActionReidentify, Reason: "identify rate limited", Delay: identifyThrottleDelay}
	case 4009:
		return Verdict{Action: ActionReidentify, Reason: "session timed out"}
	case 4010:
		return Verdict{Action: ActionFatal, Reason: "invalid shard"}
	case 4011:
		return Verdict{Action: ActionFatal, Reason: "sharding required"}
	case 4012:
		return Verdict{Action: ActionFatal, Reason: "invalid gateway version"}
	case 4013:
		return Verdict{Action: ActionFatal, Reason: "invalid intents"}
	case 4014:
		return Verdict{Action: ActionFatal, Reason: "disallowed intents"}
	case 1000:
		// Normal closure from the server side means the session is gone.
		return Verdict{Action: ActionReidentify, Reason: "closed normally"}
	case 1001:
		return Verdict{Action: ActionResume, Reason: "server going away"}
	case 1006:
		return Verdict{Action: ActionResume, Reason: "abnormal closure"}
	case 1012:
		return Verdict{Action: ActionResume, Reason: "service restart"}
	default:
		return Verdict{Action: ActionResume, Reason: "unclassified close code"}
	}
}
