package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"concord/internal/models"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State is the session's position in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyStarted = errors.New("gateway: session already started")
	ErrSessionClosed  = errors.New("gateway: session closed")
	ErrNotConnected   = errors.New("gateway: not connected")
	// ErrFatalClose wraps close reasons that reconnecting cannot fix, such
	// as bad credentials or disallowed intents.
	ErrFatalClose = errors.New("gateway: unrecoverable close")
)

// gatewayVersion is appended to every dial URL together with the encoding.
const gatewayVersion = 10

// invalidSessionDelay is the hold-off before re-identifying after the server
// invalidates the session without offering a resume.
const invalidSessionDelay = time.Second

// commandHeadroom is how many slots of the command window stay reserved for
// heartbeats, which bypass the limiter but still count server-side.
const commandHeadroom = 5

// Identity is what the session presents when opening a fresh session.
type Identity struct {
	Token      string
	Intents    int
	ShardID    int
	ShardCount int
}

// DispatchFunc receives every Dispatch frame, in the order the server sent
// them, including replays delivered after a resume.
type DispatchFunc func(event string, data json.RawMessage)

// Session owns one websocket connection to the gateway and keeps it
// identified across network drops, server-requested reconnects, and session
// invalidations. Exactly two goroutines run per connection: the receive loop
// and the heartbeat loop. All state transitions are serialized under one
// mutex; Close is terminal.
type Session struct {
	cfg      models.GatewayConfig
	identity Identity
	log      *slog.Logger
	rec      Recorder
	dialer   *websocket.Dialer
	dispatch DispatchFunc
	limiter  *rate.Limiter

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	seq       int64
	hasSeq    bool
	sessionID string
	resumeURL string
	fatalErr  error

	// wmu serializes writes to the socket across the heartbeat loop, the
	// receive loop, and command senders.
	wmu  sync.Mutex
	beat tracker

	readyOnce sync.Once
	readyCh   chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
}

// Option customizes a Session.
type Option func(*Session)

// WithDialer replaces the websocket dialer, used by tests.
func WithDialer(d *websocket.Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.rec = r }
}

// New creates a session that will dial cfg.URL and identify as identity.
// Nothing connects until Connect is called.
func New(cfg models.GatewayConfig, identity Identity, dispatch DispatchFunc, log *slog.Logger, opts ...Option) *Session {
	budget := cfg.CommandLimit - commandHeadroom
	if budget < 1 {
		budget = 1
	}
	s := &Session{
		cfg:      cfg,
		identity: identity,
		log:      log,
		rec:      nopRecorder{},
		dialer:   websocket.DefaultDialer,
		dispatch: dispatch,
		limiter:  rate.NewLimiter(rate.Every(cfg.CommandWindow/time.Duration(budget)), budget),
		readyCh:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect starts the session and blocks until the first READY arrives, the
// session dies of a fatal close, or ctx expires. After it returns the
// session keeps itself connected until Close.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		if s.isClosed() {
			return ErrSessionClosed
		}
		return ErrAlreadyStarted
	}
	s.state = StateConnecting
	s.mu.Unlock()

	go s.run()

	select {
	case <-s.readyCh:
		return nil
	case <-s.closed:
		return s.Wait()
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	}
}

// Close tears the session down. It is safe to call from any goroutine and
// more than once; the session never reconnects afterwards.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		conn := s.conn
		s.mu.Unlock()
		close(s.closed)
		if conn != nil {
			s.wmu.Lock()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			s.wmu.Unlock()
			conn.Close()
		}
	})
}

// Wait blocks until the session is closed and returns the fatal error that
// ended it, or nil after a plain Close.
func (s *Session) Wait() error {
	<-s.closed
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UpdatePresence sends a presence update command.
func (s *Session) UpdatePresence(ctx context.Context, presence any) error {
	return s.command(ctx, opPresenceUpdate, presence)
}

// UpdateVoiceState sends a voice state update command.
func (s *Session) UpdateVoiceState(ctx context.Context, voiceState any) error {
	return s.command(ctx, opVoiceStateUpdate, voiceState)
}

// RequestGuildMembers asks the server to stream member chunks for a guild.
func (s *Session) RequestGuildMembers(ctx context.Context, req GuildMembersRequest) error {
	return s.command(ctx, opRequestGuildMembers, req)
}

// command sends one outbound frame through the command limiter. Heartbeats
// do not come through here.
func (s *Session) command(ctx context.Context, op int, d any) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.writePayload(conn, op, d)
}

// run is the reconnect manager. It opens connections one at a time, feeding
// each connection's closing verdict into the next attempt, until a fatal
// verdict or Close.
func (s *Session) run() {
	verdict := Verdict{Action: ActionReidentify, Reason: "initial connect"}
	failures := 0

	for {
		if s.isClosed() {
			return
		}
		wait := max(verdict.Delay, reconnectWait(failures, s.cfg.MaxReconnectWait))
		if !s.sleep(wait) {
			return
		}

		v, reachedConnected := s.runConnection(verdict.Action == ActionResume)
		if s.isClosed() {
			return
		}
		if reachedConnected {
			failures = 0
		} else {
			failures++
		}

		switch v.Action {
		case ActionFatal:
			s.fail(fmt.Errorf("%w: %s", ErrFatalClose, v.Reason))
			return
		case ActionReidentify:
			s.discardSession()
		}
		verdict = v

		s.setState(StateReconnecting)
		s.rec.Reconnected(v.Action == ActionResume)
		s.log.Info("gateway reconnecting",
			"reason", v.Reason, "action", v.Action.String(), "delay", v.Delay)
		if s.dispatch != nil {
			s.dispatch(EventReconnecting, nil)
		}
	}
}

// runConnection drives one connection from dial to disconnect and returns
// the verdict for what to do next plus whether the connection ever reached
// the connected state.
func (s *Session) runConnection(resume bool) (Verdict, bool) {
	s.setState(StateConnecting)

	s.mu.Lock()
	resume = resume && s.sessionID != ""
	url := s.cfg.URL
	if resume && s.resumeURL != "" {
		url = s.resumeURL
	}
	s.mu.Unlock()
	url = fmt.Sprintf("%s?v=%d&encoding=json", url, gatewayVersion)

	dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	conn, _, err := s.dialer.DialContext(dialCtx, url, nil)
	cancel()
	if err != nil {
		s.log.Warn("gateway dial failed", "url", url, "error", err)
		return Verdict{Action: ActionResume, Reason: "dial failed"}, false
	}
	defer conn.Close()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return Verdict{}, false
	}
	s.conn = conn
	s.state = StateAwaitingHello
	s.mu.Unlock()

	// The first frame must be Hello; it carries the heartbeat interval.
	conn.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	var first payload
	if err := conn.ReadJSON(&first); err != nil || first.Op != opHello {
		s.log.Warn("gateway handshake failed", "error", err)
		return Verdict{Action: ActionResume, Reason: "no hello"}, false
	}
	conn.SetReadDeadline(time.Time{})

	var hello helloData
	if err := json.Unmarshal(first.D, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return Verdict{Action: ActionResume, Reason: "malformed hello"}, false
	}
	s.beat.reset(time.Duration(hello.HeartbeatInterval) * time.Millisecond)

	if resume {
		s.setState(StateResuming)
		s.mu.Lock()
		d := resumeData{Token: s.identity.Token, SessionID: s.sessionID, Seq: s.seq}
		s.mu.Unlock()
		err = s.writePayload(conn, opResume, d)
	} else {
		s.discardSession()
		s.setState(StateIdentifying)
		err = s.writePayload(conn, opIdentify, s.identifyData())
	}
	if err != nil {
		return Verdict{Action: ActionResume, Reason: "handshake write failed"}, false
	}

	hbDone := make(chan struct{})
	go s.heartbeatLoop(conn, hbDone)
	defer close(hbDone)

	return s.readLoop(conn)
}

// readLoop decodes frames until the connection dies and classifies the
// outcome. It is the only reader of the socket.
func (s *Session) readLoop(conn *websocket.Conn) (Verdict, bool) {
	connected := false
	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				v := Classify(ce.Code)
				s.log.Info("gateway closed",
					"code", ce.Code, "text", ce.Text, "action", v.Action.String())
				return v, connected
			}
			return Verdict{Action: ActionResume, Reason: "read failed"}, connected
		}

		switch p.Op {
		case opDispatch:
			if p.S != nil {
				s.mu.Lock()
				if !s.hasSeq || *p.S > s.seq {
					s.seq = *p.S
					s.hasSeq = true
				}
				s.mu.Unlock()
			}
			if s.handleDispatch(p.T, p.D) {
				connected = true
			}

		case opHeartbeat:
			// Server-requested beat, sent immediately out of cycle.
			if err := s.sendHeartbeat(conn); err != nil {
				return Verdict{Action: ActionResume, Reason: "heartbeat write failed"}, connected
			}

		case opHeartbeatACK:
			s.rec.HeartbeatLatency(s.beat.ack())

		case opReconnect:
			return Verdict{Action: ActionResume, Reason: "server requested reconnect"}, connected

		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if resumable {
				return Verdict{Action: ActionResume, Reason: "session invalidated, resumable"}, connected
			}
			return Verdict{
				Action: ActionReidentify,
				Reason: "session invalidated",
				Delay:  invalidSessionDelay,
			}, connected

		default:
			s.log.Debug("gateway ignoring frame", "op", p.Op)
		}
	}
}

// handleDispatch reacts to the events the session itself tracks and forwards
// everything to the subscriber. Returns true when the event completed the
// handshake.
func (s *Session) handleDispatch(event string, data json.RawMessage) bool {
	completed := false
	switch event {
	case EventReady:
		var rd readyData
		if err := json.Unmarshal(data, &rd); err == nil {
			s.mu.Lock()
			s.sessionID = rd.SessionID
			s.resumeURL = rd.ResumeGatewayURL
			s.mu.Unlock()
		}
		s.setState(StateConnected)
		s.readyOnce.Do(func() { close(s.readyCh) })
		completed = true
	case EventResumed:
		s.setState(StateConnected)
		completed = true
	}

	s.rec.EventReceived(event)
	if s.dispatch != nil {
		s.dispatch(event, data)
	}
	return completed
}

// heartbeatLoop sends a beat every interval. The first beat is jittered
// across the interval so reconnecting fleets do not thunder. An unanswered
// beat at the next send time means the connection is dead: the loop closes
// the socket and lets the receive loop classify the drop.
func (s *Session) heartbeatLoop(conn *websocket.Conn, done <-chan struct{}) {
	interval := s.beat.interval()
	timer := time.NewTimer(time.Duration(rand.Float64() * float64(interval)))
	defer timer.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.closed:
			return
		case <-timer.C:
		}

		if !s.beat.alive() {
			s.log.Warn("gateway heartbeat unacknowledged, dropping connection")
			conn.Close()
			return
		}
		if err := s.sendHeartbeat(conn); err != nil {
			return
		}
		timer.Reset(interval)
	}
}

// sendHeartbeat writes one beat carrying the last seen sequence, or null
// before the first Dispatch of a session.
func (s *Session) sendHeartbeat(conn *websocket.Conn) error {
	s.mu.Lock()
	var d any
	if s.hasSeq {
		d = s.seq
	}
	s.mu.Unlock()

	if err := s.writePayload(conn, opHeartbeat, d); err != nil {
		return err
	}
	s.beat.sent()
	return nil
}

func (s *Session) writePayload(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode gateway payload: %w", err)
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return conn.WriteJSON(payload{Op: op, D: raw})
}

func (s *Session) identifyData() identifyData {
	d := identifyData{
		Token:   s.identity.Token,
		Intents: s.identity.Intents,
		Properties: identifyProperties{
			OS:      "linux",
			Browser: "concord",
			Device:  "concord",
		},
		LargeThreshold: s.cfg.LargeThreshold,
	}
	if s.identity.ShardCount > 0 {
		d.Shard = &[2]int{s.identity.ShardID, s.identity.ShardCount}
	}
	return d
}

// discardSession forgets the resumable session state so the next connection
// identifies from scratch.
func (s *Session) discardSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.resumeURL = ""
	s.seq = 0
	s.hasSeq = false
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.fatalErr = err
	s.mu.Unlock()
	s.log.Error("gateway session terminated", "error", err)
	s.Close()
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev != next {
		s.log.Debug("gateway state", "from", prev.String(), "to", next.String())
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// sleep waits d unless the session closes first. Returns false on close.
func (s *Session) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.closed:
		return false
	}
}

// reconnectWait grows with consecutive failed connection attempts and stays
// zero after a healthy connection drops, so a one-off blip reconnects
// immediately.
func reconnectWait(failures int, ceiling time.Duration) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := time.Second << uint(failures-1)
	if ceiling > 0 && d > ceiling {
		d = ceiling
	}
	return d
}
