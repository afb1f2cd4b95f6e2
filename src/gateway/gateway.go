package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

type GatewayStatus = string

const (
	StatusDisconnected  GatewayStatus = "DISCONNECTED"
	StatusConnecting    GatewayStatus = "CONNECTING"
	StatusConnected     GatewayStatus = "CONNECTED"
	StatusResuming      GatewayStatus = "RESUMING"
	StatusDisconnecting GatewayStatus = "DISCONNECTING"
)

const (
	defaultGatewayHost = "gateway.discord.gg"
	gatewayVersion     = 10
	// Cap for the exponential reconnect backoff.
	defaultBackoffCap = 60 * time.Second
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrNotAuthenticated     = errors.New("not authenticated")
	ErrDecode               = errors.New("invalid payload")
	ErrGatewayIsAlreadyOpen = errors.New("gateway is already open")
	ErrNotConnected         = errors.New("gateway is not connected")
	ErrUnknown              = errors.New("unknown error")
	ErrDisallowedIntents    = errors.New("disallowed intent. you may have tried to specify an intent that you have not enabled")
)

// Gateway owns the duplex socket and drives the opcode state machine:
// connect, identify or resume, heartbeat, and reconnect with backoff.
// All session state mutation happens under mu; outbound writes are
// serialized under writeMu.
type Gateway struct {
	mu                sync.RWMutex
	status            GatewayStatus
	wsurl             string
	resumeGatewayURL  string
	sessionID         string
	reconnectAttempts int
	wsConn            *websocket.Conn
	wsDialer          *websocket.Dialer

	writeMu     sync.Mutex
	sendLimiter *sendLimiter

	sequence    atomic.Uint64
	hasSequence atomic.Bool
	reconnectMu sync.Mutex

	heartbeat       *heartbeat
	zombieThreshold int
	backoffCap      time.Duration

	ctx        context.Context
	handlers   *handlerRegistry
	botToken   string
	botIntents int
	properties IdentifyEventProperties
	log        zerolog.Logger
}

type Arguments struct {
	BotToken   string
	BotIntents []GatewayIntent

	// GatewayURL overrides the default connect endpoint. Mostly useful
	// for tests pointing at a local socket server.
	GatewayURL string
	Properties IdentifyEventProperties

	ZombieThreshold int
	BackoffCap      time.Duration

	Logger zerolog.Logger
}

func NewGateway(args Arguments) *Gateway {
	wsurl := args.GatewayURL
	if wsurl == "" {
		// https://discord.com/developers/docs/reference#http-api
		u := url.URL{
			Scheme:   "wss",
			Host:     defaultGatewayHost,
			RawQuery: fmt.Sprintf("v=%v&encoding=json", gatewayVersion),
		}
		wsurl = u.String()
	}

	intents := 0
	for _, v := range args.BotIntents {
		intents += v
	}

	properties := args.Properties
	if properties == (IdentifyEventProperties{}) {
		properties = IdentifyEventProperties{
			Os:      "linux",
			Browser: "skua",
			Device:  "skua",
		}
	}

	backoffCap := args.BackoffCap
	if backoffCap <= 0 {
		backoffCap = defaultBackoffCap
	}

	return &Gateway{
		wsDialer:        websocket.DefaultDialer,
		wsurl:           wsurl,
		status:          StatusDisconnected,
		botToken:        args.BotToken,
		botIntents:      intents,
		properties:      properties,
		zombieThreshold: args.ZombieThreshold,
		backoffCap:      backoffCap,
		sendLimiter:     newSendLimiter(),
		handlers:        newHandlerRegistry(),
		log:             args.Logger,
	}
}

// Handle registers fn for a single dispatch event name.
func (g *Gateway) Handle(event EventName, fn EventHandler) {
	g.handlers.add(event, fn)
}

// HandleAll registers fn for every dispatch event.
func (g *Gateway) HandleAll(fn EventHandler) {
	g.handlers.addCatchAll(fn)
}

func (g *Gateway) Status() GatewayStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	if g.wsConn != nil {
		g.mu.Unlock()
		return ErrGatewayIsAlreadyOpen
	}
	g.mu.Unlock()
	g.ctx = ctx
	return g.connect(g.wsurl)
}

func (g *Gateway) connect(wsurl string) error {
	g.log.Info().Str("url", wsurl).Msg("connecting to gateway...")
	g.setStatus(StatusConnecting)
	conn, _, err := g.wsDialer.DialContext(g.ctx, wsurl, nil)
	if err != nil {
		g.setStatus(StatusDisconnected)
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}
	g.mu.Lock()
	g.wsConn = conn
	g.mu.Unlock()
	go g.listen(conn)
	return nil
}

// listen receives frames for a single connection generation. When the
// current connection changes underneath it, the stale loop exits.
func (g *Gateway) listen(conn *websocket.Conn) {
	for {
		select {
		case <-g.ctx.Done():
			g.log.Info().Msg("gateway stopped listening")
			return
		default:
		}
		g.mu.RLock()
		same := g.wsConn == conn
		g.mu.RUnlock()
		if !same {
			// A new connection has been opened; this generation is done.
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			g.mu.RLock()
			same := g.wsConn == conn
			intentional := g.status == StatusDisconnecting || g.status == StatusDisconnected
			g.mu.RUnlock()
			if !same || intentional {
				return
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				g.handleClose(closeErr)
				return
			}
			g.log.Warn().Err(err).Msg("gateway connection lost")
			g.scheduleReconnect(true)
			return
		}
		if err := g.acceptEvent(message); err != nil {
			g.log.Error().Err(err).Msg("failed to handle gateway event")
		}
	}
}

// closeCodeError maps a server close code onto the matching sentinel.
func closeCodeError(code int) error {
	switch code {
	case AuthenticationFailed:
		return ErrAuthenticationFailed
	case NotAuthenticated:
		return ErrNotAuthenticated
	case DecodeError:
		return ErrDecode
	case InvalidIntents, DisallowedIntents:
		return ErrDisallowedIntents
	default:
		return ErrUnknown
	}
}

// handleClose classifies a server close frame. Configuration mistakes
// cannot be fixed by retrying, so those codes stop the session for
// good; a stale session state forces a fresh identify instead.
func (g *Gateway) handleClose(closeErr *websocket.CloseError) {
	switch closeErr.Code {
	case AuthenticationFailed, InvalidShard, ShardingRequired, InvalidAPIVersion, InvalidIntents, DisallowedIntents:
		g.log.Error().Err(closeCodeError(closeErr.Code)).Int("code", closeErr.Code).Str("reason", closeErr.Text).Msg("gateway closed with a fatal code")
		g.clearSession()
		g.setStatus(StatusDisconnected)
	case InvalidSeq, SessionTimedOut:
		g.log.Warn().Int("code", closeErr.Code).Msg("session no longer resumable, re-identifying")
		g.scheduleReconnect(false)
	default:
		g.log.Warn().Err(closeCodeError(closeErr.Code)).Int("code", closeErr.Code).Str("reason", closeErr.Text).Msg("gateway connection closed")
		g.scheduleReconnect(true)
	}
}

func (g *Gateway) acceptEvent(rawMessage []byte) error {
	var e RawEvent
	if err := wireJSON.Unmarshal(rawMessage, &e); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	switch e.Op {
	case OpcodeHello:
		return g.handleHello(e)
	case OpcodeDispatch:
		return g.handleDispatch(e)
	case OpcodeHeartbeat:
		// The server wants a beat right now, off-cadence.
		return g.sendEvent(Event{Op: OpcodeHeartbeat, D: g.sequenceOrNil()})
	case OpcodeHeartbeatAck:
		g.mu.RLock()
		hb := g.heartbeat
		g.mu.RUnlock()
		if hb != nil {
			hb.ack()
		}
	case OpcodeReconnect:
		g.log.Info().Msg("server requested reconnect")
		g.scheduleReconnect(true)
	case OpcodeInvalidSession:
		return g.handleInvalidSession(e)
	}
	return nil
}

func (g *Gateway) handleHello(e RawEvent) error {
	var hello HelloEventData
	if err := wireJSON.Unmarshal(e.D, &hello); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	hb := newHeartbeat(
		time.Duration(hello.HeartbeatInterval)*time.Millisecond,
		g.zombieThreshold,
		g.sequenceOrNil,
		func(seq interface{}) error {
			return g.sendEvent(Event{Op: OpcodeHeartbeat, D: seq})
		},
		g.onZombie,
		g.log,
	)
	// Started before it is published so a concurrent stopHeartbeat
	// can always cancel the loop it observes.
	hb.start(g.ctx)
	g.mu.Lock()
	if g.heartbeat != nil {
		// Should have been stopped by the reconnect path already.
		go g.heartbeat.stop()
	}
	g.heartbeat = hb
	resume := g.canResumeLocked()
	sessionID := g.sessionID
	seq := g.sequence.Load()
	g.mu.Unlock()

	if resume {
		g.setStatus(StatusResuming)
		g.log.Info().Msg("resuming previous session")
		return g.sendEvent(Event{
			Op: OpcodeResume,
			D: ResumeEventData{
				Token:     g.botToken,
				SessionID: sessionID,
				Seq:       seq,
			},
		})
	}
	g.log.Info().Msg("identifying new session")
	return g.sendEvent(Event{
		Op: OpcodeIdentify,
		D: IdentifyEventData{
			Token:      g.botToken,
			Intents:    g.botIntents,
			Properties: g.properties,
			Compress:   false,
		},
	})
}

func (g *Gateway) handleDispatch(e RawEvent) error {
	if e.S > 0 {
		g.advanceSequence(e.S)
	}
	switch e.T {
	case EventNameReady:
		var ready ReadyEventData
		if err := wireJSON.Unmarshal(e.D, &ready); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		g.mu.Lock()
		g.sessionID = ready.SessionID
		g.resumeGatewayURL = ready.ResumeGatewayURL
		g.reconnectAttempts = 0
		g.status = StatusConnected
		g.mu.Unlock()
		g.log.Info().Str("session_id", ready.SessionID).Msg("gateway is ready")
	case EventNameResumed:
		g.mu.Lock()
		g.reconnectAttempts = 0
		g.status = StatusConnected
		g.mu.Unlock()
		g.log.Info().Msg("gateway session resumed")
	}
	g.handlers.dispatch(g.ctx, e.T, e.D)
	return nil
}

func (g *Gateway) handleInvalidSession(e RawEvent) error {
	var resumable bool
	if err := wireJSON.Unmarshal(e.D, &resumable); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	g.log.Warn().Bool("resumable", resumable).Msg("session invalidated by server")
	if !resumable {
		g.clearSession()
	}
	g.scheduleReconnect(resumable)
	return nil
}

// advanceSequence moves the last-seen sequence forward, never back.
func (g *Gateway) advanceSequence(s uint64) {
	for {
		cur := g.sequence.Load()
		if s <= cur && g.hasSequence.Load() {
			return
		}
		if g.sequence.CompareAndSwap(cur, s) {
			g.hasSequence.Store(true)
			return
		}
	}
}

func (g *Gateway) sequenceOrNil() interface{} {
	if !g.hasSequence.Load() {
		return nil
	}
	return g.sequence.Load()
}

func (g *Gateway) canResumeLocked() bool {
	return g.sessionID != "" && g.resumeGatewayURL != "" && g.hasSequence.Load()
}

func (g *Gateway) clearSession() {
	g.mu.Lock()
	g.sessionID = ""
	g.resumeGatewayURL = ""
	g.mu.Unlock()
	g.hasSequence.Store(false)
	g.sequence.Store(0)
}

func (g *Gateway) onZombie() {
	g.log.Warn().Msg("no heartbeat acknowledgement, reconnecting")
	g.scheduleReconnect(true)
}

func (g *Gateway) scheduleReconnect(resume bool) {
	go g.reconnect(resume)
}

// reconnect tears down the current generation and dials a new one with
// capped exponential backoff. A dial failure forfeits resume: the next
// attempt starts a fresh session, so an unreachable resume URL cannot
// wedge the client.
func (g *Gateway) reconnect(resume bool) {
	g.reconnectMu.Lock()
	defer g.reconnectMu.Unlock()
	for {
		g.stopHeartbeat()
		g.closeSocket(websocket.CloseServiceRestart)
		g.setStatus(StatusDisconnected)

		if !resume {
			g.clearSession()
		}
		g.mu.Lock()
		g.reconnectAttempts++
		attempts := g.reconnectAttempts
		target := g.wsurl
		if resume && g.canResumeLocked() {
			target = normalizeGatewayURL(g.resumeGatewayURL)
		}
		g.mu.Unlock()
		if target == "" {
			u := url.URL{
				Scheme:   "wss",
				Host:     defaultGatewayHost,
				RawQuery: fmt.Sprintf("v=%v&encoding=json", gatewayVersion),
			}
			target = u.String()
		}

		delay := reconnectDelay(attempts, g.backoffCap)
		g.log.Info().Int("attempt", attempts).Dur("delay", delay).Msg("reconnecting...")
		select {
		case <-g.ctx.Done():
			return
		case <-time.After(delay):
		}

		err := g.connect(target)
		if err == nil {
			return
		}
		g.log.Error().Err(err).Msg("reconnect failed, will re-identify")
		resume = false
	}
}

func reconnectDelay(attempts int, backoffCap time.Duration) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempts-1))) * time.Second
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

func normalizeGatewayURL(raw string) string {
	rurl, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u := url.URL{
		Scheme:   rurl.Scheme,
		Host:     rurl.Host,
		RawQuery: fmt.Sprintf("v=%v&encoding=json", gatewayVersion),
	}
	return u.String()
}

// UpdatePresence sends a presence update. Only valid while the session
// is connected or resuming.
func (g *Gateway) UpdatePresence(data PresenceUpdateData) error {
	status := g.Status()
	if status != StatusConnected && status != StatusResuming {
		return ErrNotConnected
	}
	return g.sendEvent(Event{Op: OpcodePresenceUpdate, D: data})
}

// Close tears the session down intentionally; the automatic reconnect
// path does not run for a close initiated here.
func (g *Gateway) Close() {
	g.setStatus(StatusDisconnecting)
	g.stopHeartbeat()
	g.closeSocket(websocket.CloseNormalClosure)
	g.setStatus(StatusDisconnected)
	g.log.Info().Msg("gateway connection closed")
}

func (g *Gateway) stopHeartbeat() {
	g.mu.Lock()
	hb := g.heartbeat
	g.heartbeat = nil
	g.mu.Unlock()
	if hb != nil {
		hb.stop()
	}
}

func (g *Gateway) closeSocket(closeCode int) {
	g.mu.Lock()
	conn := g.wsConn
	g.wsConn = nil
	g.mu.Unlock()
	if conn == nil {
		return
	}
	g.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, ""))
	g.writeMu.Unlock()
	conn.Close()
}

func (g *Gateway) sendEvent(e Event) error {
	data, err := wireJSON.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal gateway event: %w", err)
	}
	if err := g.sendLimiter.wait(g.ctx); err != nil {
		return err
	}
	g.mu.RLock()
	conn := g.wsConn
	g.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gateway) setStatus(status GatewayStatus) {
	g.mu.Lock()
	g.status = status
	g.mu.Unlock()
}
