package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"discord-bridge/internal/bridgeerr"
	"discord-bridge/internal/tracer"
)

// EventHandler is invoked once per DISPATCH event the Gateway sends,
// after READY/RESUMED bookkeeping has already been applied.
type EventHandler func(ctx context.Context, eventType string, data json.RawMessage)

// Client maintains one Discord Gateway session: dialing, identifying or
// resuming, heartbeating, decoding dispatch events, and reconnecting with
// backoff when the connection drops.
type Client struct {
	token   string
	intents int
	handler EventHandler
	logger  *slog.Logger

	session *SessionState
	backoff *fullJitterBackOff

	// baseURL is the Gateway endpoint to dial when no resume URL is held.
	// It defaults to gatewayURL; tests point it at a local server.
	baseURL string

	// heartbeatAcked is cleared each time a heartbeat is sent and set when
	// the corresponding ack arrives; if it is still clear when the next
	// heartbeat is due, the connection is considered zombied.
	heartbeatAcked atomic.Bool
}

// NewClient builds a Gateway Client. handler is called from the read
// loop's goroutine tree; it must not block for long, since it runs
// inline with sequence-number bookkeeping.
func NewClient(token string, intents int, handler EventHandler, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		intents: intents,
		handler: handler,
		logger:  logger,
		session: &SessionState{},
		backoff: newFullJitterBackOff(time.Second, 60*time.Second),
		baseURL: gatewayURL,
	}
}

// Run connects and stays connected until ctx is cancelled or a fatal
// close code is received from Discord, in which case it returns a
// wrapped bridgeerr.ErrGatewayFatal.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		connectedAt := timeNow()
		action, err := c.connectOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if action == actionFatal {
			return bridgeerr.New("gateway.Run", bridgeerr.ErrGatewayFatal, err.Error())
		}

		if action == actionReidentify {
			c.session.Clear()
		}

		// A connection that stayed up a while resets the backoff so a
		// brief blip doesn't inherit a long-accumulated delay.
		if timeNow().Sub(connectedAt) > 60*time.Second {
			c.backoff.Reset()
		}

		wrapped := bridgeerr.New("gateway.Run", bridgeerr.ErrGatewayTransient, err.Error())
		delay := c.backoff.NextBackOff()
		c.logger.Warn("gateway disconnected, reconnecting",
			"error", err, "delay", delay, "resumable", c.session.Resumable(),
			"error_kind", bridgeerr.CodeOf(wrapped), "retryable", bridgeerr.IsRetryable(wrapped))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// timeNow exists so tests can be deterministic if ever needed; production
// code always uses the real clock.
var timeNow = time.Now

// connSession bundles per-connection state shared between the read loop,
// the write (send) lane, and the heartbeat goroutine.
type connSession struct {
	ws     *websocket.Conn
	sendCh chan Payload
	done   chan struct{}
	once   sync.Once
}

func (cs *connSession) close() {
	cs.once.Do(func() { close(cs.done) })
}

// connectOnce dials the Gateway once, runs Identify-or-Resume, and blocks
// until the connection drops or ctx is cancelled. It returns the
// reconnect action implied by the close code observed (or actionResume
// if ctx was cancelled) plus the error that ended the connection.
func (c *Client) connectOnce(ctx context.Context) (closeAction, error) {
	ctx, span := tracer.StartSpan(ctx, "gateway.connect")
	defer span.End()

	url := c.baseURL + gatewayParams
	if _, resumeURL, _ := c.session.ResumeInfo(); resumeURL != "" {
		url = resumeURL + gatewayParams
	}

	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return actionResume, fmt.Errorf("dial gateway: %w", err)
	}
	ws.SetReadLimit(1 << 20)
	defer ws.CloseNow()

	cs := &connSession{
		ws:     ws,
		sendCh: make(chan Payload, 16),
		done:   make(chan struct{}),
	}

	// On context cancellation (shutdown), send a proper close handshake
	// instead of letting the deferred CloseNow abort the connection; the
	// deferred CloseNow is still what actually tears down the socket if
	// Close itself doesn't complete promptly.
	go func() {
		select {
		case <-ctx.Done():
			cs.ws.Close(websocket.StatusNormalClosure, "shutting down")
			cs.close()
		case <-cs.done:
		}
	}()

	hello, err := c.readHello(ctx, ws)
	if err != nil {
		tracer.RecordError(span, err)
		return actionResume, fmt.Errorf("read hello: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writeLoop(cs) }()

	forceHeartbeat := make(chan struct{}, 1)
	go func() { defer wg.Done(); c.heartbeatLoop(cs, forceHeartbeat, time.Duration(hello.HeartbeatInterval)*time.Millisecond) }()

	if err := c.identifyOrResume(cs); err != nil {
		cs.close()
		wg.Wait()
		return actionResume, err
	}

	action, err := c.readLoop(ctx, cs, forceHeartbeat)
	cs.close()
	wg.Wait()

	tracer.SetOK(span)
	return action, err
}

func (c *Client) readHello(ctx context.Context, ws *websocket.Conn) (HelloData, error) {
	var p Payload
	if err := wsjson.Read(ctx, ws, &p); err != nil {
		return HelloData{}, err
	}
	if p.Op != OpHello {
		return HelloData{}, fmt.Errorf("expected hello, got opcode %d", p.Op)
	}
	var hello HelloData
	if err := json.Unmarshal(p.D, &hello); err != nil {
		return HelloData{}, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

func (c *Client) identifyOrResume(cs *connSession) error {
	if c.session.Resumable() {
		sessionID, _, seq := c.session.ResumeInfo()
		d, err := json.Marshal(ResumeData{Token: c.token, SessionID: sessionID, Seq: seq})
		if err != nil {
			return err
		}
		return c.enqueue(cs, Payload{Op: OpResume, D: d})
	}

	d, err := json.Marshal(IdentifyData{
		Token: c.token,
		Properties: IdentifyProperties{
			OS:      runtime.GOOS,
			Browser: clientName,
			Device:  clientName,
		},
		Intents: c.intents,
	})
	if err != nil {
		return err
	}
	return c.enqueue(cs, Payload{Op: OpIdentify, D: d})
}

// enqueue hands a frame to the send lane. It blocks briefly rather than
// dropping, since Identify/Resume/Heartbeat frames are not optional.
func (c *Client) enqueue(cs *connSession, p Payload) error {
	select {
	case cs.sendCh <- p:
		return nil
	case <-cs.done:
		return errors.New("connection closed")
	}
}

// writeLoop is the single writer for this connection: every outbound
// frame, whether Identify, Resume, or Heartbeat, funnels through sendCh
// so writes are never interleaved on the wire.
func (c *Client) writeLoop(cs *connSession) {
	for {
		select {
		case <-cs.done:
			return
		case p := <-cs.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cs.ws, p)
			cancel()
			if err != nil {
				cs.close()
				return
			}
		}
	}
}

// heartbeatLoop sends periodic heartbeats with an initial random jitter
// (per Discord's guidance to avoid a reconnect storm ack-syncing to the
// same instant), honors out-of-band Op 1 heartbeat requests without
// resetting its own interval timer, and closes the connection if the
// previous heartbeat is still unacked when the next one is due (a zombied
// connection).
func (c *Client) heartbeatLoop(cs *connSession, forceHeartbeat <-chan struct{}, interval time.Duration) {
	c.heartbeatAcked.Store(true)

	jitter := time.Duration(rand.Int63n(int64(interval)))
	timer := time.NewTimer(jitter)
	defer timer.Stop()

	send := func() bool {
		if !c.heartbeatAcked.Swap(false) {
			c.logger.Warn("gateway heartbeat zombied, forcing reconnect")
			cs.ws.Close(websocket.StatusCode(closeUnknownError), "zombied heartbeat")
			cs.close()
			return false
		}
		if err := c.enqueue(cs, Payload{Op: OpHeartbeat, D: c.heartbeatData()}); err != nil {
			return false
		}
		return true
	}

	for {
		select {
		case <-cs.done:
			return
		case <-forceHeartbeat:
			_ = c.enqueue(cs, Payload{Op: OpHeartbeat, D: c.heartbeatData()})
		case <-timer.C:
			if !send() {
				return
			}
			timer.Reset(interval)
		}
	}
}

// readLoop dispatches every frame Discord sends until the connection
// drops, translating opcodes into session and handler updates.
func (c *Client) readLoop(ctx context.Context, cs *connSession, forceHeartbeat chan<- struct{}) (closeAction, error) {
	for {
		var p Payload
		err := wsjson.Read(ctx, cs.ws, &p)
		if err != nil {
			code := int(websocket.CloseStatus(err))
			if code < 0 {
				return actionResume, err
			}
			return classifyClose(code), err
		}

		switch p.Op {
		case OpDispatch:
			if p.S != nil {
				c.session.ObserveSequence(*p.S)
			}
			c.handleDispatch(ctx, p)
		case OpHeartbeat:
			select {
			case forceHeartbeat <- struct{}{}:
			default:
			}
		case OpReconnect:
			return actionResume, errors.New("gateway requested reconnect")
		case OpInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			jitter := invalidSessionJitter()
			select {
			case <-time.After(jitter):
			case <-ctx.Done():
				return actionResume, ctx.Err()
			}
			if resumable {
				return actionResume, errors.New("invalid session, resumable")
			}
			return actionReidentify, errors.New("invalid session, not resumable")
		case OpHeartbeatAck:
			c.heartbeatAcked.Store(true)
		}
	}
}

// invalidSessionJitter returns a random delay in [1s, 5s], per Discord's
// guidance to wait a random amount of time before re-identifying after an
// Invalid Session payload.
func invalidSessionJitter() time.Duration {
	return time.Duration(1+rand.Intn(5)) * time.Second
}

// heartbeatData marshals the current sequence number, or JSON null if
// none has been observed yet, matching Discord's documented heartbeat
// payload shape.
func (c *Client) heartbeatData() json.RawMessage {
	if seq, ok := c.session.Sequence(); ok {
		d, _ := json.Marshal(seq)
		return d
	}
	return json.RawMessage("null")
}

func (c *Client) handleDispatch(ctx context.Context, p Payload) {
	switch p.T {
	case "READY":
		var ready ReadyData
		if err := json.Unmarshal(p.D, &ready); err != nil {
			c.logger.Error("gateway: decode READY failed", "error", err)
			return
		}
		c.session.Ready(ready.SessionID, ready.ResumeGatewayURL)
		c.backoff.Reset()
	case "RESUMED":
		c.backoff.Reset()
	}
	if c.handler != nil {
		c.handler(ctx, p.T, p.D)
	}
}
