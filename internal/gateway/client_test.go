package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeGateway is a minimal stand-in for Discord's real-time endpoint: it
// sends Hello, expects Identify, sends a couple of dispatch events, and
// acks heartbeats.
type fakeGateway struct {
	t          *testing.T
	seq        int64
	identified chan struct{}
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()
	ctx := r.Context()

	helloD, _ := json.Marshal(HelloData{HeartbeatInterval: 50})
	if err := wsjson.Write(ctx, ws, Payload{Op: OpHello, D: helloD}); err != nil {
		return
	}

	var identify Payload
	if err := wsjson.Read(ctx, ws, &identify); err != nil {
		return
	}
	if identify.Op != OpIdentify {
		f.t.Errorf("expected Identify, got opcode %d", identify.Op)
	}
	close(f.identified)

	f.seq++
	readyData, _ := json.Marshal(ReadyData{SessionID: "sess-1", ResumeGatewayURL: "ws://unused"})
	seq := f.seq
	if err := wsjson.Write(ctx, ws, Payload{Op: OpDispatch, T: "READY", S: &seq, D: readyData}); err != nil {
		return
	}

	f.seq++
	msgData, _ := json.Marshal(map[string]string{"content": "hi"})
	seq = f.seq
	if err := wsjson.Write(ctx, ws, Payload{Op: OpDispatch, T: "MESSAGE_CREATE", S: &seq, D: msgData}); err != nil {
		return
	}

	// Ack any heartbeats until the client disconnects.
	for {
		var p Payload
		if err := wsjson.Read(ctx, ws, &p); err != nil {
			return
		}
		if p.Op == OpHeartbeat {
			if err := wsjson.Write(ctx, ws, Payload{Op: OpHeartbeatAck}); err != nil {
				return
			}
		}
	}
}

// zombieGateway sends Hello with a short heartbeat interval and never acks
// any heartbeat, forcing the client to detect a zombied connection.
type zombieGateway struct {
	closeCode chan int
}

func (z *zombieGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()
	ctx := r.Context()

	helloD, _ := json.Marshal(HelloData{HeartbeatInterval: 20})
	if err := wsjson.Write(ctx, ws, Payload{Op: OpHello, D: helloD}); err != nil {
		return
	}

	var identify Payload
	if err := wsjson.Read(ctx, ws, &identify); err != nil {
		return
	}

	for {
		var p Payload
		err := wsjson.Read(ctx, ws, &p)
		if err != nil {
			z.closeCode <- int(websocket.CloseStatus(err))
			return
		}
		// Never ack heartbeats.
	}
}

func TestZombiedHeartbeatClosesWithDiscordUnknownErrorCode(t *testing.T) {
	zg := &zombieGateway{closeCode: make(chan int, 1)}
	srv := httptest.NewServer(zg)
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient("test-token", 0, nil, logger)
	c.baseURL = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go c.Run(ctx)

	select {
	case code := <-zg.closeCode:
		if code != closeUnknownError {
			t.Errorf("close code = %d, want %d", code, closeUnknownError)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed the client's close frame")
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientIdentifiesAndDeliversDispatch(t *testing.T) {
	fg := &fakeGateway{t: t, identified: make(chan struct{})}
	srv := httptest.NewServer(fg)
	defer srv.Close()

	var mu sync.Mutex
	var received []string
	done := make(chan struct{})

	handler := func(_ context.Context, eventType string, _ json.RawMessage) {
		mu.Lock()
		received = append(received, eventType)
		n := len(received)
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient("test-token", 513, handler, logger)
	c.baseURL = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go c.Run(ctx)

	select {
	case <-fg.identified:
	case <-time.After(2 * time.Second):
		t.Fatal("server never observed an Identify frame")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("did not receive both dispatch events, got %v", received)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 || received[0] != "READY" || received[1] != "MESSAGE_CREATE" {
		t.Errorf("received = %v", received)
	}

	if !c.session.Resumable() {
		t.Error("expected session to become resumable after READY")
	}
}

// resumableGateway drops its first connection with a resumable close code
// after READY, then expects the client's second connection to send an
// actual Resume frame (op 6) carrying the session_id/seq from that READY,
// rather than a fresh Identify.
type resumableGateway struct {
	t         *testing.T
	resumeURL string
	conns     atomic.Int32
	resumed   chan struct{}
	sawResume atomic.Bool
}

func (g *resumableGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()
	ctx := r.Context()

	helloD, _ := json.Marshal(HelloData{HeartbeatInterval: 200})
	if err := wsjson.Write(ctx, ws, Payload{Op: OpHello, D: helloD}); err != nil {
		return
	}

	n := g.conns.Add(1)
	if n == 1 {
		var identify Payload
		if err := wsjson.Read(ctx, ws, &identify); err != nil {
			return
		}
		if identify.Op != OpIdentify {
			g.t.Errorf("first connection: expected Identify, got opcode %d", identify.Op)
		}

		seq := int64(1)
		readyData, _ := json.Marshal(ReadyData{SessionID: "sess-resume", ResumeGatewayURL: g.resumeURL})
		if err := wsjson.Write(ctx, ws, Payload{Op: OpDispatch, T: "READY", S: &seq, D: readyData}); err != nil {
			return
		}

		// Force the client to disconnect with a documented resumable
		// close code instead of a generic transport drop.
		ws.Close(websocket.StatusCode(closeSessionTimedOut), "session timed out")
		return
	}

	var resume Payload
	if err := wsjson.Read(ctx, ws, &resume); err != nil {
		return
	}
	if resume.Op != OpResume {
		g.t.Errorf("second connection: expected Resume, got opcode %d", resume.Op)
		return
	}
	var resumeData ResumeData
	if err := json.Unmarshal(resume.D, &resumeData); err != nil {
		g.t.Errorf("decode resume payload: %v", err)
		return
	}
	if resumeData.SessionID != "sess-resume" || resumeData.Seq != 1 {
		g.t.Errorf("resume payload = %+v, want session sess-resume seq 1", resumeData)
	}
	g.sawResume.Store(true)
	close(g.resumed)

	for {
		var p Payload
		if err := wsjson.Read(ctx, ws, &p); err != nil {
			return
		}
		if p.Op == OpHeartbeat {
			if err := wsjson.Write(ctx, ws, Payload{Op: OpHeartbeatAck}); err != nil {
				return
			}
		}
	}
}

func TestResumableCloseCodeSendsResumeNotFreshIdentify(t *testing.T) {
	rg := &resumableGateway{t: t, resumed: make(chan struct{})}
	srv := httptest.NewServer(rg)
	defer srv.Close()
	rg.resumeURL = wsURL(srv)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewClient("test-token", 0, nil, logger)
	c.baseURL = wsURL(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go c.Run(ctx)

	select {
	case <-rg.resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("client never sent a Resume frame after a resumable close code")
	}

	if !rg.sawResume.Load() {
		t.Error("expected the second connection to observe a Resume frame")
	}
}

func TestHeartbeatDataNullBeforeSequence(t *testing.T) {
	c := NewClient("t", 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if string(c.heartbeatData()) != "null" {
		t.Errorf("heartbeatData() = %s, want null", c.heartbeatData())
	}
	c.session.ObserveSequence(42)
	if string(c.heartbeatData()) != "42" {
		t.Errorf("heartbeatData() = %s, want 42", c.heartbeatData())
	}
}

func TestInvalidSessionJitterIsWithinOneToFiveSeconds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := invalidSessionJitter()
		if d < time.Second || d > 5*time.Second {
			t.Fatalf("invalidSessionJitter() = %v, want in [1s, 5s]", d)
		}
	}
}
