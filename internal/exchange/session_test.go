package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"triarb/pkg/types"
)

// newTestServer accepts a websocket connection, reads the AuthenticateUser
// frame, then echoes back a single EVENT frame so the session's read loop
// has something to deliver.
func newTestServer(t *testing.T, onAuth func(types.Frame)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame types.Frame
		if err := json.Unmarshal(msg, &frame); err == nil {
			onAuth(frame)
		}

		event := types.Frame{MsgType: types.MsgEvent, Seq: 1, Op: "Level2UpdateEvent", Payload: "[]"}
		data, _ := json.Marshal(event)
		conn.WriteMessage(websocket.TextMessage, data)

		// Keep the connection open briefly so the client's read loop has
		// time to deliver the frame before the handler returns.
		time.Sleep(200 * time.Millisecond)
	}))
	return srv
}

func TestSessionAuthenticatesAndDeliversFrames(t *testing.T) {
	t.Parallel()

	var authed types.Frame
	srv := newTestServer(t, func(f types.Frame) { authed = f })
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	sess := NewSession(wsURL, NewAuth(1, "key", "secret"), 1, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go sess.Run(ctx)

	select {
	case frame := <-sess.Frames():
		if frame.Op != "Level2UpdateEvent" {
			t.Errorf("frame.Op = %s, want Level2UpdateEvent", frame.Op)
		}
	case <-time.After(time.Second):
		t.Fatal("did not receive frame within deadline")
	}

	if authed.Op != "AuthenticateUser" {
		t.Errorf("server observed op = %s, want AuthenticateUser", authed.Op)
	}
}

func TestSessionSendOrderSendsThroughRateLimiter(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(types.Frame) {})
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewSession(wsURL, NewAuth(1, "key", "secret"), 1, testLogger()).(*wsSession)
	s.rl.SendOrder = NewTokenBucket(1, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	// Give the dial a moment to complete before sending.
	time.Sleep(100 * time.Millisecond)

	err := s.SendOrder(ctx, types.SendOrderRequest{InstrumentId: 1})
	if err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
}
