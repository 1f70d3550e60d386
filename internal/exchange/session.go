// session.go implements the duplex WebSocket session the rest of the
// engine treats as ground truth: authentication, subscription, send, and
// receive, with automatic reconnection and exponential backoff.
//
// Unlike a feed carrying several distinct typed channels, this venue wraps
// every message — replies, events, errors alike — in one Frame envelope
// keyed by operation name, so one Frames() channel suffices; the Router
// (internal/router) does the per-operation dispatch that would otherwise
// live here.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"triarb/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	frameBufferSize  = 256
)

// Session is a duplex exchange connection: authenticate, subscribe, send
// orders, and receive every inbound frame on one channel.
type Session interface {
	Run(ctx context.Context) error
	Frames() <-chan types.Frame
	SendOrder(ctx context.Context, req types.SendOrderRequest) error
	Subscribe(ctx context.Context, op string, payload interface{}) error
	Close() error
}

// wsSession is the gorilla/websocket-backed Session implementation.
type wsSession struct {
	url    string
	auth   *Auth
	oms    int
	rl     *RateLimiter
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	seq int64

	frames chan types.Frame
}

// NewSession constructs a Session against the given WebSocket URL. auth
// must not be nil — every session authenticates before subscribing.
func NewSession(url string, auth *Auth, oms int, logger *slog.Logger) Session {
	return &wsSession{
		url:    url,
		auth:   auth,
		oms:    oms,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "session"),
		frames: make(chan types.Frame, frameBufferSize),
	}
}

func (s *wsSession) Frames() <-chan types.Frame { return s.frames }

// Run connects and maintains the connection with exponential backoff (1s
// to 30s max) until ctx is cancelled.
func (s *wsSession) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("session disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (s *wsSession) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if err := s.authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	s.logger.Info("session connected and authenticated")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var frame types.Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			s.logger.Warn("ignoring non-frame message", "data", string(msg))
			continue
		}

		select {
		case s.frames <- frame:
		default:
			s.logger.Warn("frame channel full, dropping frame", "op", frame.Op)
		}
	}
}

func (s *wsSession) authenticate(ctx context.Context) error {
	nonce := time.Now().UnixNano()
	req := s.auth.Sign(nonce)
	return s.send(types.Frame{
		MsgType: types.MsgRequest,
		Seq:     s.nextSeq(),
		Op:      "AuthenticateUser",
	}, req)
}

// SendOrder rate-limits and sends a SendOrder REQUEST frame.
func (s *wsSession) SendOrder(ctx context.Context, req types.SendOrderRequest) error {
	if err := s.rl.SendOrder.Wait(ctx); err != nil {
		return err
	}
	return s.send(types.Frame{
		MsgType: types.MsgRequest,
		Seq:     s.nextSeq(),
		Op:      "SendOrder",
	}, req)
}

// Subscribe rate-limits and sends a SUBSCRIBE frame for the given
// operation (SubscribeLevel2, SubscribeAccountEvents, ...).
func (s *wsSession) Subscribe(ctx context.Context, op string, payload interface{}) error {
	if err := s.rl.Subscribe.Wait(ctx); err != nil {
		return err
	}
	return s.send(types.Frame{
		MsgType: types.MsgSubscribe,
		Seq:     s.nextSeq(),
		Op:      op,
	}, payload)
}

func (s *wsSession) send(frame types.Frame, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	frame.Payload = string(body)

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) nextSeq() int64 {
	return atomic.AddInt64(&s.seq, 1)
}

func (s *wsSession) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// Close gracefully closes the underlying connection, if any.
func (s *wsSession) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
