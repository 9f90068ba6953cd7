package workload

import (
	"context"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/torosent/crankbench/internal/config"
	"github.com/torosent/crankbench/internal/httpclient"
)

const closeGrace = time.Second

// WebSocket dials, sends the payload and awaits one reply per invocation.
// An empty payload times the handshake alone.
type WebSocket struct {
	url     string
	headers http.Header
	dialer  *websocket.Dialer
	payload httpclient.Payload
	timeout time.Duration
	expect  expectations
	inject  httpclient.HeaderInjector
}

// NewWebSocket builds a WebSocket workload from cfg.
func NewWebSocket(cfg config.WorkloadConfig) (*WebSocket, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket url is required")
	}
	payload, err := httpclient.LoadPayload(cfg)
	if err != nil {
		return nil, err
	}
	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebSocket{
		url:     cfg.URL,
		headers: headers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		payload: payload,
		timeout: timeout,
		expect:  newExpectations(cfg.ExpectJSON),
	}, nil
}

// WithHeaderInjector applies inject to every handshake request.
func (w *WebSocket) WithHeaderInjector(inject httpclient.HeaderInjector) *WebSocket {
	w.inject = inject
	return w
}

func (w *WebSocket) Do(ctx context.Context) error {
	headers := w.headers.Clone()
	if w.inject != nil {
		w.inject(ctx, headers)
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer closeConn(conn)

	if w.payload.Empty() {
		return nil
	}

	deadline := time.Now().Add(w.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)
	// A cancelled run unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	msgType := websocket.TextMessage
	if !utf8.Valid(w.payload.Bytes()) {
		msgType = websocket.BinaryMessage
	}
	if err := conn.WriteMessage(msgType, w.payload.Bytes()); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read message: %w", err)
	}
	return w.expect.check(data)
}

func closeConn(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace),
	)
	_ = conn.Close()
}
