package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// WsDialer opens websocket connections with keepalive enabled.
type WsDialer struct {
	dialer *websocket.Dialer
}

func NewWsDialer() *WsDialer {
	return &WsDialer{dialer: websocket.DefaultDialer}
}

func (d *WsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
			// the server understood us and said no; retrying won't help
			return nil, &ProtocolError{Code: resp.StatusCode, Reason: resp.Status}
		}

		return nil, &ConnectionError{Err: err}
	}

	wc := &wsConn{conn: conn, done: make(chan struct{})}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go wc.pingLoop()

	return wc, nil
}

type wsConn struct {
	conn *websocket.Conn

	// writeMu serializes WriteFrame and keepalive pings; gorilla permits
	// only one concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

func (c *wsConn) ReadFrame() (*Frame, error) {
	var f Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return nil, classifyReadError(err)
	}

	return &f, nil
}

func (c *wsConn) WriteFrame(f *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(f); err != nil {
		return &ConnectionError{Err: err}
	}

	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})

	return err
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()

			if err != nil {
				// reader will observe the broken connection
				return
			}
		}
	}
}

// classifyReadError maps websocket close codes onto the error taxonomy:
// close codes that indicate the remote rejected what we sent are fatal,
// everything else is a transient connection failure.
func classifyReadError(err error) error {
	if ce, ok := err.(*websocket.CloseError); ok {
		switch ce.Code {
		case websocket.CloseUnsupportedData,
			websocket.CloseInvalidFramePayloadData,
			websocket.ClosePolicyViolation,
			websocket.CloseMandatoryExtension:
			return &ProtocolError{Code: ce.Code, Reason: ce.Text}
		}
	}

	return &ConnectionError{Err: err}
}

var _ Dialer = (*WsDialer)(nil)
var _ Conn = (*wsConn)(nil)
