package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/config"
	"github.com/peertutor/relay/internal/core"
)

var ErrConnClosed = errors.New("connection closed")

// Controller owns the WebSocket endpoint: one connection per client,
// multiplexing client ops and server events as JSON envelopes.
type Controller struct {
	cfg      *config.Config
	dispatch *core.Dispatcher
	limiter  *opRateLimiter
}

func NewController(cfg *config.Config, dispatch *core.Dispatcher) *Controller {
	return &Controller{
		cfg:      cfg,
		dispatch: dispatch,
		limiter:  newOpRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}
}

// wsConn wraps one gorilla connection behind a buffered send channel. The
// write pump is the only goroutine touching the socket for writes, which
// preserves per-connection delivery order; TrySend drops instead of
// blocking when the buffer is full.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until the
// transport drops. The client learns its ConnectionId from the Connected
// event pushed first.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	id := ctl.dispatch.Connect(conn)
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new WS connection")

	ctl.sendEvent(conn, core.NewEvent(core.EventConnected, id))

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, id, conn)
	}()
}
