package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/core"
	"github.com/peertutor/relay/internal/domain"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump loops until the transport reports disconnection, then runs the
// reaper exactly once for this connection.
func (ctl *Controller) readPump(ctx context.Context, id domain.ConnectionID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.dispatch.OnDisconnect(id)
		ctl.limiter.Forget(id)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.handleOp(id, c, data)
		}
	}
}

// opEnvelope is the client→server wire shape: {"op": ..., "args": [...]}.
type opEnvelope struct {
	Op   string            `json:"op"`
	Args []json.RawMessage `json:"args"`
}

func (ctl *Controller) handleOp(id domain.ConnectionID, c *wsConn, data []byte) {
	var env opEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad envelope")
		ctl.sendError(c, "bad_payload")
		return
	}

	if !ctl.limiter.Allow(id) {
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("op", env.Op).Msg("rate limited, op dropped")
		return
	}

	switch env.Op {
	case "JoinSession":
		ctl.handleJoinSession(id, c, env.Args)
	case "LeaveSession":
		ctl.handleLeaveSession(id, c, env.Args)
	case "SendOffer":
		ctl.handleRelay(id, c, env.Args, core.RelayOffer)
	case "SendAnswer":
		ctl.handleRelay(id, c, env.Args, core.RelayAnswer)
	case "SendIceCandidate":
		ctl.handleRelay(id, c, env.Args, core.RelayIceCandidate)
	case "SendMessage":
		ctl.handleSendMessage(id, c, env.Args)
	case "JoinMessaging":
		ctl.handleJoinMessaging(id, c, env.Args)
	case "LeaveMessaging":
		ctl.handleLeaveMessaging(id, c, env.Args)
	case "JoinForumGroup":
		ctl.handleJoinForum(id, c, env.Args)
	case "LeaveForumGroup":
		ctl.handleLeaveForum(id, c, env.Args)
	case "SendForumMessage":
		ctl.handleSendForumMessage(id, c, env.Args)
	default:
		log.Warn().Str("module", "signal").Str("op", env.Op).Msg("unknown op")
		ctl.sendError(c, "unknown_op")
	}
}

func (ctl *Controller) sendEvent(c *wsConn, ev core.Event) {
	frame, err := ev.Frame()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("event", ev.Event).Msg("marshal event")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *Controller) sendError(c *wsConn, reason string) {
	ctl.sendEvent(c, core.NewEvent(core.EventError, reason))
}

func stringArg(args []json.RawMessage, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing arg %d", i)
	}
	var s string
	if err := json.Unmarshal(args[i], &s); err != nil {
		return "", fmt.Errorf("arg %d: %w", i, err)
	}
	return s, nil
}

func rawArg(args []json.RawMessage, i int) (json.RawMessage, error) {
	if i >= len(args) {
		return nil, fmt.Errorf("missing arg %d", i)
	}
	return args[i], nil
}
