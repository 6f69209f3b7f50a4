package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/core"
	"github.com/peertutor/relay/internal/domain"
)

func (ctl *Controller) handleJoinSession(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	sid, err := stringArg(args, 0)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad JoinSession args")
		ctl.sendError(c, "bad_payload")
		return
	}

	out := ctl.dispatch.JoinSession(domain.SessionID(sid), id)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("session", sid).
		Stringer("transition", out.Transition).Msg("join session")
}

func (ctl *Controller) handleLeaveSession(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	sid, err := stringArg(args, 0)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad LeaveSession args")
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.LeaveSession(domain.SessionID(sid), id)
}

// handleRelay forwards an opaque signaling payload to one session member.
// The payload is never parsed here: SDP and ICE contents pass through
// byte-for-byte.
func (ctl *Controller) handleRelay(id domain.ConnectionID, c *wsConn, args []json.RawMessage, kind core.RelayKind) {
	sid, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	target, err := stringArg(args, 1)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	payload, err := rawArg(args, 2)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}

	ctl.dispatch.RelayToPeer(domain.SessionID(sid), id, domain.ConnectionID(target), kind, payload)
}

func (ctl *Controller) handleSendMessage(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	sid, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	text, err := stringArg(args, 1)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.BroadcastMessage(domain.SessionID(sid), id, text)
}
