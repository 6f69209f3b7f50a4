package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/peertutor/relay/internal/domain"
)

func (ctl *Controller) handleJoinMessaging(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	user, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.JoinMessaging(domain.UserID(user), id)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", user).Msg("join messaging")
}

func (ctl *Controller) handleLeaveMessaging(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	user, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.LeaveMessaging(domain.UserID(user), id)
}

func (ctl *Controller) handleJoinForum(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	topic, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.JoinForum(domain.TopicID(topic), id)
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("topic", topic).Msg("join forum group")
}

func (ctl *Controller) handleLeaveForum(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	topic, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.LeaveForum(domain.TopicID(topic), id)
}

func (ctl *Controller) handleSendForumMessage(id domain.ConnectionID, c *wsConn, args []json.RawMessage) {
	topic, err := stringArg(args, 0)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	dto, err := rawArg(args, 1)
	if err != nil {
		ctl.sendError(c, "bad_payload")
		return
	}
	ctl.dispatch.BroadcastForum(domain.TopicID(topic), id, dto)
}
