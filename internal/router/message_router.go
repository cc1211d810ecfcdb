// Package router canonicalizes inbound messages into stable route keys and
// matches them against ordered agent routing rules.
package router

import (
	"fmt"

	"github.com/haasonsaas/nexus/pkg/models"
)

// RouteKey computes the canonical, stable key a message binds a session to.
// Group threads route per-thread; group messages without a thread route
// per-user within the group; direct messages route per-user on the channel.
func RouteKey(msg models.InboundMessage) string {
	channelID := msg.ChannelID
	userID := msg.From.UserID
	if userID == "" {
		userID = "anonymous"
	}

	if msg.From.GroupID != "" {
		if msg.From.ThreadID != "" {
			return fmt.Sprintf("%s:group:%s:thread:%s", channelID, msg.From.GroupID, msg.From.ThreadID)
		}
		return fmt.Sprintf("%s:group:%s:user:%s", channelID, msg.From.GroupID, userID)
	}
	return fmt.Sprintf("%s:%s", channelID, userID)
}
