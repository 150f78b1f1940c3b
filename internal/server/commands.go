package server

import (
	"errors"

	"github.com/Tyrowin/tempest/internal/protocol"
)

// dispatch executes one parsed command. It returns false only for /bye.
func (c *Client) dispatch(cmd protocol.Command) bool {
	switch cmd.Kind {
	case protocol.KindConnect:
		c.handleConnect(cmd.Arg)
	case protocol.KindRoom:
		c.handleRoom(cmd.Arg)
	case protocol.KindWho:
		c.handleWho()
	case protocol.KindHelp:
		c.reply(protocol.Help)
	case protocol.KindBye:
		c.handleBye()
		return false
	case protocol.KindChat:
		c.handleChat(cmd.Arg)
	case protocol.KindUnknown:
		c.reply(protocol.UnknownCommand)
	}
	return true
}

func (c *Client) handleConnect(arg string) {
	nickname, err := protocol.ValidateNickname(arg)
	if err != nil {
		c.reply(err.Error())
		return
	}

	avatar, err := c.server.sessions.claim(c.session, nickname, c.server.pickAvatar)
	if errors.Is(err, ErrNicknameTaken) {
		c.logger.Info("nickname rejected", "nickname", nickname)
		c.reply(protocol.NicknameTaken)
		return
	}

	c.logger.Info("client connected", "nickname", nickname, "avatar", avatar)
	c.reply(protocol.Welcome(nickname, avatar))
	c.reply(protocol.Rooms(c.server.hub.Listing()))
}

func (c *Client) handleRoom(arg string) {
	if !c.session.Connected() {
		c.reply(protocol.NotConnected)
		return
	}

	name, err := protocol.ValidateRoomName(arg)
	if err != nil {
		c.reply(err.Error())
		return
	}

	if _, err := c.server.hub.Join(c.session, name); err != nil {
		if errors.Is(err, ErrRoomLimit) {
			c.reply(protocol.RoomLimit(c.server.cfg.MaxRooms))
			return
		}
		c.logger.Error("join room", "room", name, "err", err)
	}
}

func (c *Client) handleWho() {
	if !c.session.Connected() {
		c.reply(protocol.NotConnected)
		return
	}
	room := c.session.Room()
	if room == nil {
		c.reply(protocol.WhoNeedsRoom)
		return
	}
	c.reply(protocol.Users(room.Members()))
}

func (c *Client) handleBye() {
	nickname, _ := c.session.Identity()
	c.logger.Info("client said goodbye", "nickname", nickname)
	c.reply(protocol.Goodbye)
}

func (c *Client) handleChat(text string) {
	if !c.session.Connected() {
		c.reply(protocol.NotConnected)
		return
	}
	if c.session.Room() == nil {
		c.reply(protocol.ChatNeedsRoom)
		return
	}

	body := protocol.Sanitize(text)
	if body == "" {
		return
	}

	if !c.session.limiter.allow() {
		c.logger.Warn("rate limit exceeded",
			"in_window", c.session.limiter.inWindow(),
			"messages", c.server.cfg.RateLimit.Messages,
			"window", c.server.cfg.RateLimit.Window)
		c.reply(protocol.RateLimited)
		return
	}

	if err := c.server.hub.Say(c.session, body); err != nil {
		c.reply(protocol.ChatNeedsRoom)
	}
}
