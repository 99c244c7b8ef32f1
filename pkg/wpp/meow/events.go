package meow

import (
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

func (c *client) OnMessage(fn func(wpp.Message)) {
	c.mu.Lock()
	c.messageHandlers = append(c.messageHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnAnyMessage(fn func(wpp.Message)) {
	c.mu.Lock()
	c.anyMessageHandlers = append(c.anyMessageHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnAck(fn func(wpp.Ack)) {
	c.mu.Lock()
	c.ackHandlers = append(c.ackHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnPresenceChanged(fn func(wpp.Presence)) {
	c.mu.Lock()
	c.presenceHandlers = append(c.presenceHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnReactionMessage(fn func(wpp.Reaction)) {
	c.mu.Lock()
	c.reactionHandlers = append(c.reactionHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnRevokedMessage(fn func(wpp.Revoke)) {
	c.mu.Lock()
	c.revokeHandlers = append(c.revokeHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnPollResponse(fn func(wpp.PollResponse)) {
	c.mu.Lock()
	c.pollHandlers = append(c.pollHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnUpdateLabel(fn func(wpp.LabelUpdate)) {
	c.mu.Lock()
	c.labelHandlers = append(c.labelHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnIncomingCall(fn func(wpp.Call)) {
	c.mu.Lock()
	c.callHandlers = append(c.callHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnParticipantsChanged(fn func(wpp.ParticipantsChange)) {
	c.mu.Lock()
	c.participantHandlers = append(c.participantHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnStateChange(fn func(wpp.SocketState)) {
	c.mu.Lock()
	c.stateHandlers = append(c.stateHandlers, fn)
	c.mu.Unlock()
}

func (c *client) OnLiveLocation(chat string, fn func(wpp.LiveLocation)) {
	key := decomposeJID(chat)
	c.mu.Lock()
	c.liveLocations[key] = append(c.liveLocations[key], fn)
	c.mu.Unlock()
}

func (c *client) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		c.persistJID()
		c.statusFind(wpp.StateConnected)
	case *events.PairSuccess:
		c.persistJID()
	case *events.StreamReplaced:
		c.statusFind(wpp.StateConflict)
	case *events.LoggedOut:
		c.statusFind(wpp.StateLoggedOut)
	case *events.Disconnected:
		c.statusFind(wpp.StateDisconnected)
	case *events.OfflineSyncPreview:
		if c.opts.OnLoadingScreen != nil {
			c.opts.OnLoadingScreen(0, fmt.Sprintf("syncing %d offline messages", e.Messages))
		}
	case *events.OfflineSyncCompleted:
		if c.opts.OnLoadingScreen != nil {
			c.opts.OnLoadingScreen(100, fmt.Sprintf("offline sync completed, %d items", e.Count))
		}
	case *events.Message:
		c.handleMessage(e)
	case *events.Receipt:
		c.handleReceipt(e)
	case *events.Presence:
		c.mu.RLock()
		handlers := append([]func(wpp.Presence){}, c.presenceHandlers...)
		c.mu.RUnlock()
		presence := wpp.Presence{
			From:        e.From.String(),
			Unavailable: e.Unavailable,
			LastSeen:    e.LastSeen,
		}
		for _, fn := range handlers {
			fn(presence)
		}
	case *events.CallOffer:
		c.mu.RLock()
		handlers := append([]func(wpp.Call){}, c.callHandlers...)
		c.mu.RUnlock()
		call := wpp.Call{
			CallID:    e.CallID,
			From:      e.From.String(),
			Timestamp: e.Timestamp,
		}
		for _, fn := range handlers {
			fn(call)
		}
	case *events.GroupInfo:
		c.handleGroupInfo(e)
	case *events.LabelEdit:
		c.mu.RLock()
		handlers := append([]func(wpp.LabelUpdate){}, c.labelHandlers...)
		c.mu.RUnlock()
		update := wpp.LabelUpdate{
			LabelID:   e.LabelID,
			Name:      e.Action.GetName(),
			Timestamp: e.Timestamp,
		}
		for _, fn := range handlers {
			fn(update)
		}
	}
}

func (c *client) handleMessage(e *events.Message) {
	content := e.Message
	if content == nil {
		return
	}

	if reaction := content.GetReactionMessage(); reaction != nil {
		c.mu.RLock()
		handlers := append([]func(wpp.Reaction){}, c.reactionHandlers...)
		c.mu.RUnlock()
		evt := wpp.Reaction{
			MessageID: reaction.GetKey().GetID(),
			From:      e.Info.Sender.String(),
			Emoji:     reaction.GetText(),
			Timestamp: e.Info.Timestamp,
		}
		for _, fn := range handlers {
			fn(evt)
		}
		return
	}

	if protocol := content.GetProtocolMessage(); protocol != nil {
		if protocol.GetType() == waE2E.ProtocolMessage_REVOKE {
			c.mu.RLock()
			handlers := append([]func(wpp.Revoke){}, c.revokeHandlers...)
			c.mu.RUnlock()
			evt := wpp.Revoke{
				MessageID: protocol.GetKey().GetID(),
				Chat:      e.Info.Chat.String(),
				From:      e.Info.Sender.String(),
				Timestamp: e.Info.Timestamp,
			}
			for _, fn := range handlers {
				fn(evt)
			}
		}
		return
	}

	if poll := content.GetPollUpdateMessage(); poll != nil {
		c.mu.RLock()
		handlers := append([]func(wpp.PollResponse){}, c.pollHandlers...)
		c.mu.RUnlock()
		evt := wpp.PollResponse{
			PollID:    poll.GetPollCreationMessageKey().GetID(),
			Chat:      e.Info.Chat.String(),
			Voter:     e.Info.Sender.String(),
			Timestamp: e.Info.Timestamp,
		}
		for _, fn := range handlers {
			fn(evt)
		}
		return
	}

	if live := content.GetLiveLocationMessage(); live != nil {
		chatKey := decomposeJID(e.Info.Chat.String())
		c.mu.RLock()
		handlers := append([]func(wpp.LiveLocation){}, c.liveLocations[chatKey]...)
		c.mu.RUnlock()
		evt := wpp.LiveLocation{
			Chat:      e.Info.Chat.String(),
			Sender:    e.Info.Sender.String(),
			Latitude:  live.GetDegreesLatitude(),
			Longitude: live.GetDegreesLongitude(),
			Timestamp: e.Info.Timestamp,
		}
		for _, fn := range handlers {
			fn(evt)
		}
		return
	}

	msg := wpp.Message{
		Session:   c.session,
		ID:        e.Info.ID,
		From:      e.Info.Chat.String(),
		Sender:    e.Info.Sender.String(),
		Body:      extractBody(content),
		Type:      classifyMessage(content),
		FromMe:    e.Info.IsFromMe,
		IsGroup:   e.Info.IsGroup,
		Timestamp: e.Info.Timestamp,
	}

	c.mu.RLock()
	anyHandlers := append([]func(wpp.Message){}, c.anyMessageHandlers...)
	msgHandlers := append([]func(wpp.Message){}, c.messageHandlers...)
	c.mu.RUnlock()

	for _, fn := range anyHandlers {
		fn(msg)
	}
	if !msg.FromMe {
		for _, fn := range msgHandlers {
			fn(msg)
		}
	}
}

func (c *client) handleReceipt(e *events.Receipt) {
	ack := receiptAck(e.Type)
	if ack == "" {
		return
	}

	c.mu.RLock()
	handlers := append([]func(wpp.Ack){}, c.ackHandlers...)
	c.mu.RUnlock()

	for _, id := range e.MessageIDs {
		evt := wpp.Ack{
			MessageID: id,
			Chat:      e.Chat.String(),
			Sender:    e.Sender.String(),
			Ack:       ack,
			Timestamp: e.Timestamp,
		}
		for _, fn := range handlers {
			fn(evt)
		}
	}
}

func (c *client) handleGroupInfo(e *events.GroupInfo) {
	c.mu.RLock()
	handlers := append([]func(wpp.ParticipantsChange){}, c.participantHandlers...)
	c.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	emit := func(action string, members []types.JID) {
		if len(members) == 0 {
			return
		}
		participants := make([]string, 0, len(members))
		for _, member := range members {
			participants = append(participants, member.String())
		}
		evt := wpp.ParticipantsChange{
			Group:        e.JID.String(),
			Action:       action,
			Participants: participants,
		}
		for _, fn := range handlers {
			fn(evt)
		}
	}

	emit("add", e.Join)
	emit("remove", e.Leave)
	emit("promote", e.Promote)
	emit("demote", e.Demote)
}

func receiptAck(t types.ReceiptType) string {
	switch t {
	case types.ReceiptTypeDelivered:
		return "delivered"
	case types.ReceiptTypeRead:
		return "read"
	case types.ReceiptTypePlayed:
		return "played"
	default:
		return ""
	}
}

func extractBody(m *waE2E.Message) string {
	if text := m.GetConversation(); text != "" {
		return text
	}
	if ext := m.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := m.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := m.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	if doc := m.GetDocumentMessage(); doc != nil {
		return doc.GetCaption()
	}
	if list := m.GetListResponseMessage(); list != nil {
		return list.GetSingleSelectReply().GetSelectedRowID()
	}
	if buttons := m.GetButtonsResponseMessage(); buttons != nil {
		return buttons.GetSelectedButtonID()
	}
	return ""
}

func classifyMessage(m *waE2E.Message) string {
	switch {
	case m.GetImageMessage() != nil:
		return "image"
	case m.GetVideoMessage() != nil:
		return "video"
	case m.GetAudioMessage() != nil:
		return "audio"
	case m.GetDocumentMessage() != nil:
		return "document"
	case m.GetStickerMessage() != nil:
		return "sticker"
	case m.GetContactMessage() != nil:
		return "vcard"
	case m.GetLocationMessage() != nil:
		return "location"
	case m.GetListResponseMessage() != nil, m.GetButtonsResponseMessage() != nil:
		return "chat"
	default:
		return "chat"
	}
}

func decomposeJID(id string) string {
	if strings.ContainsRune(id, '@') {
		id = strings.Split(id, "@")[0]
	}
	if len(id) > 0 && id[0] == '+' {
		id = id[1:]
	}
	return strings.TrimSpace(id)
}
