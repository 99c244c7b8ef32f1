package meow

import (
	"context"
	"strings"

	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-session-gateway/pkg/wpp"
)

func composeJID(id string) types.JID {
	if at := strings.IndexByte(id, '@'); at >= 0 {
		server := id[at+1:]
		switch server {
		case types.DefaultUserServer, types.GroupServer:
			return types.NewJID(decomposeJID(id), server)
		}
		// Legacy suffixes like c.us fall through to the heuristic.
	}

	id = decomposeJID(id)
	if strings.ContainsRune(id, '-') || len(id) >= 18 {
		return types.NewJID(id, types.GroupServer)
	}
	return types.NewJID(id, types.DefaultUserServer)
}

func (c *client) SendText(ctx context.Context, to string, text string) (string, error) {
	if !c.IsConnected() {
		return "", errNotConnected
	}

	remoteJID := composeJID(to)
	msgExtra := whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()}
	msgContent := &waE2E.Message{
		Conversation: proto.String(text),
	}

	if _, err := c.wa.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}

func (c *client) SendListMessage(ctx context.Context, to string, list wpp.ListMessageOptions) (string, error) {
	if !c.IsConnected() {
		return "", errNotConnected
	}

	sections := make([]*waE2E.ListMessage_Section, 0, len(list.Sections))
	for _, section := range list.Sections {
		rows := make([]*waE2E.ListMessage_Row, 0, len(section.Rows))
		for _, row := range section.Rows {
			rows = append(rows, &waE2E.ListMessage_Row{
				RowID:       proto.String(row.ID),
				Title:       proto.String(row.Title),
				Description: proto.String(row.Description),
			})
		}
		sections = append(sections, &waE2E.ListMessage_Section{
			Title: proto.String(section.Title),
			Rows:  rows,
		})
	}

	remoteJID := composeJID(to)
	msgExtra := whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()}
	msgContent := &waE2E.Message{
		ListMessage: &waE2E.ListMessage{
			Description: proto.String(list.Description),
			ButtonText:  proto.String(list.ButtonText),
			ListType:    waE2E.ListMessage_SINGLE_SELECT.Enum(),
			Sections:    sections,
		},
	}

	if _, err := c.wa.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}

func (c *client) SendFile(ctx context.Context, to string, filename string, mimeType string, data []byte, caption string) (string, error) {
	if !c.IsConnected() {
		return "", errNotConnected
	}

	remoteJID := composeJID(to)

	_ = c.wa.SendPresence(ctx, types.PresenceAvailable)
	_ = c.wa.SendChatPresence(ctx, remoteJID, types.ChatPresenceComposing, types.ChatPresenceMediaText)
	defer func() {
		_ = c.wa.SendChatPresence(ctx, remoteJID, types.ChatPresencePaused, types.ChatPresenceMediaText)
		_ = c.wa.SendPresence(ctx, types.PresenceUnavailable)
	}()

	uploaded, err := c.wa.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return "", err
	}

	msgExtra := whatsmeow.SendRequestExtra{ID: c.wa.GenerateMessageID()}
	msgContent := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(filename),
			Caption:       proto.String(caption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
		},
	}

	if _, err := c.wa.SendMessage(ctx, remoteJID, msgContent, msgExtra); err != nil {
		return "", err
	}
	return msgExtra.ID, nil
}
