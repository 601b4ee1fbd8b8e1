package router

import (
	"context"
	"strings"

	"github.com/opencode-ai/wagate/internal/whatsapp"
)

// Operation is an outbound action performed with one session's client.
type Operation interface {
	Name() string
	Apply(ctx context.Context, client whatsapp.Client) (any, error)
}

// SendText sends a text message. To is normalized with
// whatsapp.FormatPhoneNumber.
type SendText struct {
	To   string
	Text string
}

func (SendText) Name() string { return "send-message" }

func (op SendText) Apply(ctx context.Context, client whatsapp.Client) (any, error) {
	return client.SendText(ctx, whatsapp.FormatPhoneNumber(op.To), op.Text)
}

// SendMedia sends an attachment with an optional caption.
type SendMedia struct {
	To      string
	Media   whatsapp.Media
	Caption string
}

func (SendMedia) Name() string { return "send-media" }

func (op SendMedia) Apply(ctx context.Context, client whatsapp.Client) (any, error) {
	return client.SendMedia(ctx, whatsapp.FormatPhoneNumber(op.To), op.Media, op.Caption)
}

// SendGroupMessage sends text to a group chat given either its id or its
// name. Names are matched case-insensitively against the session's own
// group chats.
type SendGroupMessage struct {
	ID    string
	Group string
	Text  string
}

func (SendGroupMessage) Name() string { return "send-group-message" }

func (op SendGroupMessage) Apply(ctx context.Context, client whatsapp.Client) (any, error) {
	chatID := op.ID
	if chatID == "" {
		group, err := FindGroupByName(ctx, client, op.Group)
		if err != nil {
			return nil, err
		}
		chatID = group.ID
	}
	return client.SendText(ctx, chatID, op.Text)
}

// FindGroupByName returns the first group chat named name.
func FindGroupByName(ctx context.Context, client whatsapp.Client, name string) (*whatsapp.Chat, error) {
	chats, err := client.ListChats(ctx)
	if err != nil {
		return nil, err
	}
	for _, chat := range chats {
		if chat.IsGroup && strings.EqualFold(chat.Name, name) {
			chat := chat
			return &chat, nil
		}
	}
	return nil, &GroupNotFoundError{Name: name}
}

// ClearChat deletes the messages of a one-to-one chat.
type ClearChat struct {
	Number string
}

func (ClearChat) Name() string { return "clear-message" }

func (op ClearChat) Apply(ctx context.Context, client whatsapp.Client) (any, error) {
	chat, err := client.GetChatByID(ctx, whatsapp.FormatPhoneNumber(op.Number))
	if err != nil {
		return nil, err
	}
	return client.ClearMessages(ctx, chat.ID)
}
