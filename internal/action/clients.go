package action

import "context"

// QQElement is one unit of native QQ message content.
type QQElement struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

// QQClient exposes the QQ send primitives message.send needs.
type QQClient interface {
	SendGroupMessage(ctx context.Context, groupID int64, elements []QQElement) (string, error)
	SendPrivateMessage(ctx context.Context, userID int64, elements []QQElement) (string, error)
}

// TelegramChat is a resolved send target.
type TelegramChat struct {
	ID    int64
	Title string
}

// MentionEntity marks a text range that mentions a user by numeric id.
// Offsets and lengths are in UTF-16 code units, as Telegram counts them.
type MentionEntity struct {
	Offset int
	Length int
	UserID int64
}

// TelegramSendOptions carry reply anchoring and mention entities.
type TelegramSendOptions struct {
	ReplyTo         int64
	MessageThreadID int64
	Entities        []MentionEntity
}

// TelegramClient exposes the Telegram primitives message.send needs.
type TelegramClient interface {
	ResolveChat(ctx context.Context, chatID int64) (TelegramChat, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts TelegramSendOptions) (int64, error)
}
