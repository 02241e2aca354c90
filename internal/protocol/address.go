package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Platform tags used in wire addressing.
const (
	PlatformQQ = "qq"
	PlatformTG = "tg"
)

// NormalizePlatform maps third-party platform labels onto wire tags.
func NormalizePlatform(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "telegram", "tg":
		return PlatformTG
	case "qq":
		return PlatformQQ
	default:
		return strings.ToLower(strings.TrimSpace(p))
	}
}

// Channel kinds distinguishing QQ group/private chats. Telegram chats are
// always ChannelChat.
const (
	ChannelGroup   = "group"
	ChannelPrivate = "private"
	ChannelChat    = "chat"
)

// ChannelRef is the parsed form of a wire channel id.
type ChannelRef struct {
	Platform string
	Kind     string
	ID       int64
	ThreadID int64
}

// QQGroupChannelID builds "qq:g:<id>".
func QQGroupChannelID(id int64) string { return fmt.Sprintf("qq:g:%d", id) }

// QQPrivateChannelID builds "qq:p:<id>".
func QQPrivateChannelID(id int64) string { return fmt.Sprintf("qq:p:%d", id) }

// TGChannelID builds "tg:c:<chatId>" or "tg:c:<chatId>:t:<threadId>" when a
// topic thread is present.
func TGChannelID(chatID, threadID int64) string {
	if threadID > 0 {
		return fmt.Sprintf("tg:c:%d:t:%d", chatID, threadID)
	}
	return fmt.Sprintf("tg:c:%d", chatID)
}

// BuildChannelID builds the wire channel id for a parsed reference.
func BuildChannelID(ref ChannelRef) string {
	switch ref.Platform {
	case PlatformQQ:
		if ref.Kind == ChannelPrivate {
			return QQPrivateChannelID(ref.ID)
		}
		return QQGroupChannelID(ref.ID)
	case PlatformTG:
		return TGChannelID(ref.ID, ref.ThreadID)
	}
	return ""
}

// ParseChannelID parses a wire channel id. The legacy two-segment form
// "qq:<id>" predates the group/private split and parses as a group chat.
func ParseChannelID(s string) (ChannelRef, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] == PlatformQQ:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ChannelRef{}, fmt.Errorf("channel id %q: %w", s, err)
		}
		return ChannelRef{Platform: PlatformQQ, Kind: ChannelGroup, ID: id}, nil
	case len(parts) == 3 && parts[0] == PlatformQQ && (parts[1] == "g" || parts[1] == "p"):
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return ChannelRef{}, fmt.Errorf("channel id %q: %w", s, err)
		}
		kind := ChannelGroup
		if parts[1] == "p" {
			kind = ChannelPrivate
		}
		return ChannelRef{Platform: PlatformQQ, Kind: kind, ID: id}, nil
	case len(parts) == 3 && parts[0] == PlatformTG && parts[1] == "c":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return ChannelRef{}, fmt.Errorf("channel id %q: %w", s, err)
		}
		return ChannelRef{Platform: PlatformTG, Kind: ChannelChat, ID: id}, nil
	case len(parts) == 5 && parts[0] == PlatformTG && parts[1] == "c" && parts[3] == "t":
		id, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return ChannelRef{}, fmt.Errorf("channel id %q: %w", s, err)
		}
		thread, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return ChannelRef{}, fmt.Errorf("channel id %q: %w", s, err)
		}
		return ChannelRef{Platform: PlatformTG, Kind: ChannelChat, ID: id, ThreadID: thread}, nil
	}
	return ChannelRef{}, fmt.Errorf("channel id %q: unrecognized form", s)
}

// UserID builds "<platform>:u:<id>".
func UserID(platform string, id int64) string {
	return fmt.Sprintf("%s:u:%d", platform, id)
}

// TGUsernameUserID builds the Telegram username-mention form "tg:username:<name>".
func TGUsernameUserID(name string) string {
	return "tg:username:" + name
}

// QQMessageID builds "qq:m:<id>".
func QQMessageID(id string) string { return "qq:m:" + id }

// TGMessageID builds "tg:m:<chatId>:<id>".
func TGMessageID(chatID, messageID int64) string {
	return fmt.Sprintf("tg:m:%d:%d", chatID, messageID)
}
