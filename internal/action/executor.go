// Package action translates wire call actions into platform send operations
// for one instance.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

type handlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Executor dispatches call actions for a single instance.
type Executor struct {
	instanceID int
	qq         QQClient
	tg         TelegramClient
	handlers   map[string]handlerFunc
}

// New builds the executor for one instance's platform clients.
func New(instanceID int, qq QQClient, tg TelegramClient) *Executor {
	e := &Executor{instanceID: instanceID, qq: qq, tg: tg}
	e.handlers = map[string]handlerFunc{
		"message.send": e.sendMessage,
	}
	return e
}

// Execute runs a named action. Unknown actions fail.
func (e *Executor) Execute(ctx context.Context, action string, params json.RawMessage) (any, error) {
	h, ok := e.handlers[action]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", action)
	}
	return h(ctx, params)
}

// SendResult is the payload returned by message.send.
type SendResult struct {
	MessageID string `json:"messageId"`
	Platform  string `json:"platform"`
	Timestamp int64  `json:"timestamp"`
}

type sendParams struct {
	ChannelID string             `json:"channelId"`
	Segments  []protocol.Segment `json:"segments"`
	Reply     string             `json:"reply,omitempty"`
}

func (e *Executor) sendMessage(ctx context.Context, params json.RawMessage) (any, error) {
	var p sendParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("message.send: invalid params: %w", err)
	}
	ref, err := protocol.ParseChannelID(p.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("message.send: %w", err)
	}
	switch ref.Platform {
	case protocol.PlatformQQ:
		return e.sendQQ(ctx, ref, p)
	case protocol.PlatformTG:
		return e.sendTG(ctx, ref, p)
	}
	return nil, fmt.Errorf("message.send: unknown platform %q", ref.Platform)
}

func (e *Executor) sendQQ(ctx context.Context, ref protocol.ChannelRef, p sendParams) (any, error) {
	if e.qq == nil {
		return nil, fmt.Errorf("qq: no client attached to instance %d", e.instanceID)
	}
	elements := toQQElements(p.Segments)
	var (
		msgID string
		err   error
	)
	if ref.Kind == protocol.ChannelPrivate {
		msgID, err = e.qq.SendPrivateMessage(ctx, ref.ID, elements)
	} else {
		msgID, err = e.qq.SendGroupMessage(ctx, ref.ID, elements)
	}
	if err != nil {
		return nil, fmt.Errorf("qq: send to %d: %w", ref.ID, err)
	}
	return SendResult{
		MessageID: protocol.QQMessageID(msgID),
		Platform:  protocol.PlatformQQ,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// toQQElements maps wire segments onto native QQ content 1:1. Unrecognized
// kinds pass through with a logged warning; translation never fails here.
func toQQElements(segments []protocol.Segment) []QQElement {
	elements := make([]QQElement, 0, len(segments))
	for _, seg := range segments {
		switch seg.Type {
		case protocol.SegmentText:
			elements = append(elements, QQElement{Type: "text", Data: map[string]string{"text": seg.Str("text")}})
		case protocol.SegmentImage:
			elements = append(elements, QQElement{Type: "image", Data: map[string]string{"file": seg.Str("url")}})
		case protocol.SegmentVideo:
			elements = append(elements, QQElement{Type: "video", Data: map[string]string{"file": seg.Str("url")}})
		case protocol.SegmentAudio:
			elements = append(elements, QQElement{Type: "record", Data: map[string]string{"file": seg.Str("url")}})
		case protocol.SegmentFile:
			elements = append(elements, QQElement{Type: "file", Data: map[string]string{"file": seg.Str("url"), "name": seg.Str("name")}})
		case protocol.SegmentAt:
			elements = append(elements, QQElement{Type: "at", Data: map[string]string{"qq": lastToken(seg.Str("userId"))}})
		case protocol.SegmentReply:
			elements = append(elements, QQElement{Type: "reply", Data: map[string]string{"id": lastToken(seg.Str("messageId"))}})
		default:
			logx.Log.Warn().Str("segment", seg.Type).Msg("qq: passing through unrecognized segment")
			data := make(map[string]string, len(seg.Data))
			for k, v := range seg.Data {
				data[k] = fmt.Sprint(v)
			}
			elements = append(elements, QQElement{Type: seg.Type, Data: data})
		}
	}
	return elements
}

func (e *Executor) sendTG(ctx context.Context, ref protocol.ChannelRef, p sendParams) (any, error) {
	if e.tg == nil {
		return nil, fmt.Errorf("tg: no client attached to instance %d", e.instanceID)
	}
	chat, err := e.tg.ResolveChat(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("tg: resolve chat %d: %w", ref.ID, err)
	}

	// Explicit reply wins over thread-anchoring; with neither the message is
	// anchored into the topic via its thread id.
	replyTo := resolveReplyTarget(p, ref.ThreadID)

	text, entities, err := buildTGText(p.Segments)
	if err != nil {
		return nil, fmt.Errorf("tg: %w", err)
	}

	msgID, err := e.tg.SendMessage(ctx, chat.ID, text, TelegramSendOptions{
		ReplyTo:         replyTo,
		MessageThreadID: ref.ThreadID,
		Entities:        entities,
	})
	if err != nil {
		return nil, fmt.Errorf("tg: send to %d: %w", chat.ID, err)
	}
	return SendResult{
		MessageID: protocol.TGMessageID(chat.ID, msgID),
		Platform:  protocol.PlatformTG,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func resolveReplyTarget(p sendParams, threadID int64) int64 {
	for _, seg := range p.Segments {
		if seg.Type != protocol.SegmentReply {
			continue
		}
		if id, ok := ParseReplyID(seg.Str("messageId")); ok {
			return id
		}
	}
	if id, ok := ParseReplyID(p.Reply); ok {
		return id
	}
	return threadID
}

// buildTGText renders the display text: text segments concatenated, at
// segments as "@name" or a rich mention with an entity, reply segments
// contributing nothing. Media-only sends are out of scope: empty text fails.
func buildTGText(segments []protocol.Segment) (string, []MentionEntity, error) {
	var (
		b        strings.Builder
		entities []MentionEntity
	)
	for _, seg := range segments {
		switch seg.Type {
		case protocol.SegmentText:
			b.WriteString(seg.Str("text"))
		case protocol.SegmentAt:
			userID := seg.Str("userId")
			name := seg.Str("name")
			if uid, ok := numericUserID(userID); ok {
				label := name
				if label == "" {
					label = fmt.Sprintf("user%d", uid)
				}
				entities = append(entities, MentionEntity{
					Offset: utf16Len(b.String()),
					Length: utf16Len(label),
					UserID: uid,
				})
				b.WriteString(label)
			} else {
				handle := lastToken(userID)
				if handle == "" {
					handle = name
				}
				b.WriteString("@" + handle)
			}
		case protocol.SegmentReply:
			// Handled by resolveReplyTarget; no text contribution.
		}
	}
	text := b.String()
	if text == "" {
		return "", nil, fmt.Errorf("message has no sendable text")
	}
	return text, entities, nil
}

// numericUserID extracts the numeric id from "<platform>:u:<id>" or a bare
// number; username-style ids report false.
func numericUserID(userID string) (int64, bool) {
	if strings.Contains(userID, ":username:") {
		return 0, false
	}
	id, err := strconv.ParseInt(lastToken(userID), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
