// Package event converts normalized bridge messages into wire events and
// hands them to the protocol server for scoped fan-out.
package event

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pairbridge/gateway/internal/logx"
	"github.com/pairbridge/gateway/internal/protocol"
)

// Publisher fans a wire event out to scoped sessions.
type Publisher interface {
	PublishEvent(instanceID int, event any)
}

// Sender identifies the author of a bridge message.
type Sender struct {
	ID       int64
	Username string
	Name     string
}

// ContentPart is one unit of normalized message content.
type ContentPart struct {
	Kind string
	Data map[string]any
}

// BridgeMessage is the normalized cross-platform message supplied by the
// domain event source.
type BridgeMessage struct {
	Platform  string // "qq", "tg", or the third-party label "telegram"
	ChatID    int64  // QQ room id or Telegram chat id
	Private   bool   // QQ private chat
	MessageID string // platform-native message id
	Sender    Sender
	Content   []ContentPart
	Raw       map[string]any // loosely-typed upstream metadata
	Timestamp int64          // milliseconds
}

// threadIDKeys is the ordered list of field names upstream transports use for
// the same logical topic id. Order is precedence; do not reorder.
var threadIDKeys = []string{
	"message_thread_id",
	"messageThreadId",
	"thread_id",
	"threadId",
	"reply_to_top_id",
}

// Translator turns bridge messages into message.created events, stamping each
// with the next sequence number. Sequences start at 1 and reset on restart.
type Translator struct {
	pub Publisher
	seq atomic.Int64
}

func NewTranslator(pub Publisher) *Translator {
	return &Translator{pub: pub}
}

// Publish translates msg and fans it out. Translation failures are logged and
// swallowed; they never reach the publishing path and are never retried.
func (t *Translator) Publish(instanceID int, msg *BridgeMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Log.Error().Interface("panic", rec).Int("instance", instanceID).Msg("event translation panic")
		}
	}()
	ev, err := t.translate(instanceID, msg)
	if err != nil {
		logx.Log.Warn().Err(err).Int("instance", instanceID).Msg("event translation failed")
		return
	}
	t.pub.PublishEvent(instanceID, ev)
}

func (t *Translator) translate(instanceID int, msg *BridgeMessage) (*protocol.MessageEvent, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	platform := protocol.NormalizePlatform(msg.Platform)

	var (
		channelID string
		threadID  int64
		messageID string
	)
	switch platform {
	case protocol.PlatformQQ:
		if msg.Private {
			channelID = protocol.QQPrivateChannelID(msg.ChatID)
		} else {
			channelID = protocol.QQGroupChannelID(msg.ChatID)
		}
		messageID = protocol.QQMessageID(msg.MessageID)
	case protocol.PlatformTG:
		threadID = extractThreadID(msg.Raw)
		channelID = protocol.TGChannelID(msg.ChatID, threadID)
		nativeID, err := strconv.ParseInt(msg.MessageID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tg message id %q: %w", msg.MessageID, err)
		}
		messageID = protocol.TGMessageID(msg.ChatID, nativeID)
	default:
		return nil, fmt.Errorf("unknown platform %q", msg.Platform)
	}

	ev := &protocol.MessageEvent{
		Seq:        t.seq.Add(1),
		Type:       protocol.EventMessageCreated,
		InstanceID: instanceID,
		ChannelID:  channelID,
		ThreadID:   threadID,
		Actor: protocol.Actor{
			UserID: actorID(platform, msg.Sender),
			Name:   msg.Sender.Name,
		},
		Message: protocol.EventMessage{
			MessageID: messageID,
			Platform:  platform,
			ThreadID:  threadID,
			Native:    buildNative(platform, msg, threadID),
			Segments:  toSegments(platform, msg.Content),
			Timestamp: msg.Timestamp,
		},
	}
	return ev, nil
}

func actorID(platform string, s Sender) string {
	if s.ID > 0 {
		return protocol.UserID(platform, s.ID)
	}
	if platform == protocol.PlatformTG && s.Username != "" {
		return protocol.TGUsernameUserID(s.Username)
	}
	return protocol.UserID(platform, 0)
}

// extractThreadID scans the candidate field names in precedence order over
// the raw metadata and, per key, a nested raw.raw sub-envelope, returning the
// first positive integer found.
func extractThreadID(raw map[string]any) int64 {
	if raw == nil {
		return 0
	}
	nested, _ := raw["raw"].(map[string]any)
	for _, key := range threadIDKeys {
		if id := positiveInt(raw[key]); id > 0 {
			return id
		}
		if nested != nil {
			if id := positiveInt(nested[key]); id > 0 {
				return id
			}
		}
	}
	return 0
}

func positiveInt(v any) int64 {
	switch n := v.(type) {
	case int:
		if n > 0 {
			return int64(n)
		}
	case int64:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 && n == float64(int64(n)) {
			return int64(n)
		}
	case string:
		if id, err := strconv.ParseInt(n, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

type nativeQQ struct {
	MessageID string `json:"messageId"`
	RoomID    int64  `json:"roomId"`
	UserID    int64  `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

type nativeTG struct {
	MessageID string `json:"messageId"`
	ChatID    int64  `json:"chatId"`
	ThreadID  int64  `json:"threadId,omitempty"`
	UserID    int64  `json:"userId"`
	Text      string `json:"text"`
	Entities  []any  `json:"entities,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func buildNative(platform string, msg *BridgeMessage, threadID int64) any {
	switch platform {
	case protocol.PlatformQQ:
		return nativeQQ{
			MessageID: msg.MessageID,
			RoomID:    msg.ChatID,
			UserID:    msg.Sender.ID,
			Timestamp: msg.Timestamp,
		}
	case protocol.PlatformTG:
		return nativeTG{
			MessageID: msg.MessageID,
			ChatID:    msg.ChatID,
			ThreadID:  threadID,
			UserID:    msg.Sender.ID,
			Text:      concatText(msg.Content),
			Entities:  mentionEntities(msg.Raw),
			Timestamp: msg.Timestamp,
		}
	}
	return nil
}

func concatText(parts []ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == "text" {
			b.WriteString(str(p.Data, "text"))
		}
	}
	return b.String()
}

// mentionEntities keeps only the mention-shaped entries of the upstream
// entity list.
func mentionEntities(raw map[string]any) []any {
	if raw == nil {
		return nil
	}
	list, _ := raw["entities"].([]any)
	var out []any
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		switch m["type"] {
		case "mention", "text_mention":
			out = append(out, m)
		}
	}
	return out
}

// toSegments maps normalized content onto wire segments, the inverse of the
// executor's per-kind mapping. Anything unrecognized degrades to raw rather
// than failing the event.
func toSegments(platform string, parts []ContentPart) []protocol.Segment {
	segments := make([]protocol.Segment, 0, len(parts))
	for _, p := range parts {
		switch p.Kind {
		case "text":
			segments = append(segments, protocol.Text(str(p.Data, "text")))
		case "image", "video", "file":
			segments = append(segments, protocol.Segment{Type: p.Kind, Data: map[string]any{
				"url":  firstStr(p.Data, "url", "file"),
				"name": str(p.Data, "name"),
			}})
		case "audio", "record":
			segments = append(segments, protocol.Segment{Type: protocol.SegmentAudio, Data: map[string]any{
				"url": firstStr(p.Data, "url", "file"),
			}})
		case "at":
			segments = append(segments, protocol.At(atUserID(platform, p.Data), str(p.Data, "name")))
		case "reply":
			segments = append(segments, protocol.Reply(replyMessageID(platform, p.Data)))
		case "forward":
			segments = append(segments, protocol.Segment{Type: protocol.SegmentForward, Data: map[string]any{
				"id": firstStr(p.Data, "id", "messageId"),
			}})
		default:
			segments = append(segments, protocol.Raw(p.Kind, p.Data))
		}
	}
	return segments
}

func atUserID(platform string, data map[string]any) string {
	if id := positiveInt(firstVal(data, "userId", "qq", "id")); id > 0 {
		return protocol.UserID(platform, id)
	}
	if platform == protocol.PlatformTG {
		if name := str(data, "username"); name != "" {
			return protocol.TGUsernameUserID(name)
		}
	}
	return protocol.UserID(platform, 0)
}

func replyMessageID(platform string, data map[string]any) string {
	raw := firstStr(data, "messageId", "id")
	if strings.Contains(raw, ":") {
		// Already in wire form.
		return raw
	}
	if platform == protocol.PlatformQQ {
		return protocol.QQMessageID(raw)
	}
	return raw
}

func str(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func firstStr(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(data, k); s != "" {
			return s
		}
	}
	return ""
}

func firstVal(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			return v
		}
	}
	return nil
}
