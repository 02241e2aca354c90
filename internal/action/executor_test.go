package action

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pairbridge/gateway/internal/gateway"
	"github.com/pairbridge/gateway/internal/protocol"
)

var _ gateway.Executor = (*Executor)(nil)

type fakeQQ struct {
	groupID  int64
	userID   int64
	elements []QQElement
	err      error
}

func (q *fakeQQ) SendGroupMessage(_ context.Context, groupID int64, elements []QQElement) (string, error) {
	q.groupID = groupID
	q.elements = elements
	if q.err != nil {
		return "", q.err
	}
	return "555", nil
}

func (q *fakeQQ) SendPrivateMessage(_ context.Context, userID int64, elements []QQElement) (string, error) {
	q.userID = userID
	q.elements = elements
	if q.err != nil {
		return "", q.err
	}
	return "556", nil
}

type fakeTG struct {
	chatID int64
	text   string
	opts   TelegramSendOptions
	err    error
}

func (t *fakeTG) ResolveChat(_ context.Context, chatID int64) (TelegramChat, error) {
	return TelegramChat{ID: chatID, Title: "chat"}, nil
}

func (t *fakeTG) SendMessage(_ context.Context, chatID int64, text string, opts TelegramSendOptions) (int64, error) {
	t.chatID = chatID
	t.text = text
	t.opts = opts
	if t.err != nil {
		return 0, t.err
	}
	return 456, nil
}

func send(t *testing.T, e *Executor, params map[string]any) (SendResult, error) {
	t.Helper()
	b, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	res, err := e.Execute(context.Background(), "message.send", b)
	if err != nil {
		return SendResult{}, err
	}
	sr, ok := res.(SendResult)
	if !ok {
		t.Fatalf("unexpected result type %T", res)
	}
	return sr, nil
}

func TestUnknownAction(t *testing.T) {
	e := New(0, &fakeQQ{}, &fakeTG{})
	if _, err := e.Execute(context.Background(), "message.recall", nil); err == nil {
		t.Fatalf("unknown action must fail")
	}
}

func TestSendQQGroup(t *testing.T) {
	qq := &fakeQQ{}
	e := New(0, qq, &fakeTG{})
	res, err := send(t, e, map[string]any{
		"channelId": "qq:g:123456",
		"segments": []map[string]any{
			{"type": "text", "data": map[string]any{"text": "hello"}},
			{"type": "at", "data": map[string]any{"userId": "qq:u:789"}},
			{"type": "reply", "data": map[string]any{"messageId": "qq:m:42"}},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if qq.groupID != 123456 {
		t.Fatalf("group id %d", qq.groupID)
	}
	if res.MessageID != "qq:m:555" || res.Platform != protocol.PlatformQQ || res.Timestamp == 0 {
		t.Fatalf("bad result: %+v", res)
	}
	if len(qq.elements) != 3 {
		t.Fatalf("elements: %+v", qq.elements)
	}
	if qq.elements[0].Type != "text" || qq.elements[0].Data["text"] != "hello" {
		t.Fatalf("text element: %+v", qq.elements[0])
	}
	if qq.elements[1].Type != "at" || qq.elements[1].Data["qq"] != "789" {
		t.Fatalf("at element: %+v", qq.elements[1])
	}
	if qq.elements[2].Type != "reply" || qq.elements[2].Data["id"] != "42" {
		t.Fatalf("reply element: %+v", qq.elements[2])
	}
}

func TestSendQQPrivateAndLegacyForm(t *testing.T) {
	qq := &fakeQQ{}
	e := New(0, qq, nil)
	if _, err := send(t, e, map[string]any{
		"channelId": "qq:p:777",
		"segments":  []map[string]any{{"type": "text", "data": map[string]any{"text": "hi"}}},
	}); err != nil {
		t.Fatalf("private send: %v", err)
	}
	if qq.userID != 777 {
		t.Fatalf("user id %d", qq.userID)
	}

	// The bare legacy form routes to the group path.
	if _, err := send(t, e, map[string]any{
		"channelId": "qq:123456",
		"segments":  []map[string]any{{"type": "text", "data": map[string]any{"text": "hi"}}},
	}); err != nil {
		t.Fatalf("legacy send: %v", err)
	}
	if qq.groupID != 123456 {
		t.Fatalf("legacy form should target the group, got %d", qq.groupID)
	}
}

func TestSendQQMediaAndPassthrough(t *testing.T) {
	qq := &fakeQQ{}
	e := New(0, qq, nil)
	if _, err := send(t, e, map[string]any{
		"channelId": "qq:g:1",
		"segments": []map[string]any{
			{"type": "image", "data": map[string]any{"url": "https://x/img.png"}},
			{"type": "audio", "data": map[string]any{"url": "https://x/a.ogg"}},
			{"type": "sticker", "data": map[string]any{"id": "7"}},
		},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if qq.elements[0].Type != "image" || qq.elements[0].Data["file"] != "https://x/img.png" {
		t.Fatalf("image element: %+v", qq.elements[0])
	}
	if qq.elements[1].Type != "record" {
		t.Fatalf("audio must map to record: %+v", qq.elements[1])
	}
	if qq.elements[2].Type != "sticker" || qq.elements[2].Data["id"] != "7" {
		t.Fatalf("unrecognized segments must pass through: %+v", qq.elements[2])
	}
}

func TestSendQQError(t *testing.T) {
	e := New(0, &fakeQQ{err: errors.New("rate limited")}, nil)
	_, err := send(t, e, map[string]any{
		"channelId": "qq:g:1",
		"segments":  []map[string]any{{"type": "text", "data": map[string]any{"text": "x"}}},
	})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSendTGReplyBeatsThread(t *testing.T) {
	tg := &fakeTG{}
	e := New(0, nil, tg)
	res, err := send(t, e, map[string]any{
		"channelId": "tg:c:987:t:77",
		"segments": []map[string]any{
			{"type": "text", "data": map[string]any{"text": "pong"}},
			{"type": "reply", "data": map[string]any{"messageId": "tg:m:987:456"}},
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.opts.ReplyTo != 456 {
		t.Fatalf("reply target %d, want 456", tg.opts.ReplyTo)
	}
	if tg.opts.MessageThreadID != 77 {
		t.Fatalf("thread id %d, want 77", tg.opts.MessageThreadID)
	}
	if tg.text != "pong" {
		t.Fatalf("reply segments must not leak into text: %q", tg.text)
	}
	if res.MessageID != "tg:m:987:456" || res.Platform != protocol.PlatformTG {
		t.Fatalf("bad result: %+v", res)
	}
}

func TestSendTGThreadAnchorsWithoutReply(t *testing.T) {
	tg := &fakeTG{}
	e := New(0, nil, tg)
	if _, err := send(t, e, map[string]any{
		"channelId": "tg:c:987:t:77",
		"segments":  []map[string]any{{"type": "text", "data": map[string]any{"text": "hi"}}},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.opts.ReplyTo != 77 {
		t.Fatalf("topic sends must anchor on the thread id, got %d", tg.opts.ReplyTo)
	}
}

func TestSendTGTopLevelReplyParam(t *testing.T) {
	tg := &fakeTG{}
	e := New(0, nil, tg)
	if _, err := send(t, e, map[string]any{
		"channelId": "tg:c:987",
		"reply":     "301",
		"segments":  []map[string]any{{"type": "text", "data": map[string]any{"text": "hi"}}},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.opts.ReplyTo != 301 {
		t.Fatalf("reply param ignored, got %d", tg.opts.ReplyTo)
	}
}

func TestSendTGMentions(t *testing.T) {
	tg := &fakeTG{}
	e := New(0, nil, tg)
	if _, err := send(t, e, map[string]any{
		"channelId": "tg:c:987",
		"segments": []map[string]any{
			{"type": "text", "data": map[string]any{"text": "héllo "}},
			{"type": "at", "data": map[string]any{"userId": "tg:u:42", "name": "Alice"}},
			{"type": "at", "data": map[string]any{"userId": "tg:username:bob"}},
		},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.text != "héllo Alice@bob" {
		t.Fatalf("rendered text: %q", tg.text)
	}
	if len(tg.opts.Entities) != 1 {
		t.Fatalf("entities: %+v", tg.opts.Entities)
	}
	ent := tg.opts.Entities[0]
	if ent.Offset != 6 || ent.Length != 5 || ent.UserID != 42 {
		t.Fatalf("entity: %+v", ent)
	}
}

func TestSendTGNumericMentionWithoutName(t *testing.T) {
	tg := &fakeTG{}
	e := New(0, nil, tg)
	if _, err := send(t, e, map[string]any{
		"channelId": "tg:c:987",
		"segments": []map[string]any{
			{"type": "at", "data": map[string]any{"userId": "tg:u:42"}},
		},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tg.text != "user42" {
		t.Fatalf("fallback label: %q", tg.text)
	}
}

func TestSendTGEmptyTextFails(t *testing.T) {
	e := New(0, nil, &fakeTG{})
	_, err := send(t, e, map[string]any{
		"channelId": "tg:c:987",
		"segments":  []map[string]any{{"type": "reply", "data": map[string]any{"messageId": "456"}}},
	})
	if err == nil || !strings.Contains(err.Error(), "no sendable text") {
		t.Fatalf("expected empty-text error, got %v", err)
	}
}

func TestSendWithoutClient(t *testing.T) {
	e := New(3, nil, nil)
	if _, err := send(t, e, map[string]any{"channelId": "qq:g:1", "segments": []map[string]any{{"type": "text", "data": map[string]any{"text": "x"}}}}); err == nil {
		t.Fatalf("qq send without client must fail")
	}
	if _, err := send(t, e, map[string]any{"channelId": "tg:c:1", "segments": []map[string]any{{"type": "text", "data": map[string]any{"text": "x"}}}}); err == nil {
		t.Fatalf("tg send without client must fail")
	}
}

func TestSendBadChannel(t *testing.T) {
	e := New(0, &fakeQQ{}, &fakeTG{})
	if _, err := send(t, e, map[string]any{"channelId": "discord:c:1"}); err == nil {
		t.Fatalf("unknown platform must fail")
	}
	if _, err := send(t, e, map[string]any{"channelId": ""}); err == nil {
		t.Fatalf("empty channel must fail")
	}
}
