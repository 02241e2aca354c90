package protocol

import (
	"encoding/json"
	"time"
)

// Version is the wire protocol version stamped on every frame.
const Version = 1

// Frame op codes.
const (
	OpHello    = "hello"
	OpIdentify = "identify"
	OpReady    = "ready"
	OpPing     = "ping"
	OpPong     = "pong"
	OpEvent    = "event"
	OpCall     = "call"
	OpResult   = "result"
	OpError    = "error"
)

// Error codes carried in error frames and result errors.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeNotReady         = "NOT_READY"
	CodeExecutionError   = "EXECUTION_ERROR"
	CodeUnknownOp        = "UNKNOWN_OP"
	CodeInvalidFrame     = "INVALID_FRAME"
	CodeInternalError    = "INTERNAL_ERROR"
)

// WebSocket close codes used by the gateway.
const (
	CloseNormal     = 1000
	CloseAuthFailed = 4001
	CloseForbidden  = 4003
)

// Frame is an inbound wire frame. The payload stays raw until the op is known.
type Frame struct {
	Op   string          `json:"op"`
	V    int             `json:"v"`
	T    int64           `json:"t"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OutFrame is an outbound frame whose payload is serialized on write.
type OutFrame struct {
	Op   string `json:"op"`
	V    int    `json:"v"`
	T    int64  `json:"t"`
	Data any    `json:"data,omitempty"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ResumeInfo struct {
	Supported bool `json:"supported"`
	BufferMs  int  `json:"bufferMs"`
}

type HelloData struct {
	SessionID    string     `json:"sessionId"`
	HeartbeatMs  int        `json:"heartbeatMs"`
	Server       ServerInfo `json:"server"`
	Capabilities []string   `json:"capabilities"`
	Resume       ResumeInfo `json:"resume"`
}

type Scope struct {
	Instances []int `json:"instances"`
}

type ResumeRequest struct {
	SessionID string `json:"sessionId"`
	LastSeq   int64  `json:"lastSeq"`
}

type IdentifyData struct {
	Token  string         `json:"token"`
	Scope  Scope          `json:"scope"`
	Resume *ResumeRequest `json:"resume,omitempty"`
}

type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PairQQ struct {
	ChannelID string `json:"channelId"`
	RoomID    int64  `json:"roomId"`
	Name      string `json:"name"`
}

type PairTG struct {
	ChannelID string `json:"channelId"`
	ChatID    int64  `json:"chatId"`
	ThreadID  int64  `json:"threadId,omitempty"`
	Name      string `json:"name"`
}

// PairRecord describes one QQ↔Telegram pairing inside an instance.
type PairRecord struct {
	PairID string `json:"pairId"`
	QQ     PairQQ `json:"qq"`
	TG     PairTG `json:"tg"`
}

type InstanceInfo struct {
	ID    int          `json:"id"`
	Name  string       `json:"name"`
	Pairs []PairRecord `json:"pairs,omitempty"`
}

type ReadyData struct {
	User      UserInfo       `json:"user"`
	Instances []InstanceInfo `json:"instances"`
}

type CallData struct {
	ID         string          `json:"id"`
	InstanceID *int            `json:"instanceId,omitempty"`
	Action     string          `json:"action"`
	Params     json.RawMessage `json:"params,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ResultData struct {
	ID      string     `json:"id"`
	Success bool       `json:"success"`
	Result  any        `json:"result,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal,omitempty"`
}

// Actor identifies the author of a pushed event.
type Actor struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// EventMessage is the message body of a message.created event.
type EventMessage struct {
	MessageID string    `json:"messageId"`
	Platform  string    `json:"platform"`
	ThreadID  int64     `json:"threadId,omitempty"`
	Native    any       `json:"native,omitempty"`
	Segments  []Segment `json:"segments"`
	Timestamp int64     `json:"timestamp"`
}

// MessageEvent is the one event type pushed by this gateway.
type MessageEvent struct {
	Seq        int64        `json:"seq"`
	Type       string       `json:"type"`
	InstanceID int          `json:"instanceId"`
	ChannelID  string       `json:"channelId"`
	ThreadID   int64        `json:"threadId,omitempty"`
	Actor      Actor        `json:"actor"`
	Message    EventMessage `json:"message"`
}

// EventMessageCreated is the type tag for MessageEvent.
const EventMessageCreated = "message.created"

func now() int64 { return time.Now().UnixMilli() }

func newFrame(op string, data any) OutFrame {
	return OutFrame{Op: op, V: Version, T: now(), Data: data}
}

// NewHello builds the first frame sent on every connection.
func NewHello(sessionID string, heartbeatMs int, serverName, serverVersion string) OutFrame {
	return newFrame(OpHello, HelloData{
		SessionID:    sessionID,
		HeartbeatMs:  heartbeatMs,
		Server:       ServerInfo{Name: serverName, Version: serverVersion},
		Capabilities: []string{"events", "calls"},
		Resume:       ResumeInfo{Supported: false},
	})
}

// NewReady builds the post-identify acknowledgement frame.
func NewReady(user UserInfo, instances []InstanceInfo) OutFrame {
	if instances == nil {
		instances = []InstanceInfo{}
	}
	return newFrame(OpReady, ReadyData{User: user, Instances: instances})
}

// NewError builds an error frame. A fatal error is a contract that the caller
// will also close the transport; the constructor never closes anything.
func NewError(code, message string, fatal bool) OutFrame {
	return newFrame(OpError, ErrorData{Code: code, Message: message, Fatal: fatal})
}

// NewPong answers a ping.
func NewPong() OutFrame { return newFrame(OpPong, struct{}{}) }

// NewResult builds the correlated response to a call frame.
func NewResult(id string, result any) OutFrame {
	return newFrame(OpResult, ResultData{ID: id, Success: true, Result: result})
}

// NewResultError builds a failed call response. The connection stays open.
func NewResultError(id, code, message string) OutFrame {
	return newFrame(OpResult, ResultData{ID: id, Success: false, Error: &ErrorInfo{Code: code, Message: message}})
}

// NewEvent wraps an event payload for fan-out.
func NewEvent(event any) OutFrame { return newFrame(OpEvent, event) }
