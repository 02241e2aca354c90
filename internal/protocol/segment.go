package protocol

import "fmt"

// Segment types of the platform-neutral content model.
const (
	SegmentText    = "text"
	SegmentImage   = "image"
	SegmentVideo   = "video"
	SegmentAudio   = "audio"
	SegmentFile    = "file"
	SegmentAt      = "at"
	SegmentReply   = "reply"
	SegmentForward = "forward"
	SegmentRaw     = "raw"
)

// Segment is one typed unit of message content. Segments are value types:
// copied across the wire boundary, never shared by reference.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Text builds a text segment.
func Text(s string) Segment {
	return Segment{Type: SegmentText, Data: map[string]any{"text": s}}
}

// At builds a mention segment. name may be empty.
func At(userID, name string) Segment {
	d := map[string]any{"userId": userID}
	if name != "" {
		d["name"] = name
	}
	return Segment{Type: SegmentAt, Data: d}
}

// Reply builds a reply-reference segment.
func Reply(messageID string) Segment {
	return Segment{Type: SegmentReply, Data: map[string]any{"messageId": messageID}}
}

// Raw builds the degraded fallback segment for content the translators cannot
// normalize. kind records the original content type.
func Raw(kind string, payload any) Segment {
	return Segment{Type: SegmentRaw, Data: map[string]any{"kind": kind, "payload": payload}}
}

// Str returns the string value under key, or "".
func (s Segment) Str(key string) string {
	if s.Data == nil {
		return ""
	}
	switch v := s.Data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}
