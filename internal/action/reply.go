package action

import (
	"strconv"
	"strings"
)

// replyIDMatchers is the ordered chain of shapes a reply message id may take
// on the wire. Order is significant: the structured form wins over looser
// parses.
var replyIDMatchers = []func(string) (int64, bool){
	matchStructuredTGID,
	matchBareNumeric,
	matchTrailingNumeric,
}

// ParseReplyID extracts a Telegram message id from any accepted shape:
// the full "tg:m:<chat>:<id>" form, a bare numeric string, or the trailing
// numeric token of a colon-separated string.
func ParseReplyID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, m := range replyIDMatchers {
		if id, ok := m(s); ok {
			return id, true
		}
	}
	return 0, false
}

func matchStructuredTGID(s string) (int64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "tg" || parts[1] != "m" {
		return 0, false
	}
	if _, err := strconv.ParseInt(parts[2], 10, 64); err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func matchBareNumeric(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func matchTrailingNumeric(s string) (int64, bool) {
	i := strings.LastIndex(s, ":")
	if i < 0 || i == len(s)-1 {
		return 0, false
	}
	id, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// lastToken returns the text after the final colon, or the whole string.
func lastToken(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
