package repositories

import (
	"fmt"
	"strings"
)

// Record is a human readable view of one stored key, used by the debug inspector.
type Record struct {
	Kind   string
	Detail string
}

// Describe decodes a raw Badger entry according to its key prefix.
// Unknown prefixes are reported as raw bytes.
func Describe(key string, val []byte) Record {
	switch {
	case strings.HasPrefix(key, "msg:"):
		m, err := decodeMessage(val)
		if err != nil {
			return Record{Kind: "MESSAGE", Detail: "decode failed: " + err.Error()}
		}
		return Record{Kind: "MESSAGE", Detail: fmt.Sprintf("%s: %s", m.SenderID, m.Content)}
	case strings.HasPrefix(key, "chat:"):
		c, err := decodeChat(val)
		if err != nil {
			return Record{Kind: "CHAT", Detail: "decode failed: " + err.Error()}
		}
		return Record{Kind: "CHAT", Detail: fmt.Sprintf("%s (%s)", c.Name, c.Type)}
	case strings.HasPrefix(key, "member:"), strings.HasPrefix(key, "membership:"):
		return Record{Kind: "MEMBER", Detail: "-"}
	case strings.HasPrefix(key, deadLetterPrefix):
		l, err := decodeDeadLetter(val)
		if err != nil {
			return Record{Kind: "DEAD_LETTER", Detail: "decode failed: " + err.Error()}
		}
		return Record{Kind: "DEAD_LETTER", Detail: fmt.Sprintf("%s after %d attempts: %s",
			l.Task.Key(), l.Task.Attempts, l.Reason)}
	default:
		return Record{Kind: "RAW", Detail: fmt.Sprintf("Size: %d bytes", len(val))}
	}
}
