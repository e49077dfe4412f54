package domain

type Command int

const (
	OPEN Command = iota
	SUBSCRIBE
	SEND
	OTHER
)

func (c Command) String() string {
	switch c {
	case OPEN:
		return "OPEN"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SEND:
		return "SEND"
	default:
		return "OTHER"
	}
}

// ParseCommand accepts the names used in authorization rule files.
func ParseCommand(s string) (Command, bool) {
	switch s {
	case "OPEN", "CONNECT":
		return OPEN, true
	case "SUBSCRIBE":
		return SUBSCRIBE, true
	case "SEND":
		return SEND, true
	case "OTHER":
		return OTHER, true
	default:
		return OTHER, false
	}
}

type GetMessagesCommand struct {
	ChatID    ChatID
	Requester UserID
	Cursor    *string
}
