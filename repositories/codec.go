package repositories

import (
	"chat-gateway/domain"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format. Field numbers are part of the
// on-disk format and must never be reused.
const (
	messageID        protowire.Number = 1
	messageChatID    protowire.Number = 2
	messageSenderID  protowire.Number = 3
	messageContent   protowire.Number = 4
	messageTimestamp protowire.Number = 5

	chatID        protowire.Number = 1
	chatType      protowire.Number = 2
	chatName      protowire.Number = 3
	chatCreatedAt protowire.Number = 4

	letterMessage    protowire.Number = 1
	letterAttempts   protowire.Number = 2
	letterEnqueuedAt protowire.Number = 3
	letterReason     protowire.Number = 4
	letterFailedAt   protowire.Number = 5
)

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	return appendInt(b, num, t.UnixNano())
}

func toTime(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// field is one decoded record entry. Only varint and bytes fields are used.
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

func decodeFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			f.varint, b = v, b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			f.bytes, b = v, b[n:]
		default:
			// Unknown wire type from a newer writer, skip it.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func encodeMessage(m domain.Message) []byte {
	var b []byte
	b = appendString(b, messageID, m.ID)
	b = appendInt(b, messageChatID, int64(m.ChatID))
	b = appendString(b, messageSenderID, string(m.SenderID))
	b = appendString(b, messageContent, m.Content)
	b = appendTime(b, messageTimestamp, m.Timestamp)
	return b
}

func decodeMessage(b []byte) (domain.Message, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return domain.Message{}, err
	}
	var m domain.Message
	for _, f := range fields {
		switch f.num {
		case messageID:
			m.ID = string(f.bytes)
		case messageChatID:
			m.ChatID = domain.ChatID(int64(f.varint))
		case messageSenderID:
			m.SenderID = domain.UserID(f.bytes)
		case messageContent:
			m.Content = string(f.bytes)
		case messageTimestamp:
			m.Timestamp = toTime(int64(f.varint))
		}
	}
	return m, nil
}

func encodeChat(c domain.Chat) []byte {
	var b []byte
	b = appendInt(b, chatID, int64(c.ID))
	b = appendString(b, chatType, c.Type)
	b = appendString(b, chatName, c.Name)
	b = appendTime(b, chatCreatedAt, c.CreatedAt)
	return b
}

func decodeChat(b []byte) (domain.Chat, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return domain.Chat{}, err
	}
	var c domain.Chat
	for _, f := range fields {
		switch f.num {
		case chatID:
			c.ID = domain.ChatID(int64(f.varint))
		case chatType:
			c.Type = string(f.bytes)
		case chatName:
			c.Name = string(f.bytes)
		case chatCreatedAt:
			c.CreatedAt = toTime(int64(f.varint))
		}
	}
	return c, nil
}

func encodeDeadLetter(l domain.DeadLetter) []byte {
	var b []byte
	b = protowire.AppendTag(b, letterMessage, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeMessage(l.Task.Message))
	b = appendInt(b, letterAttempts, int64(l.Task.Attempts))
	b = appendTime(b, letterEnqueuedAt, l.Task.EnqueuedAt)
	b = appendString(b, letterReason, l.Reason)
	b = appendTime(b, letterFailedAt, l.FailedAt)
	return b
}

func decodeDeadLetter(b []byte) (domain.DeadLetter, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return domain.DeadLetter{}, err
	}
	var l domain.DeadLetter
	for _, f := range fields {
		switch f.num {
		case letterMessage:
			message, err := decodeMessage(f.bytes)
			if err != nil {
				return domain.DeadLetter{}, fmt.Errorf("dead letter message: %w", err)
			}
			l.Task.Message = message
		case letterAttempts:
			l.Task.Attempts = int(int64(f.varint))
		case letterEnqueuedAt:
			l.Task.EnqueuedAt = toTime(int64(f.varint))
		case letterReason:
			l.Reason = string(f.bytes)
		case letterFailedAt:
			l.FailedAt = toTime(int64(f.varint))
		}
	}
	return l, nil
}
