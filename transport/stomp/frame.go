// Package stomp encodes and decodes STOMP 1.2 text frames.
package stomp

import (
	"bytes"
	"chat-gateway/domain"
	"chat-gateway/errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Connect     = "CONNECT"
	Stomp       = "STOMP"
	Connected   = "CONNECTED"
	Send        = "SEND"
	Subscribe   = "SUBSCRIBE"
	Unsubscribe = "UNSUBSCRIBE"
	Disconnect  = "DISCONNECT"
	Message     = "MESSAGE"
	Receipt     = "RECEIPT"
	Error       = "ERROR"

	Version = "1.2"
)

const (
	headerContentLength = "content-length"
	headerContentType   = "content-type"
	headerReceiptID     = "receipt-id"
	headerSubscription  = "subscription"
	headerMessageID     = "message-id"
	headerVersion       = "version"
	headerHeartBeat     = "heart-beat"
	headerServer        = "server"
)

type Header struct {
	Key   string
	Value string
}

// Frame keeps header order, the first occurrence of a repeated header wins.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

func (f Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func (f *Frame) Set(key, value string) {
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
}

// escapes reports whether the frame's headers use the 1.2 escape sequences.
// CONNECT and CONNECTED are exempt for 1.0 compatibility.
func escapes(command string) bool {
	return command != Connect && command != Connected
}

var (
	headerEncoder = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	headerDecoder = strings.NewReplacer(`\\`, `\`, `\r`, "\r", `\n`, "\n", `\c`, ":")
)

// Bytes encodes the frame, content-length is always set when a body exists.
func (f Frame) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')
	escape := escapes(f.Command)
	for _, h := range f.Headers {
		if h.Key == headerContentLength {
			continue
		}
		key, value := h.Key, h.Value
		if escape {
			key, value = headerEncoder.Replace(key), headerEncoder.Replace(value)
		}
		buf.WriteString(key)
		buf.WriteByte(':')
		buf.WriteString(value)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString(headerContentLength + ":" + strconv.Itoa(len(f.Body)) + "\n")
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// Parse decodes one frame. Leading heart-beat newlines are skipped.
func Parse(data []byte) (Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty frame", errors.ErrMalformedFrame)
	}

	headEnd, sepLen := headerEnd(data)
	if headEnd < 0 {
		return Frame{}, fmt.Errorf("%w: missing header terminator", errors.ErrMalformedFrame)
	}
	lines := strings.Split(string(data[:headEnd]), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	frame := Frame{Command: lines[0]}
	if frame.Command == "" {
		return Frame{}, fmt.Errorf("%w: missing command", errors.ErrMalformedFrame)
	}

	escape := escapes(frame.Command)
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("%w: header line %q", errors.ErrMalformedFrame, line)
		}
		if escape {
			if err := checkEscapes(key); err != nil {
				return Frame{}, err
			}
			if err := checkEscapes(value); err != nil {
				return Frame{}, err
			}
			key, value = headerDecoder.Replace(key), headerDecoder.Replace(value)
		}
		frame.Set(key, value)
	}

	rest := data[headEnd+sepLen:]
	if raw, ok := frame.Get(headerContentLength); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n >= len(rest) {
			return Frame{}, fmt.Errorf("%w: content-length %q", errors.ErrMalformedFrame, raw)
		}
		if rest[n] != 0 {
			return Frame{}, fmt.Errorf("%w: body not NUL terminated", errors.ErrMalformedFrame)
		}
		frame.Body = rest[:n]
		return frame, nil
	}
	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return Frame{}, fmt.Errorf("%w: body not NUL terminated", errors.ErrMalformedFrame)
	}
	frame.Body = rest[:nul]
	return frame, nil
}

func headerEnd(data []byte) (int, int) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return crlf, 4
	case lf >= 0:
		return lf, 2
	default:
		return -1, 0
	}
}

// checkEscapes rejects the undefined escape sequences, which are fatal in 1.2.
func checkEscapes(s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			continue
		}
		if i+1 >= len(s) || !strings.ContainsRune(`\rnc`, rune(s[i+1])) {
			return fmt.Errorf("%w: invalid escape in %q", errors.ErrMalformedFrame, s)
		}
		i++
	}
	return nil
}

// ToDomain maps a client frame to the gateway frame.
func ToDomain(f Frame) domain.Frame {
	headers := make(map[string]string, len(f.Headers))
	for _, h := range f.Headers {
		if _, seen := headers[h.Key]; !seen {
			headers[h.Key] = h.Value
		}
	}
	destination, _ := f.Get(domain.HeaderDestination)
	return domain.Frame{
		Command:     command(f.Command),
		Verb:        f.Command,
		Destination: destination,
		Headers:     headers,
		Body:        f.Body,
	}
}

func command(verb string) domain.Command {
	switch verb {
	case Connect, Stomp:
		return domain.OPEN
	case Subscribe:
		return domain.SUBSCRIBE
	case Send:
		return domain.SEND
	default:
		return domain.OTHER
	}
}

func NewConnected(heartBeat, server string) Frame {
	f := Frame{Command: Connected}
	f.Set(headerVersion, Version)
	f.Set(headerHeartBeat, heartBeat)
	f.Set(headerServer, server)
	return f
}

func NewMessage(destination, subscriptionID, messageID string, body []byte) Frame {
	f := Frame{Command: Message, Body: body}
	f.Set(domain.HeaderDestination, destination)
	f.Set(headerSubscription, subscriptionID)
	f.Set(headerMessageID, messageID)
	f.Set(headerContentType, "application/json")
	return f
}

func NewReceipt(receiptID string) Frame {
	f := Frame{Command: Receipt}
	f.Set(headerReceiptID, receiptID)
	return f
}

// NewError builds an ERROR frame. receiptID is echoed when the offending frame asked for one.
func NewError(message, receiptID string, detail []byte) Frame {
	f := Frame{Command: Error, Body: detail}
	f.Set(domain.HeaderMessage, message)
	if receiptID != "" {
		f.Set(headerReceiptID, receiptID)
	}
	if len(detail) > 0 {
		f.Set(headerContentType, "text/plain")
	}
	return f
}
