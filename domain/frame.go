package domain

import "maps"

const (
	HeaderAuthorization = "Authorization"
	HeaderMessage       = "message"
	HeaderReceipt       = "receipt"
	HeaderSubscription  = "id"
	HeaderDestination   = "destination"
)

// Frame is one unit of inbound protocol traffic. It never reaches storage.
// The resolved identity travels on the frame itself, there is no ambient lookup.
type Frame struct {
	Command     Command
	Verb        string // raw protocol command, e.g. CONNECT or UNSUBSCRIBE
	Destination string
	Headers     map[string]string
	Body        []byte
	Identity    *Identity
}

func (f Frame) Header(key string) (string, bool) {
	v, ok := f.Headers[key]
	return v, ok
}

func (f Frame) WithIdentity(identity Identity) Frame {
	f.Identity = &identity
	return f
}

func (f Frame) WithHeader(key, value string) Frame {
	headers := make(map[string]string, len(f.Headers)+1)
	maps.Copy(headers, f.Headers)
	headers[key] = value
	f.Headers = headers
	return f
}

func (f Frame) Authenticated() bool {
	return f.Identity != nil
}
