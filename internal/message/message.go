// Package message defines the messages the browser extension sends to the
// daemon. Each message kind is its own type; Decode picks the type from the
// JSON "type" field.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownType is returned for a "type" no message kind claims.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is returned when the payload does not fit its type.
	ErrMalformed = errors.New("malformed message")
)

// Message is implemented only by the types in this package.
type Message interface {
	Type() string
	isMessage()
}

// Sender identifies the tab a content script message came from.
type Sender struct {
	TabID int `json:"tabId"`
}

type SetTrackedSitesArray struct {
	Sites []string `json:"sites"`
}

type GetTrackedSitesArray struct{}

type AddTrackedSite struct {
	Site string `json:"site"`
}

type RemoveTrackedSite struct {
	Site string `json:"site"`
}

// Heartbeat is fire-and-forget; it never gets a response body.
type Heartbeat struct {
	Visible bool    `json:"visible"`
	URL     string  `json:"url"`
	Seconds int64   `json:"seconds"`
	Sender  *Sender `json:"sender,omitempty"`
}

type GetTimes struct{}

type GetTotals struct{}

type GetUntrackedTime struct{}

type Reset struct{}

// Browser events. Timestamp is milliseconds since the Unix epoch; zero means
// "now" on the receiving side.

type TabActivated struct {
	TabID     int    `json:"tabId"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type TabUpdated struct {
	TabID     int    `json:"tabId"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// WindowFocusChanged carries the active tab of the newly focused window.
// WindowID -1 means no window has focus.
type WindowFocusChanged struct {
	WindowID  int    `json:"windowId"`
	TabID     int    `json:"tabId,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type Startup struct {
	TabID     int    `json:"tabId,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

type Installed struct {
	TabID     int    `json:"tabId,omitempty"`
	URL       string `json:"url,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func (SetTrackedSitesArray) Type() string { return "setTrackedSitesArray" }
func (GetTrackedSitesArray) Type() string { return "getTrackedSitesArray" }
func (AddTrackedSite) Type() string       { return "addTrackedSite" }
func (RemoveTrackedSite) Type() string    { return "removeTrackedSite" }
func (Heartbeat) Type() string            { return "heartbeat" }
func (GetTimes) Type() string             { return "getTimes" }
func (GetTotals) Type() string            { return "getTotals" }
func (GetUntrackedTime) Type() string     { return "getUntrackedTime" }
func (Reset) Type() string                { return "reset" }
func (TabActivated) Type() string         { return "tabActivated" }
func (TabUpdated) Type() string           { return "tabUpdated" }
func (WindowFocusChanged) Type() string   { return "windowFocusChanged" }
func (Startup) Type() string              { return "startup" }
func (Installed) Type() string            { return "installed" }

func (SetTrackedSitesArray) isMessage() {}
func (GetTrackedSitesArray) isMessage() {}
func (AddTrackedSite) isMessage()       {}
func (RemoveTrackedSite) isMessage()    {}
func (Heartbeat) isMessage()            {}
func (GetTimes) isMessage()             {}
func (GetTotals) isMessage()            {}
func (GetUntrackedTime) isMessage()     {}
func (Reset) isMessage()                {}
func (TabActivated) isMessage()         {}
func (TabUpdated) isMessage()           {}
func (WindowFocusChanged) isMessage()   {}
func (Startup) isMessage()              {}
func (Installed) isMessage()            {}

// decoders maps each type tag to a function decoding its payload.
var decoders = map[string]func([]byte) (Message, error){
	"setTrackedSitesArray": decodeAs[SetTrackedSitesArray],
	"getTrackedSitesArray": decodeAs[GetTrackedSitesArray],
	"addTrackedSite":       decodeAs[AddTrackedSite],
	"removeTrackedSite":    decodeAs[RemoveTrackedSite],
	"heartbeat":            decodeAs[Heartbeat],
	"getTimes":             decodeAs[GetTimes],
	"getTotals":            decodeAs[GetTotals],
	"getUntrackedTime":     decodeAs[GetUntrackedTime],
	"reset":                decodeAs[Reset],
	"tabActivated":         decodeAs[TabActivated],
	"tabUpdated":           decodeAs[TabUpdated],
	"windowFocusChanged":   decodeAs[WindowFocusChanged],
	"startup":              decodeAs[Startup],
	"installed":            decodeAs[Installed],
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, m.Type(), err)
	}
	return m, nil
}

// Types lists every known type tag, sorted.
func Types() []string {
	out := make([]string, 0, len(decoders))
	for k := range decoders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Decode parses one JSON message.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	decode, ok := decoders[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
	return decode(data)
}
