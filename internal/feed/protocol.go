// Package feed streams engine events to a local client (the tray GUI) over a
// WebSocket bound to the loopback interface.
//
// # Wire protocol
//
// Server to client: one JSON object per text frame, shaped like Event. The
// "type" field is one of key_down, key_up, mouse_move, mouse_click, hotkey,
// toggle, activate or log.
//
// Client to server: {"action":"subscribe"|"unsubscribe","topics":[...]}.
// Topics group event types:
//
//   - keys: key_down, key_up
//   - mouse: mouse_move, mouse_click
//   - hotkeys: hotkey
//   - app: toggle, activate, log
//
// A new connection starts subscribed to hotkeys and app only; raw key and
// mouse traffic is opt-in.
package feed

import (
	"slices"
	"time"
)

// Topic is a subscription group.
type Topic string

const (
	TopicKeys    Topic = "keys"
	TopicMouse   Topic = "mouse"
	TopicHotkeys Topic = "hotkeys"
	TopicApp     Topic = "app"
)

// Event type names.
const (
	TypeKeyDown    = "key_down"
	TypeKeyUp      = "key_up"
	TypeMouseMove  = "mouse_move"
	TypeMouseClick = "mouse_click"
	TypeHotkey     = "hotkey"
	TypeToggle     = "toggle"
	TypeActivate   = "activate"
	TypeLog        = "log"
)

var topicBits = map[Topic]uint32{
	TopicKeys:    1 << 0,
	TopicMouse:   1 << 1,
	TopicHotkeys: 1 << 2,
	TopicApp:     1 << 3,
}

var defaultTopics = []Topic{TopicHotkeys, TopicApp}

// Event is a single feed message.
type Event struct {
	Type    string `json:"type"`
	Key     string `json:"key,omitempty"`
	Combo   string `json:"combo,omitempty"`
	X       int    `json:"x,omitempty"`
	Y       int    `json:"y,omitempty"`
	Button  string `json:"button,omitempty"`
	Pressed bool   `json:"pressed,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`
	// Time is milliseconds since the Unix epoch.
	Time int64 `json:"ts"`
}

// Topic returns the subscription group of the event type. Unknown types map
// to TopicApp.
func (e Event) Topic() Topic {
	switch e.Type {
	case TypeKeyDown, TypeKeyUp:
		return TopicKeys
	case TypeMouseMove, TypeMouseClick:
		return TopicMouse
	case TypeHotkey:
		return TopicHotkeys
	default:
		return TopicApp
	}
}

func now() int64 { return time.Now().UnixMilli() }

func KeyDown(key string) Event { return Event{Type: TypeKeyDown, Key: key, Time: now()} }

func KeyUp(key string) Event { return Event{Type: TypeKeyUp, Key: key, Time: now()} }

func MouseMove(x, y int) Event { return Event{Type: TypeMouseMove, X: x, Y: y, Time: now()} }

func MouseClick(x, y int, button string, pressed bool) Event {
	return Event{Type: TypeMouseClick, X: x, Y: y, Button: button, Pressed: pressed, Time: now()}
}

// Hotkey reports that the hotkey registered for combo fired.
func Hotkey(combo string) Event { return Event{Type: TypeHotkey, Combo: combo, Time: now()} }

// Toggle asks the GUI to show or hide its windows.
func Toggle(combo string) Event { return Event{Type: TypeToggle, Combo: combo, Time: now()} }

// Activate asks the GUI to bring its main window to the front.
func Activate() Event { return Event{Type: TypeActivate, Time: now()} }

func Log(level, message string) Event {
	return Event{Type: TypeLog, Level: level, Message: message, Time: now()}
}

// subscribeAction and unsubscribeAction are the valid values for subscribeMsg.Action.
const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

// subscribeMsg is the JSON payload for client subscribe/unsubscribe requests.
type subscribeMsg struct {
	Action string  `json:"action"`
	Topics []Topic `json:"topics"`
}

// errorMsg is the JSON payload for server error notifications sent to the client.
type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// maskOf folds topics into a bit mask. Unknown topics are reported back.
func maskOf(topics []Topic) (mask uint32, unknown []Topic) {
	for _, t := range topics {
		bit, ok := topicBits[t]
		if !ok {
			if !slices.Contains(unknown, t) {
				unknown = append(unknown, t)
			}
			continue
		}
		mask |= bit
	}
	return mask, unknown
}
