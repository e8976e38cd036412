package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/tasktimer/go/internal/timer"
)

// FrameType is the type of a server to client frame
type FrameType string

const (
	FrameTypeView  FrameType = "view"
	FrameTypeError FrameType = "error"
)

// Frame is sent to display clients
type Frame struct {
	Type      FrameType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	View      *timer.View `json:"view,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// MessageType is the type of a display event sent by a client
type MessageType string

const (
	MessageDescriptionChanged MessageType = "description_changed"
	MessageTimeFocused        MessageType = "time_focused"
	MessageTimeBlurred        MessageType = "time_blurred"
	MessageToggle             MessageType = "toggle"
	MessageReset              MessageType = "reset"
)

// ClientMessage is a display event received from a client
type ClientMessage struct {
	Type MessageType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// ParseClientMessage decodes a client message
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	err := json.Unmarshal(data, &msg)
	return msg, err
}
