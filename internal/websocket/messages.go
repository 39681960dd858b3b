package websocket

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypePropertySyncStarted   MessageType = "property.sync_started"
	TypePropertySyncCompleted MessageType = "property.sync_completed"
	TypePropertySyncError     MessageType = "property.sync_error"
	TypeSystemStatusChanged   MessageType = "system.status_changed"
	TypeNotification          MessageType = "notification"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a message received from a client.
type Command struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseCommand decodes a client message.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decoding command: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("command has no type")
	}
	return cmd, nil
}

// SubscribePayload is the payload of subscribe and unsubscribe commands
// and of subscribe.ack responses.
type SubscribePayload struct {
	PropertyIDs []string `json:"property_ids"`
}

// PropertySyncPayload is the payload for property.sync_started and
// property.sync_completed events.
type PropertySyncPayload struct {
	PropertyID    string     `json:"property_id"`
	PropertyName  string     `json:"property_name"`
	Status        string     `json:"status"`
	WindowStart   string     `json:"window_start,omitempty"`
	WindowEnd     string     `json:"window_end,omitempty"`
	Days          int        `json:"days"`
	Unavailable   int        `json:"unavailable"`
	DiffPublished bool       `json:"diff_published"`
	NextSyncAt    *time.Time `json:"next_sync_at,omitempty"`
}

// PropertySyncErrorPayload is the payload for property.sync_error events.
type PropertySyncErrorPayload struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
