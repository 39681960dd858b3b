package websocket

import (
	"log"

	"github.com/listing-sync/backend/internal/apperrors"
	"github.com/listing-sync/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastPropertySyncStarted sends a property sync started event.
func (b *EventBroadcaster) BroadcastPropertySyncStarted(propertyID, propertyName string) {
	payload := PropertySyncPayload{
		PropertyID:   propertyID,
		PropertyName: propertyName,
		Status:       models.SyncStatusSyncing,
	}
	b.broadcast(propertyID, NewMessage(TypePropertySyncStarted, payload))
}

// BroadcastPropertySyncCompleted sends a property sync completed event.
func (b *EventBroadcaster) BroadcastPropertySyncCompleted(result models.SyncResult) {
	payload := PropertySyncPayload{
		PropertyID:    result.PropertyID,
		PropertyName:  result.PropertyName,
		Status:        models.SyncStatusSuccess,
		WindowStart:   result.WindowStart,
		WindowEnd:     result.WindowEnd,
		Days:          result.Days,
		Unavailable:   result.Unavailable,
		DiffPublished: result.DiffPublished,
	}

	if result.Error != nil {
		payload.Status = models.SyncStatusError
	}

	b.broadcast(result.PropertyID, NewMessage(TypePropertySyncCompleted, payload))
}

// BroadcastPropertySyncError sends a property sync error event. Core
// errors report their code; anything else reports sync_error.
func (b *EventBroadcaster) BroadcastPropertySyncError(propertyID, propertyName string, err error) {
	code := string(apperrors.CodeOf(err))
	if code == "" {
		code = "sync_error"
	}
	payload := PropertySyncErrorPayload{
		PropertyID:   propertyID,
		PropertyName: propertyName,
		Error:        code,
		Message:      err.Error(),
	}
	b.broadcast(propertyID, NewMessage(TypePropertySyncError, payload))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	payload := NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}
	b.broadcast("", NewMessage(TypeNotification, payload))
}

// BroadcastSystemStatusChanged sends a system status change event.
func (b *EventBroadcaster) BroadcastSystemStatusChanged(status map[string]any) {
	b.broadcast("", NewMessage(TypeSystemStatusChanged, status))
}

// broadcast sends a message to all interested clients.
func (b *EventBroadcaster) broadcast(propertyID string, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(propertyID, data)
}
