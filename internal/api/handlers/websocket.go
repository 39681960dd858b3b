package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	ws "github.com/listing-sync/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to WebSocket.
// A ?property=ID query parameter subscribes the client up front.
func WebSocketUpgrade(hub *ws.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		client := ws.NewClient(hub)
		if ids := r.URL.Query()["property"]; len(ids) > 0 {
			client.Subscribe(ids...)
		}
		hub.Register(client)

		// Start read and write pumps
		go writePump(conn, client)
		go readPump(conn, client, hub)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub) {
	defer func() {
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		reply(hub, client, handleClientMessage(message, client))
	}
}

// handleClientMessage applies a client command and returns the response to send.
func handleClientMessage(message []byte, client *ws.Client) ws.Message {
	cmd, err := ws.ParseCommand(message)
	if err != nil {
		return ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "invalid_command", Message: err.Error()})
	}

	switch cmd.Type {
	case ws.TypePing:
		return ws.NewMessage(ws.TypePong, nil)

	case ws.TypeSubscribe, ws.TypeUnsubscribe:
		var payload ws.SubscribePayload
		if len(cmd.Payload) > 0 {
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				return ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "invalid_payload", Message: "invalid subscribe payload", OriginalType: string(cmd.Type)})
			}
		}
		if cmd.Type == ws.TypeSubscribe {
			client.Subscribe(payload.PropertyIDs...)
		} else {
			client.Unsubscribe(payload.PropertyIDs...)
		}
		return ws.NewMessage(ws.TypeSubscribeAck, ws.SubscribePayload{PropertyIDs: client.Subscriptions()})

	default:
		return ws.NewMessage(ws.TypeError, ws.ErrorPayload{Code: "unknown_command", Message: "unknown command", OriginalType: string(cmd.Type)})
	}
}

// reply queues msg for the client, dropping it if the client is gone.
func reply(hub *ws.Hub, client *ws.Client, msg ws.Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket reply: %v", err)
		return
	}
	hub.Reply(client, data)
}
