package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a websocket connection to a session's event stream.
func ServeWs(hub *Hub, c *websocket.Conn, sessionId string) {
	client := &Client{Hub: hub, Conn: c, SessionID: sessionId, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump() // runs in the handler goroutine
}
