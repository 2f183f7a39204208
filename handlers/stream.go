// handlers/stream.go
package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"evg-scoreboard/middleware"
	"evg-scoreboard/models"
	"evg-scoreboard/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// streamMessage is the envelope pushed to WebSocket viewers.
type streamMessage struct {
	Type      string                      `json:"type"`
	Version   uint64                      `json:"version,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
	Data      *models.LeaderboardSnapshot `json:"data,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// SetupStreamRoutes exposes the live leaderboard as SSE on /leaderboard/stream and
// as a WebSocket on /leaderboard/ws.
func SetupStreamRoutes(app *fiber.App, hub *services.BroadcastHub, leaderboard *services.LeaderboardService, authClient *services.AuthServiceClient, keepAlive time.Duration) {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	viewerAuth := middleware.ViewerAuthMiddleware(authClient)

	app.Get("/leaderboard/stream", viewerAuth, streamSSE(hub, keepAlive))

	app.Use("/leaderboard/ws", viewerAuth, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/leaderboard/ws", websocket.New(streamWS(hub, leaderboard)))
}

func streamSSE(hub *services.BroadcastHub, keepAlive time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer := middleware.UserID(c)
		sub, err := hub.Register(c.UserContext(), viewer)
		if err != nil {
			return respondError(c, err)
		}

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer hub.Unregister(sub)

			ticker := time.NewTicker(keepAlive)
			defer ticker.Stop()

			event := "leaderboard_initial"
			for {
				select {
				case snap, ok := <-sub.Updates():
					if !ok {
						return
					}
					payload, err := json.Marshal(snap)
					if err != nil {
						log.Printf("❌ [SSE] marshal snapshot v%d: %v", snap.Version, err)
						continue
					}
					fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, snap.Version, payload)
					event = "leaderboard_update"
				case <-ticker.C:
					w.WriteString(": keepalive\n\n")
				}
				if err := w.Flush(); err != nil {
					log.Printf("📴 [SSE] viewer %s disconnected", viewer)
					return
				}
			}
		})
		return nil
	}
}

func streamWS(hub *services.BroadcastHub, leaderboard *services.LeaderboardService) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		viewer, _ := conn.Locals("user_id").(string)
		if viewer == "" {
			viewer = "anonymous"
		}
		defer conn.Close()

		sub, err := hub.Register(context.Background(), viewer)
		if err != nil {
			log.Printf("❌ [WS] register %s: %v", viewer, err)
			return
		}
		defer hub.Unregister(sub)

		var writeMu sync.Mutex
		send := func(msg streamMessage) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteJSON(msg)
		}
		sendText := func(text string) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, []byte(text))
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				command, framed := parseClientMessage(raw)
				switch command {
				case "ping":
					if framed {
						err = send(streamMessage{Type: "pong", Timestamp: time.Now().UTC()})
					} else {
						err = sendText("pong")
					}
					if err != nil {
						return
					}
				case "refresh":
					snap, err := leaderboard.Snapshot(context.Background())
					if err != nil {
						log.Printf("❌ [WS] refresh for %s: %v", viewer, err)
						continue
					}
					if err := send(snapshotMessage("leaderboard_update", snap)); err != nil {
						return
					}
				}
			}
		}()

		msgType := "leaderboard_initial"
		for {
			select {
			case snap, ok := <-sub.Updates():
				if !ok {
					return
				}
				if err := send(snapshotMessage(msgType, snap)); err != nil {
					log.Printf("📴 [WS] viewer %s write failed: %v", viewer, err)
					return
				}
				msgType = "leaderboard_update"
			case <-done:
				return
			}
		}
	}
}

// parseClientMessage accepts both plain text commands ("ping", "refresh") and
// {"type": "..."} envelopes. framed reports the JSON form so replies can match it.
func parseClientMessage(raw []byte) (command string, framed bool) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var in clientMessage
		if err := json.Unmarshal([]byte(text), &in); err == nil {
			return strings.ToLower(strings.TrimSpace(in.Type)), true
		}
	}
	return strings.ToLower(text), false
}

func snapshotMessage(msgType string, snap *models.LeaderboardSnapshot) streamMessage {
	return streamMessage{
		Type:      msgType,
		Version:   snap.Version,
		Timestamp: snap.GeneratedAt,
		Data:      snap,
	}
}
