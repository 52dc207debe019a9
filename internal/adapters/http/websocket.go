package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/patrolscan/internal/adapters/nats"
	"github.com/samirrijal/patrolscan/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "positions" | "detections" | "logs" (default: positions)
}

// wsChannels maps client channel names to NATS subjects.
var wsChannels = map[string]string{
	"positions":  natsadapter.SubjectPosition,
	"detections": natsadapter.SubjectDetections,
	"logs":       natsadapter.SubjectLogs,
}

// wsEnvelope tags relayed payloads with their channel.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// patrol events from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","channel":"detections"}
// Every client starts subscribed to positions.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // channel -> subscription

		// Helper: thread-safe write
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(channel string) (*nats.Subscription, error) {
			return nc.Subscribe(wsChannels[channel], func(msg *nats.Msg) {
				_ = writeJSON(wsEnvelope{Channel: channel, Data: msg.Data})
			})
		}

		sub, err := subscribe("positions")
		if err != nil {
			slog.Error("ws default subscribe failed", "error", err)
			return
		}
		subs["positions"] = sub

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		// Read client messages for subscribe/unsubscribe
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			channel := m.Channel
			if channel == "" {
				channel = "positions"
			}
			if _, ok := wsChannels[channel]; !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[channel]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": channel})
					continue
				}
				s, err := subscribe(channel)
				if err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				subs[channel] = s
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": channel})

			case "unsubscribe":
				if s, exists := subs[channel]; exists {
					_ = s.Unsubscribe()
					delete(subs, channel)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": channel})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + channel})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		// Cleanup
		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
