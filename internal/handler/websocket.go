package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trafficcam/internal/logger"
	ws "trafficcam/internal/service/websocket"
)

const (
	// DefaultPongWait is how long a stats client may stay silent before it is dropped.
	DefaultPongWait = 60 * time.Second
	writeWait       = 5 * time.Second
)

// NewUpgrader builds the websocket upgrader. An empty list or "*" allows every origin.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// StatsWebsocketHandler registers dashboard clients with the hub, which
// pushes every camera's stats to them. Clients are pinged every 9/10 of
// pongWait and dropped when a pong does not arrive in time.
func StatsWebsocketHandler(hub *ws.HubService, upgrader websocket.Upgrader, pongWait time.Duration,
	logger *logger.Logger) http.HandlerFunc {
	if pongWait <= 0 {
		pongWait = DefaultPongWait
	}
	pingPeriod := pongWait * 9 / 10

	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		if !hub.Register(connection) {
			connection.Close()
			return
		}
		defer hub.Unregister(connection)

		connection.SetReadDeadline(time.Now().Add(pongWait))
		connection.SetPongHandler(func(string) error {
			connection.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})

		done := make(chan struct{})
		defer close(done)
		go keepAlive(connection, pingPeriod, done)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warning("Stats client disconnected with error: %v", err)
				}
				return
			}
		}
	}
}

// keepAlive pings the client until done is closed. WriteControl may run
// concurrently with the hub's writes.
func keepAlive(connection *websocket.Conn, period time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := connection.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
