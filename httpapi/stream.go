package httpapi

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamSnapshot is the shape pushed to every connected dashboard
// client on each broadcast tick.
type streamSnapshot struct {
	WorkerRunning     bool   `json:"worker_running"`
	ActiveInstances   int    `json:"active_instances"`
	AvailableThisHour int    `json:"available_this_hour"`
	SchedulerJobs     int    `json:"scheduler_jobs"`
	Error             string `json:"error,omitempty"`
}

const broadcastInterval = 2 * time.Second

// streamHub tracks connected dashboard clients and pushes a status
// snapshot to all of them on a fixed tick, the way control_plane's
// MetricsHub broadcasts, minus the per-tenant grouping this domain has
// no use for.
type streamHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

func newStreamHub() *streamHub {
	return &streamHub{
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (h *streamHub) run(ctx context.Context, snapshot func(context.Context) streamSnapshot) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
		case <-ticker.C:
			h.broadcast(snapshot(ctx))
		}
	}
}

func (h *streamHub) broadcast(snap streamSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(snap); err != nil {
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *streamHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// handleStream is GET /v1/stream: upgrade and register with the hub,
// then block on the read pump purely to detect client disconnection.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade failed: %v", err)
		return
	}
	s.hub.register <- conn
	defer func() { s.hub.unregister <- conn }()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("httpapi: websocket error: %v", err)
			}
			return
		}
	}
}
