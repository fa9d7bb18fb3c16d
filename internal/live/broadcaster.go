package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/game"
)

// Broadcaster periodically recomputes the leaderboard and fans it out to
// every connected websocket client. Standings are recomputed from current
// state each tick; nothing is cached between ticks.
type Broadcaster struct {
	service  *game.Service
	interval time.Duration

	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

// client pairs a connection with its write lock. The websocket library
// allows a single writer per connection, and frames are written both from
// Register and from the tick loop, so every write goes through send
// holding this lock.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Frame is one leaderboard push to connected clients
type Frame struct {
	Type      string      `json:"type"`
	Standings interface{} `json:"standings"`
	Time      time.Time   `json:"time"`
}

// NewBroadcaster creates a live leaderboard broadcaster
func NewBroadcaster(service *game.Service, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Broadcaster{
		service:  service,
		interval: interval,
		clients:  make(map[*websocket.Conn]*client),
	}
}

// Start begins the broadcast loop in a goroutine
func (b *Broadcaster) Start(ctx context.Context) {
	go b.run(ctx)
}

// run is the main broadcast loop
func (b *Broadcaster) run(ctx context.Context) {
	slog.Info("live leaderboard broadcaster started", "interval", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("live leaderboard broadcaster stopped")
			b.closeAll()
			return
		case <-ticker.C:
			b.broadcast(ctx)
		}
	}
}

// Register adds a client and immediately sends it the current standings
func (b *Broadcaster) Register(ctx context.Context, conn *websocket.Conn) {
	c := &client{conn: conn}

	b.mu.Lock()
	b.clients[conn] = c
	count := len(b.clients)
	b.mu.Unlock()

	slog.Info("live leaderboard client connected", "clients", count)

	if frame, err := b.currentFrame(ctx); err == nil {
		b.send(c, frame)
	}
}

// Unregister removes a client
func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	count := len(b.clients)
	b.mu.Unlock()

	slog.Info("live leaderboard client disconnected", "clients", count)
}

// broadcast pushes fresh standings to every client
func (b *Broadcaster) broadcast(ctx context.Context) {
	b.mu.Lock()
	count := len(b.clients)
	b.mu.Unlock()

	if count == 0 {
		return
	}

	frame, err := b.currentFrame(ctx)
	if err != nil {
		slog.Error("failed to compute standings for broadcast", "error", err)
		return
	}

	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		if err := b.send(c, frame); err != nil {
			// Writing to a dead peer; drop it
			b.Unregister(c.conn)
			c.conn.Close()
		}
	}
}

func (b *Broadcaster) currentFrame(ctx context.Context) ([]byte, error) {
	standings, err := b.service.Standings(ctx)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Frame{
		Type:      "standings",
		Standings: standings,
		Time:      time.Now().UTC(),
	})
}

func (b *Broadcaster) send(c *client, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		conn.Close()
	}
	b.clients = make(map[*websocket.Conn]*client)
}
