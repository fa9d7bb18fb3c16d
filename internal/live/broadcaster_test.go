package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Putra1906/MBC-CaptureTheFlag/internal/game"
	"github.com/Putra1906/MBC-CaptureTheFlag/internal/storage"
)

func newBroadcastServer(t *testing.T, interval time.Duration) *httptest.Server {
	t.Helper()

	repo := storage.NewMemoryRepository()
	b := NewBroadcaster(game.NewService(repo), interval)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b.Start(ctx)

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		b.Register(r.Context(), conn)
		defer b.Unregister(conn)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestBroadcasterSendsInitialFrame(t *testing.T) {
	// A long interval so the only frame is the one sent at registration
	ts := newBroadcastServer(t, time.Hour)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}

	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.Type != "standings" {
		t.Errorf("expected a standings frame, got %q", frame.Type)
	}
}

func TestBroadcasterConcurrentRegistration(t *testing.T) {
	// A 1ms tick keeps the broadcast loop writing while clients connect,
	// so registration frames and tick frames overlap on the same
	// connections. The writes must be serialized per connection.
	ts := newBroadcastServer(t, time.Millisecond)

	const clients = 8
	var wg sync.WaitGroup

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
			if err != nil {
				t.Errorf("dial: %v", err)
				return
			}
			defer conn.Close()

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			for j := 0; j < 5; j++ {
				if _, _, err := conn.ReadMessage(); err != nil {
					t.Errorf("read frame: %v", err)
					return
				}
			}
		}()
	}

	wg.Wait()
}
