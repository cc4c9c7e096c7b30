package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/rtls-engine/internal/database"
	"github.com/snarg/rtls-engine/internal/metrics"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 5 * time.Second

	// queueWait is how long a client waits on the update queues before
	// probing liveness with a ping.
	queueWait = 5 * time.Second
)

type anchorMsg struct {
	Type string `json:"type"`
	database.Anchor
}

type wearableMsg struct {
	Type string `json:"type"`
	database.Wearable
}

// SnapshotSource lists the registry for the initial per-client snapshot.
// *database.DB satisfies it.
type SnapshotSource interface {
	ListAnchors(ctx context.Context) ([]database.Anchor, error)
	ListWearables(ctx context.Context) ([]database.Wearable, error)
}

// Broadcaster upgrades /ws/data connections and pushes live updates. The four
// poller queues are shared across clients, so each update reaches exactly one
// of them; with the expected single dashboard client that is the whole feed.
type Broadcaster struct {
	store    SnapshotSource
	pollers  *Pollers
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewBroadcaster(store SnapshotSource, pollers *Pollers, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		store:   store,
		pollers: pollers,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is CORS-open; the push channel matches.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]struct{}{},
	}
}

// ClientCount returns the number of connected push-channel clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// ServeHTTP handles GET /ws/data: snapshot first, then the multiplex loop
// until the client goes away.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()
	metrics.WSClientsActive.Inc()
	b.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("push client connected")

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		metrics.WSClientsActive.Dec()
		conn.Close()
		b.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("push client disconnected")
	}()

	if err := b.sendSnapshot(r.Context(), conn); err != nil {
		b.log.Warn().Err(err).Msg("snapshot send failed")
		return
	}

	// Reader goroutine: we expect no client messages, but reading is what
	// surfaces disconnects and answers close handshakes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case msg := <-b.pollers.Positions:
			if b.write(conn, msg) != nil {
				return
			}
		case msg := <-b.pollers.Stats:
			if b.write(conn, msg) != nil {
				return
			}
		case msg := <-b.pollers.Scans:
			if b.write(conn, msg) != nil {
				return
			}
		case msg := <-b.pollers.AnchorStatus:
			if b.write(conn, msg) != nil {
				return
			}
		case <-time.After(queueWait):
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if conn.WriteMessage(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

// sendSnapshot writes one message per anchor, then one per wearable, in store
// order.
func (b *Broadcaster) sendSnapshot(ctx context.Context, conn *websocket.Conn) error {
	anchors, err := b.store.ListAnchors(ctx)
	if err != nil {
		return err
	}
	for _, a := range anchors {
		msg, err := json.Marshal(anchorMsg{Type: msgAnchor, Anchor: a})
		if err != nil {
			return err
		}
		if err := b.write(conn, msg); err != nil {
			return err
		}
	}

	wearables, err := b.store.ListWearables(ctx)
	if err != nil {
		return err
	}
	for _, wb := range wearables {
		msg, err := json.Marshal(wearableMsg{Type: msgWearable, Wearable: wb})
		if err != nil {
			return err
		}
		if err := b.write(conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broadcaster) write(conn *websocket.Conn, msg []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}
	metrics.WSMessagesSentTotal.Inc()
	return nil
}
