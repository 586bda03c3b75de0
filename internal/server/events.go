package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/leadscout/internal/scout"
)

const (
	eventBufferSize = 64
	writeTimeout    = 5 * time.Second
)

// Broadcaster fans pipeline events out to subscribed websocket clients.
// Slow clients drop events instead of blocking the pipeline.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[chan scout.Event]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs: make(map[chan scout.Event]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Publish delivers an event to all subscribers without blocking.
func (b *Broadcaster) Publish(e scout.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug("dropping event for slow subscriber", "type", e.Type)
		}
	}
}

func (b *Broadcaster) subscribe() chan scout.Event {
	ch := make(chan scout.Event, eventBufferSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan scout.Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

// ServeHTTP upgrades the connection and streams events until the client
// disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := b.subscribe()
	defer b.unsubscribe(ch)
	b.logger.Info("event subscriber connected", "remote", r.RemoteAddr)

	// Reads are discarded; the read loop only notices disconnects.
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
		case <-r.Context().Done():
			return
		case event := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(event); err != nil {
				b.logger.Debug("event subscriber write failed", "error", err)
				return
			}
		}
	}
}
