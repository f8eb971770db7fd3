// Package admin exposes a read-only WebSocket feed of node events for
// operators and dashboards. Subscribers authenticate with a JWT bearer
// token.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/AtDexters-Lab/nexus-dht/internal/auth"
	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/node"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	subscriberQueueSize = 64
)

// Feed is the admin event feed server. It implements node.EventSink.
type Feed struct {
	cfg         *config.Config
	validator   auth.Validator
	upgrader    websocket.Upgrader
	server      *http.Server
	subscribers sync.Map // uuid.UUID -> *subscriber
}

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// New creates a Feed serving on the configured admin address.
func New(cfg *config.Config, validator auth.Validator) *Feed {
	return &Feed{
		cfg:       cfg,
		validator: validator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the feed's HTTP server.
func (f *Feed) Run() {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.handleEvents)
	f.server = &http.Server{
		Addr:    f.cfg.AdminListenAddress,
		Handler: mux,
	}

	log.Info().Str("component", "admin").Str("addr", f.cfg.AdminListenAddress).Msg("admin event feed listening")
	go func() {
		if err := f.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Str("component", "admin").Err(err).Msg("admin feed failed to start")
		}
	}()
}

// Stop shuts the server down and disconnects all subscribers.
func (f *Feed) Stop(ctx context.Context) {
	if f.server != nil {
		f.server.Shutdown(ctx)
	}
	f.subscribers.Range(func(_, value interface{}) bool {
		value.(*subscriber).conn.Close()
		return true
	})
}

// Publish implements node.EventSink. Slow subscribers lose events rather
// than stalling the node.
func (f *Feed) Publish(ev node.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Str("component", "admin").Err(err).Msg("failed to marshal event")
		return
	}
	f.subscribers.Range(func(_, value interface{}) bool {
		sub := value.(*subscriber)
		select {
		case sub.send <- payload:
		default:
			log.Debug().Str("component", "admin").Str("subscriber", sub.id.String()).Msg("subscriber queue full, dropping event")
		}
		return true
	})
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// WebSocket clients in browsers cannot set headers; allow a query
	// parameter as a fallback.
	return r.URL.Query().Get("token")
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request) {
	tokenStr := bearerToken(r)
	if tokenStr == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if _, err := f.validator.Validate(tokenStr); err != nil {
		log.Warn().Str("component", "admin").Err(err).Msg("rejected subscriber")
		http.Error(w, "invalid bearer token", http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "admin").Err(err).Msg("websocket upgrade failed")
		return
	}

	sub := &subscriber{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, subscriberQueueSize),
	}
	f.subscribers.Store(sub.id, sub)
	log.Info().Str("component", "admin").Str("subscriber", sub.id.String()).Msg("subscriber connected")

	go f.writePump(sub)
	go f.readPump(sub)
}

// readPump discards inbound frames; it exists to process control frames
// and notice disconnects.
func (f *Feed) readPump(sub *subscriber) {
	defer f.drop(sub)
	sub.conn.SetReadLimit(512)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *Feed) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.drop(sub)
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) drop(sub *subscriber) {
	if _, loaded := f.subscribers.LoadAndDelete(sub.id); loaded {
		log.Info().Str("component", "admin").Str("subscriber", sub.id.String()).Msg("subscriber disconnected")
	}
	sub.conn.Close()
}
