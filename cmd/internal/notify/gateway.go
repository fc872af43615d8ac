package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"pinboard/cmd/internal/auth"
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultSendQueue    = 64
	maxFrameBytes       = 4 << 10

	// pingEvery keeps intermediaries from reaping idle connections and
	// detects dead peers.
	pingEvery = 30 * time.Second
)

// GatewayConfig controls the websocket endpoint.
type GatewayConfig struct {
	// OriginPatterns are host patterns authorized for cross-origin
	// upgrades. Same-host requests are always accepted.
	OriginPatterns []string
	WriteTimeout   time.Duration
	SendQueue      int
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	return c
}

// Gateway upgrades authenticated requests to a notification stream. It
// must be mounted behind the credential gate; an unidentified request is
// refused before the upgrade.
type Gateway struct {
	log *slog.Logger
	cfg GatewayConfig
	hub *Hub
}

// NewGateway constructs the websocket entrypoint over hub.
func NewGateway(log *slog.Logger, cfg GatewayConfig, hub *Hub) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	return &Gateway{log: log, cfg: cfg.withDefaults(), hub: hub}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.OriginPatterns,
	})
	if err != nil {
		g.log.Info("websocket accept failed", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	c := newClient(id.UserID, g.cfg.SendQueue)
	g.hub.register(c)
	defer func() {
		g.hub.unregister(c)
		c.Close()
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: the stream is server-to-client only, so the read loop just
	// services control frames and notices the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.Done():
			return
		case ev := <-c.send:
			if err := g.write(ctx, conn, ev); err != nil {
				g.log.Info("websocket write failed", "user_id", id.UserID, "error", err)
				return
			}
		case <-ticker.C:
			if err := g.ping(ctx, conn); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}

func (g *Gateway) ping(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
	defer cancel()
	return conn.Ping(ctx)
}
