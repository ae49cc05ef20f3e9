// Package status exposes a local read-only observability surface: session
// and connection state, counters, and a live event stream for UI clients.
// It never mutates the session.
package status

import (
	"log/slog"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/voicelink/go-voicelink/pkg/session"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pingPeriod keeps idle event streams alive through proxies.
	pingPeriod = 30 * time.Second
)

// Session is the read-only slice of the coordinator the server exposes.
type Session interface {
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Event, func())
}

// Stats aggregates the counters reported at /stats. The StatsFunc
// collaborator fills it on every request.
type Stats struct {
	Connection any `json:"connection"`
	Audio      any `json:"audio"`
}

// StatsFunc supplies the current counters.
type StatsFunc func() Stats

// Server is the local status server.
type Server struct {
	app    *fiber.App
	addr   string
	sess   Session
	stats  StatsFunc
	logger *slog.Logger
}

// NewServer builds the status server around a session.
func NewServer(addr string, sess Session, stats StatsFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:   addr,
		sess:   sess,
		stats:  stats,
		logger: logger.With("component", "status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicelink status",
		DisableStartupMessage: true,
	})

	// CORS for local dashboards
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/state", s.handleState)
	app.Get("/stats", s.handleStats)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync serves in the background.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the fiber app, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.sess.Snapshot())
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	if s.stats == nil {
		return c.JSON(Stats{})
	}
	return c.JSON(s.stats())
}

// handleEventsWS streams coordinator events to one UI client. The write
// side owns the connection; the read loop exists only to notice the
// client going away.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	events, cancel := s.sess.Subscribe()
	defer cancel()

	// Current state first so the client never renders blind
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(s.sess.Snapshot()); err != nil {
		conn.Close()
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
