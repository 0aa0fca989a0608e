package v16

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the OCPP 1.6 central system. It owns one WebSocket listener
// shared by chargers and the operator UI, a fixed slot registry, and the
// telemetry sinks.
type Server struct {
	cfg      *config.Config
	registry *Registry
	store    ports.TelemetryRepository
	events   queue.MessageQueue
	log      *zap.Logger

	httpServer *http.Server
}

// NewServer creates the central system. events may be nil when the message
// queue is disabled.
func NewServer(cfg *config.Config, store ports.TelemetryRepository, events queue.MessageQueue, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cfg.OCPP.MaxChargers, cfg.OCPP.NumConnectors),
		store:    store,
		events:   events,
		log:      log,
	}
}

// Registry exposes the session table for the ops endpoints.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start runs the WebSocket listener until Stop is called. It blocks.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	s.log.Info("Starting OCPP 1.6 central system",
		zap.String("addr", addr),
		zap.Int("max_chargers", s.cfg.OCPP.MaxChargers),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the listener down and lets in-flight handlers finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("OCPP 1.6 central system stopping")
	return s.httpServer.Shutdown(ctx)
}

// wsConn serializes writes to one WebSocket connection. The charger reader,
// the operator goroutine and the snapshot pushers all write concurrently;
// gorilla/websocket allows a single writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket owns one connection for its whole life. Every client is
// seated in a charger slot on arrival; the operator UI is told apart only
// by its hello message, which reseats it in slot 0.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	conn := &wsConn{conn: raw}

	// When every charger slot is occupied the connection stays open but
	// unslotted: the operator UI announces itself over the same endpoint
	// and must get through at full capacity. Charger frames from an
	// unslotted connection close it.
	if sess := s.registry.Attach(conn); sess != nil {
		telemetry.ConnectedChargers.Set(float64(s.registry.Connected()))
		s.log.Info("Client connected",
			zap.String("remote", r.RemoteAddr),
			zap.Int("charger_id", sess.ChargerID),
		)
	} else {
		s.log.Warn("All charger slots occupied, connection left unslotted",
			zap.String("remote", r.RemoteAddr),
		)
	}

	defer func() {
		raw.Close()
		s.handleDisconnect(conn)
	}()

	operator := false
	for {
		_, message, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Error("WebSocket read error", zap.Error(err))
			}
			return
		}

		text := string(message)
		switch {
		case text == operatorHello:
			s.handleOperatorHello(conn)
			telemetry.ConnectedChargers.Set(float64(s.registry.Connected()))
			operator = true
		case operator || strings.HasPrefix(text, operatorPrefix+":"):
			s.handleOperatorCommand(text)
		default:
			sess := s.registry.ByConn(conn)
			if sess == nil {
				return
			}
			s.dispatch(sess, message)
		}
	}
}

// handleDisconnect frees the slot held by conn and, for chargers, tells the
// operator UI the slot went dark.
func (s *Server) handleDisconnect(conn Conn) {
	sess := s.registry.Detach(conn)
	if sess == nil {
		return
	}
	telemetry.ConnectedChargers.Set(float64(s.registry.Connected()))
	s.log.Info("Client disconnected", zap.Int("charger_id", sess.ChargerID))

	if sess.ChargerID == 0 {
		return
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.pushDisconnectSnapshots(sess)
}
