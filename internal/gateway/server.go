package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/robz323/alcancia-digital/internal/agent"
	"github.com/robz323/alcancia-digital/pkg/config"
	"github.com/robz323/alcancia-digital/pkg/logger"
	"github.com/robz323/alcancia-digital/pkg/ratelimit"
)

// messageReply is what POST /api/messages returns: whether anything matched,
// the structured result, and every response text emitted while handling.
type messageReply struct {
	Handled   bool         `json:"handled"`
	Result    agent.Result `json:"result"`
	Responses []string     `json:"responses"`
}

// Server is the chat transport: HTTP for request/response clients and a
// websocket endpoint for bidirectional ones.
type Server struct {
	cfg        config.GatewayConfig
	dispatcher agent.Dispatcher
	emitter    *Emitter
	limiter    *ratelimit.Keyed
	upgrader   websocket.Upgrader
	httpSrv    *http.Server
}

func NewServer(cfg config.GatewayConfig, dispatcher agent.Dispatcher) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		emitter:    NewEmitter(cfg.WebhookURL),
		limiter:    ratelimit.NewKeyed(cfg.RatePerMinute, time.Minute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The gateway sits behind the operator's own ingress.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/api/messages", s.handleMessage)
	r.GET("/ws", s.handleWebsocket)

	return r
}

// Run blocks serving HTTP until Shutdown.
func (s *Server) Run() error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.router(),
	}
	logger.Infof("[gateway] listening on %s", s.cfg.ListenAddr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleMessage(c *gin.Context) {
	var msg agent.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message payload"})
		return
	}
	// Per-entity rate limit so one noisy user cannot starve the rest.
	if !s.limiter.Allow(msg.EntityID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	reply := s.process(c.Request.Context(), msg)
	c.JSON(http.StatusOK, reply)
}

// process normalizes the inbound message, dispatches it once, and collects
// everything emitted.
func (s *Server) process(ctx context.Context, msg agent.Message) messageReply {
	if msg.Source == "" {
		msg.Source = s.cfg.Source
	}
	// The action guard keys on message identity; give transports that do not
	// supply one a server-side id.
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	var mu sync.Mutex
	responses := make([]string, 0, 1)
	emit := func(text string) {
		mu.Lock()
		responses = append(responses, text)
		mu.Unlock()
		s.emitter.Emit(ctx, msg.EntityID, msg.RoomID, text)
	}

	result, handled := s.dispatcher.Dispatch(ctx, msg, emit)

	mu.Lock()
	defer mu.Unlock()
	return messageReply{Handled: handled, Result: result, Responses: responses}
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("[gateway] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Writes are serialized; dispatch runs on this read loop goroutine.
	var writeMu sync.Mutex
	for {
		var msg agent.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("[gateway] websocket read failed: %v", err)
			}
			return
		}

		reply := s.processWS(c.Request.Context(), msg, conn, &writeMu)
		writeMu.Lock()
		err = conn.WriteJSON(reply)
		writeMu.Unlock()
		if err != nil {
			logger.Warnf("[gateway] websocket write failed: %v", err)
			return
		}
	}
}

func (s *Server) processWS(ctx context.Context, msg agent.Message, conn *websocket.Conn, writeMu *sync.Mutex) messageReply {
	if !s.limiter.Allow(msg.EntityID) {
		return messageReply{
			Handled:   false,
			Result:    agent.Result{Success: false, Data: map[string]any{"rate_limited": true}},
			Responses: []string{},
		}
	}
	if msg.Source == "" {
		msg.Source = s.cfg.Source
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	var mu sync.Mutex
	responses := make([]string, 0, 1)
	emit := func(text string) {
		mu.Lock()
		responses = append(responses, text)
		mu.Unlock()

		writeMu.Lock()
		werr := conn.WriteJSON(outboundResponse{EntityID: msg.EntityID, RoomID: msg.RoomID, Text: text})
		writeMu.Unlock()
		if werr != nil {
			logger.Warnf("[gateway] websocket emit failed: %v", werr)
		}
		s.emitter.Emit(ctx, msg.EntityID, msg.RoomID, text)
	}

	result, handled := s.dispatcher.Dispatch(ctx, msg, emit)

	mu.Lock()
	defer mu.Unlock()
	return messageReply{Handled: handled, Result: result, Responses: responses}
}
