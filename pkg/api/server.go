// Package api provides the REST and WebSocket server for virtualkemper
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/james-see/virtualkemper/pkg/kemper/devices"
	"github.com/james-see/virtualkemper/pkg/runner"
	"github.com/james-see/virtualkemper/pkg/trace"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title VirtualKemper API
// @version 1.0
// @description API for inspecting and driving a virtual Kemper device
// @host localhost:8080
// @BasePath /api/v1

// Server serves the API for one runner
type Server struct {
	runner  *runner.Runner
	metrics http.Handler
	logger  *zap.Logger
	engine  *gin.Engine
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves h on /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewServer creates the router
func NewServer(r *runner.Runner, opts ...Option) *Server {
	s := &Server{runner: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.requestLogger())

	// CORS middleware
	e.Use(corsMiddleware())

	// Health check
	e.GET("/health", healthCheck)

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/state", s.getState)
		v1.GET("/parameters", s.listParameters)
		v1.PUT("/parameters/:key", s.setParameter)
		v1.POST("/messages", s.postMessage)
		v1.POST("/describe", s.describeMessage)
		v1.GET("/devices", listDevices)
		v1.GET("/stream", s.stream)
	}

	if s.metrics != nil {
		e.GET("/metrics", gin.WrapH(s.metrics))
	}

	// Swagger docs
	e.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.engine = e
	return s
}

// StartServer serves the API for r on port until ctx is cancelled
func StartServer(ctx context.Context, port int, r *runner.Runner, opts ...Option) error {
	return NewServer(r, opts...).Run(ctx, fmt.Sprintf(":%d", port))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "virtualkemper",
	})
}

// getState godoc
// @Summary Device state
// @Description Returns connection state, active parameter set, lease and parameters
// @Tags device
// @Produce json
// @Success 200 {object} runner.Snapshot
// @Router /api/v1/state [get]
func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Snapshot())
}

// listParameters godoc
// @Summary List parameters
// @Description Returns every parameter in registration order
// @Tags device
// @Produce json
// @Success 200 {object} map[string][]runner.ParameterState
// @Router /api/v1/parameters [get]
func (s *Server) listParameters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"parameters": s.runner.Snapshot().Parameters})
}

type setParameterRequest struct {
	Value any `json:"value"`
}

// setParameter godoc
// @Summary Set a parameter value
// @Description Sets the parameter registered under key (e.g. nrpn:0:1, cc:47, pc). Parameters of the active set are pushed to the controller.
// @Tags device
// @Accept json
// @Produce json
// @Param key path string true "Key id"
// @Param body body setParameterRequest true "New value (number or string)"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/parameters/{key} [put]
func (s *Server) setParameter(c *gin.Context) {
	var req setParameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	v, err := jsonValue(req.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := s.runner.SetValue(c.Param("key"), v)
	switch {
	case errors.Is(err, kemper.ErrUnknownParameter):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   c.Param("key"),
		"value": v.Any(),
		"sent":  messagesJSON(sent),
	})
}

// jsonValue converts a decoded JSON value to a parameter value
func jsonValue(raw any) (kemper.Value, error) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return kemper.Value{}, fmt.Errorf("numeric value %v is not an integer", v)
		}
		return kemper.NumericValue(int(v)), nil
	case string:
		return kemper.TextValue(v), nil
	default:
		return kemper.Value{}, fmt.Errorf("value must be a number or a string")
	}
}

type messageRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// postMessage godoc
// @Summary Inject a MIDI message
// @Description Hands a message to the virtual device as if the controller had sent it
// @Tags device
// @Accept json
// @Produce json
// @Param body body messageRequest true "Message as hex"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/messages [post]
func (s *Server) postMessage(c *gin.Context) {
	msg, ok := bindMessage(c)
	if !ok {
		return
	}

	ev, matched, sent, err := s.runner.Inject(msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"matched": matched,
		"event":   eventJSON(ev),
		"sent":    messagesJSON(sent),
	})
}

// describeMessage godoc
// @Summary Describe a MIDI message
// @Description Classifies a message without changing the device
// @Tags device
// @Accept json
// @Produce json
// @Param body body messageRequest true "Message as hex"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]string
// @Router /api/v1/describe [post]
func (s *Server) describeMessage(c *gin.Context) {
	msg, ok := bindMessage(c)
	if !ok {
		return
	}
	ev, known := s.runner.Describe(msg)
	c.JSON(http.StatusOK, gin.H{"known": known, "event": eventJSON(ev)})
}

func bindMessage(c *gin.Context) ([]byte, bool) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return nil, false
	}
	msg, err := trace.ParseHex(req.Hex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return msg, true
}

func eventJSON(ev kemper.Event) gin.H {
	if ev.Name == "" {
		return nil
	}
	return gin.H{"name": ev.Name, "value": ev.Value.Any(), "request": ev.Request, "text": ev.String()}
}

func messagesJSON(msgs []kemper.Message) []gin.H {
	out := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, gin.H{"label": m.Label, "hex": trace.FormatHex(m.Data)})
	}
	return out
}

// listDevices godoc
// @Summary List built-in devices
// @Description Returns the built-in virtual device catalogs
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]any
// @Router /api/v1/devices [get]
func listDevices(c *gin.Context) {
	var list []gin.H
	for _, p := range devices.All() {
		list = append(list, gin.H{"id": p.ID(), "name": p.Name(), "product_type": p.ProductType()})
	}
	c.JSON(http.StatusOK, gin.H{"devices": list})
}

// stream godoc
// @Summary Live traffic
// @Description WebSocket stream of all messages seen by the virtual device
// @Tags device
// @Router /api/v1/stream [get]
func (s *Server) stream(c *gin.Context) {
	// subscribe first so nothing sent after the handshake completes is lost
	sub := s.runner.Subscribe(64)
	defer s.runner.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	// The reader only detects the client going away
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
		case t, ok := <-sub:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(t); err != nil {
				return
			}
		}
	}
}
