// Package api exposes the relayer's REST and WebSocket surface.
package api

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/orderbook"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/schema"
	"github.com/krishishah/0xygen-Relay-sub000/internal/relay/service"
	"github.com/krishishah/0xygen-Relay-sub000/internal/ws"
	"github.com/krishishah/0xygen-Relay-sub000/pkg/errors"
)

// Server represents the API server
type Server struct {
	router *gin.Engine
	logger *zap.Logger
	orders *service.OrderService
	book   *orderbook.Engine
	hub    *ws.Hub
}

// NewServer creates the API server with injected collaborators.
func NewServer(logger *zap.Logger, orders *service.OrderService, book *orderbook.Engine, hub *ws.Hub, allowedOrigins []string) *Server {
	s := &Server{
		logger: logger,
		orders: orders,
		book:   book,
		hub:    hub,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	s.router = router
	s.registerRoutes()
	return s
}

// Start starts the API server
func (s *Server) Start(addr string) error {
	s.logger.Info("starting API server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Router returns the internal gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	v0 := s.router.Group("/v0")
	{
		v0.POST("/order", s.postOrder)
		v0.GET("/order/:orderHash", s.getOrder)
		v0.GET("/orders", s.listOrders)
		v0.GET("/orderbook", s.getOrderbook)
		v0.GET("/token_pairs", s.getTokenPairs)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// postOrder ingests a signed order submission.
func (s *Server) postOrder(c *gin.Context) {
	var wire schema.SignedOrderSchema
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON payload"})
		return
	}
	order, err := schema.SignedOrderFromWire(&wire)
	if err != nil {
		s.writeError(c, err)
		return
	}
	enriched, err := s.orders.PostOrder(c.Request.Context(), order)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, schema.EnrichedOrderToWire(enriched))
}

// getOrder returns one enriched order by hash.
func (s *Server) getOrder(c *gin.Context) {
	raw := c.Param("orderHash")
	if len(raw) != 2+2*common.HashLength || raw[:2] != "0x" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderHash must be a 32-byte hex value"})
		return
	}
	order, err := s.orders.GetOrder(c.Request.Context(), common.HexToHash(raw))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.EnrichedOrderToWire(order))
}

// listOrders returns every active order.
func (s *Server) listOrders(c *gin.Context) {
	orders, err := s.orders.ListOrders(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]schema.EnrichedOrderSchema, 0, len(orders))
	for _, o := range orders {
		out = append(out, schema.EnrichedOrderToWire(o))
	}
	c.JSON(http.StatusOK, out)
}

// getOrderbook returns the sorted bid/ask view for a token pair. An unknown
// pair yields empty sides, not an error.
func (s *Server) getOrderbook(c *gin.Context) {
	base := c.Query("baseTokenAddress")
	quote := c.Query("quoteTokenAddress")
	if !common.IsHexAddress(base) || !common.IsHexAddress(quote) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "baseTokenAddress and quoteTokenAddress must be hex addresses"})
		return
	}
	book, err := s.book.GetOrderbook(c.Request.Context(), common.HexToAddress(base), common.HexToAddress(quote))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, schema.OrderbookToWire(book))
}

// getTokenPairs returns the directional pairs with live orders.
func (s *Server) getTokenPairs(c *gin.Context) {
	pairs, err := s.orders.TokenPairs(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]schema.TokenPairSchema, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, schema.TokenPairSchema{
			MakerTokenAddress: p.MakerTokenAddress.Hex(),
			TakerTokenAddress: p.TakerTokenAddress.Hex(),
		})
	}
	c.JSON(http.StatusOK, out)
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		fieldErr  *errors.InvalidOrderFieldError
		deserErr  *errors.DeserializationError
		invalid   *errors.InvalidOrderError
		queryFail *errors.SettlementQueryError
	)
	switch {
	case errors.As(err, &fieldErr), errors.As(err, &deserErr), errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.As(err, &queryFail):
		s.logger.Warn("settlement backend unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settlement backend unavailable"})
	default:
		s.logger.Error("handler error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
