// Package api is the REST edge: a thin gin layer translating HTTP requests
// into exchange.Facade/account.Manager calls and typed errors into the
// stable {code,msg} envelope.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"exchange-core/internal/account"
	"exchange-core/internal/exchange"
)

// Server wires the gin engine to the exchange facade and account manager.
type Server struct {
	Router    *gin.Engine
	Exchange  *exchange.Facade
	Accounts  *account.Manager
	JWTSecret string
	StartedAt time.Time
}

// NewServer builds the gin engine with the middleware stack and routes
// registered. Call Start to begin listening.
func NewServer(ex *exchange.Facade, accounts *account.Manager, jwtSecret string) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Exchange:  ex,
		Accounts:  accounts,
		JWTSecret: jwtSecret,
		StartedAt: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	v3 := s.Router.Group("/api/v3")
	{
		v3.GET("/ping", s.ping)
		v3.GET("/time", s.serverTime)
		v3.GET("/exchangeInfo", s.exchangeInfo)
		v3.GET("/depth", s.depth)
		v3.GET("/ticker/price", s.ticker)
		v3.GET("/klines", s.klinesHandler)
		v3.GET("/metrics", s.metrics)

		auth := v3.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		protected := v3.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret, s.Accounts))
		{
			protected.POST("/apikey", s.createAPIKey)
			protected.POST("/order", s.placeOrder)
			protected.POST("/order/test", s.testOrder)
			protected.DELETE("/order", s.cancelOrder)
			protected.GET("/order", s.getOrder)
			protected.GET("/account", s.accountInfo)
			protected.GET("/openOrders", s.openOrders)
			protected.GET("/myTrades", s.myTrades)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start begins listening on addr, blocking until the server stops.
func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
