// Package api exposes an operational HTTP status endpoint for the chat
// server.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cipherchat/cipherchat/pkg/network"
)

// Server is the HTTP status API
type Server struct {
	chat       *network.Server
	router     *gin.Engine
	port       int
	httpServer *http.Server
}

// StatsResponse wraps a stats snapshot
type StatsResponse struct {
	Success bool          `json:"success"`
	Stats   network.Stats `json:"stats"`
}

// NewServer creates the status API around a running chat server
func NewServer(chat *network.Server, port int) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		chat:   chat,
		router: router,
		port:   port,
	}

	router.GET("/health", s.handleHealth)

	v1 := router.Group("/api/v1")
	{
		node := v1.Group("/node")
		{
			node.GET("/stats", s.handleStats)
		}
	}

	return s
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, StatsResponse{
		Success: true,
		Stats:   s.chat.Stats(),
	})
}

// Router exposes the gin engine (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
