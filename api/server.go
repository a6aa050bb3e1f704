package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/gin-gonic/gin"
)

type Server struct {
	http *http.Server
}

func NewServer(addr string, store db.Store) *Server {
	r := NewRouter(gin.ReleaseMode)
	NewResultsController(store).RegisterRoutes(r)

	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	go func() {
		logging.Log.Infof("Starting read API on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Log.Errorf("Read API stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
