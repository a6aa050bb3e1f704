package api

import (
	"errors"
	"math/rand"
	"net/http"

	"github.com/airylvat/quizpoll-bot/db"
	"github.com/airylvat/quizpoll-bot/logging"
	"github.com/airylvat/quizpoll-bot/quiz"
	"github.com/gin-gonic/gin"
)

// ResultsController serves read-only views of the persisted leaderboard and
// results ledger.
type ResultsController struct {
	Store db.Store
	pick  func(n int) int
}

func NewResultsController(store db.Store) *ResultsController {
	return &ResultsController{Store: store, pick: rand.Intn}
}

func (rc *ResultsController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", rc.health)
	r.GET("/leaderboard", rc.leaderboard)
	r.GET("/winners", rc.winners)
	r.GET("/results", rc.results)
}

func (rc *ResultsController) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rc *ResultsController) leaderboard(c *gin.Context) {
	board, err := rc.Store.LoadLeaderboard(c.Request.Context())
	if err != nil {
		logging.Log.Errorf("API: failed to load leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "STORAGE_ERROR", "message": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, quiz.Ranked(board))
}

func (rc *ResultsController) winners(c *gin.Context) {
	board, err := rc.Store.LoadLeaderboard(c.Request.Context())
	if err != nil {
		logging.Log.Errorf("API: failed to load leaderboard: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "STORAGE_ERROR", "message": "failed to load leaderboard"})
		return
	}

	standings, err := quiz.TopWinners(board, rc.pick)
	if errors.Is(err, quiz.ErrNoData) {
		c.JSON(http.StatusNotFound, gin.H{"code": "NO_DATA", "message": "no quiz data"})
		return
	}
	c.JSON(http.StatusOK, standings)
}

func (rc *ResultsController) results(c *gin.Context) {
	rows, err := rc.Store.LoadResultRows(c.Request.Context())
	if err != nil {
		logging.Log.Errorf("API: failed to load results: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": "STORAGE_ERROR", "message": "failed to load results"})
		return
	}
	if rows == nil {
		rows = []db.ResultRow{}
	}
	c.JSON(http.StatusOK, rows)
}
