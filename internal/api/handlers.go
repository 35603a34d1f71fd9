package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"binance-signal-engine/internal/auth"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.botAPI.IsRunning(),
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": s.authService.TokenDuration(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	stats := s.botAPI.Statistics()
	c.JSON(http.StatusOK, gin.H{
		"running":      s.botAPI.IsRunning(),
		"lastScanAt":   s.botAPI.LastScanAt(),
		"dailySignals": stats.DailySignals,
		"maxDaily":     stats.MaxDaily,
		"totalSignals": stats.TotalSignals,
		"lastSignalAt": stats.LastSignalAt,
	})
}

func (s *Server) handleStart(c *gin.Context) {
	if err := s.botAPI.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.botAPI.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (s *Server) handleScanNow(c *gin.Context) {
	if err := s.botAPI.ScanNow(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scan triggered"})
}

// handleSignals serves persisted signals when a database is configured,
// otherwise the in-memory engine history.
func (s *Server) handleSignals(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	symbol := c.Query("symbol")

	if s.repo != nil {
		records, err := s.repo.ListSignals(c.Request.Context(), symbol, limit)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to list signals")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"signals": records, "count": len(records)})
		return
	}

	signals := s.botAPI.History(limit)
	if symbol != "" {
		filtered := signals[:0]
		for _, sig := range signals {
			if sig.Symbol == symbol {
				filtered = append(filtered, sig)
			}
		}
		signals = filtered
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Statistics())
}

func (s *Server) handleRegime(c *gin.Context) {
	symbol := c.Param("symbol")
	cls, err := s.botAPI.Regime(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cls)
}

func (s *Server) handleAnomaly(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.AnomalyScore(c.Request.Context(), c.Param("symbol")))
}

func (s *Server) handleSentiment(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Sentiment(c.Request.Context()))
}

func (s *Server) handlePortfolio(c *gin.Context) {
	c.JSON(http.StatusOK, s.botAPI.Portfolio())
}

func (s *Server) handleMarkets(c *gin.Context) {
	n := intQuery(c, "limit", 30)
	c.JSON(http.StatusOK, gin.H{"markets": s.botAPI.TopMarkets(n)})
}

type testSignalRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

// handleTestSignal runs one decision for a symbol without recording it
// against the daily cap.
func (s *Server) handleTestSignal(c *gin.Context) {
	var req testSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	sig, err := s.botAPI.TestSignal(c.Request.Context(), req.Symbol)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"signal": nil, "reason": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signal": sig})
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
