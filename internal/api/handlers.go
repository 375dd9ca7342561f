package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"meridian/internal/store"
)

// Holdings is the response of GET /api/v1/holdings.
type Holdings struct {
	Time       time.Time          `json:"time"`
	Cash       float64            `json:"cash"`
	Commission float64            `json:"commission"`
	Total      float64            `json:"total"`
	Values     map[string]float64 `json:"values"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Status())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.Positions()})
}

func (s *Server) handleHoldings(c *gin.Context) {
	st := s.monitor.Status()
	h := Holdings{
		Time:       st.Time,
		Cash:       st.Cash,
		Commission: st.Commission,
		Total:      st.Total,
		Values:     make(map[string]float64),
	}
	for _, p := range s.monitor.Positions() {
		h.Values[p.Symbol] = p.Value
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) handleEquity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.Equity()})
}

func (s *Server) handleOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.Orders()})
}

func (s *Server) handleFills(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitor.Fills()})
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no journal configured"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.journal.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("list runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list runs failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) handleRun(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no journal configured"})
		return
	}
	run, err := s.journal.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.journalError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleRunEquity(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no journal configured"})
		return
	}
	id := c.Param("id")
	if _, err := s.journal.GetRun(c.Request.Context(), id); err != nil {
		s.journalError(c, err)
		return
	}
	rows, err := s.journal.ListEquity(c.Request.Context(), id)
	if err != nil {
		s.journalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) journalError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.log.Error("journal query", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "journal query failed"})
}
