package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

func (s *Server) GetDashboardStats(c *gin.Context) {
	var req domain.StatsRequest

	q := newQueryReader(c)
	q.Int("months", &req.Months)
	q.Int("recent", &req.RecentLimit)
	if err := q.Err(); err != nil {
		AbortWithError(c, err)
		return
	}

	stats, err := s.invoiceSvc.Stats(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
