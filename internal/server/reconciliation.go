package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

func (s *Server) ListReconciliationTasks(c *gin.Context) {
	var req domain.ListReconciliationRequest

	q := newQueryReader(c)
	q.Bool("include_resolved", &req.IncludeResolved)
	q.Int("limit", &req.Limit)
	if err := q.Err(); err != nil {
		AbortWithError(c, err)
		return
	}

	tasks, err := s.invoiceSvc.ListReconciliationTasks(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (s *Server) ResolveReconciliationTask(c *gin.Context) {
	if err := s.invoiceSvc.ResolveReconciliationTask(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
