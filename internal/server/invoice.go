package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

type submitResponse struct {
	Data    domain.SubmitResult `json:"data"`
	Warning string              `json:"warning,omitempty"`
}

type finalizeResponse struct {
	Data    domain.FinalizeResult `json:"data"`
	Warning string                `json:"warning,omitempty"`
}

func (s *Server) SubmitInvoice(c *gin.Context) {
	var req domain.SubmitInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.invoiceSvc.Submit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.LocalTracking != domain.LocalTrackingPersisted {
		status = http.StatusAccepted
	}
	c.JSON(status, submitResponse{Data: result, Warning: persistenceWarning(result.PersistenceErr)})
}

func (s *Server) ListInvoices(c *gin.Context) {
	q := newQueryReader(c)
	req := domain.ListInvoiceRequest{
		IFU:         q.raw("ifu"),
		Search:      strings.TrimSpace(c.DefaultQuery("search", c.Query("q"))),
		PageToken:   q.raw("page_token"),
		CreatedFrom: q.Date("date_from", false),
		CreatedTo:   q.Date("date_to", true),
	}
	q.Int("page_size", &req.PageSize)

	if raw := q.raw("status"); raw != "" {
		if status, ok := domain.ParseStatus(raw); ok {
			req.Status = &status
		} else {
			q.fail("status", "invalid_status", "invalid status")
		}
	}
	if raw := q.raw("type"); raw != "" {
		if kind, ok := domain.ParseInvoiceKind(raw); ok {
			req.Kind = &kind
		} else {
			q.fail("type", "invalid_type", "invalid invoice type")
		}
	}

	if err := q.Err(); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetInvoiceByUID(c *gin.Context) {
	item, err := s.invoiceSvc.GetByUID(c.Request.Context(), c.Param("uid"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) GetInvoiceReceipt(c *gin.Context) {
	item, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.renderer.RenderReceipt(item)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="facture-%s.pdf"`, item.UID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) GetPendingInvoice(c *gin.Context) {
	details, err := s.invoiceSvc.PendingDetails(c.Request.Context(), c.Param("uid"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) FinalizeInvoice(c *gin.Context) {
	s.finalize(c, s.invoiceSvc.Finalize)
}

func (s *Server) RetryFinalizeInvoice(c *gin.Context) {
	s.finalize(c, s.invoiceSvc.RetryFinalize)
}

func (s *Server) finalize(c *gin.Context, fn func(context.Context, domain.FinalizeRequest) (domain.FinalizeResult, error)) {
	result, err := fn(c.Request.Context(), domain.FinalizeRequest{
		UID:    c.Param("uid"),
		Action: domain.FinalizeAction(c.Param("action")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, finalizeResponse{Data: result, Warning: persistenceWarning(result.PersistenceErr)})
}

func persistenceWarning(err error) string {
	if err == nil {
		return ""
	}
	return "accepted by e-MECeF but not recorded locally: " + err.Error()
}
