package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/emecf/catalog"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

type errorCodeResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) GetReferenceData(c *gin.Context) {
	kind, ok := domain.ParseInfoKind(c.Param("kind"))
	if !ok {
		AbortWithError(c, domain.ErrInvalidInfoKind)
		return
	}

	data, err := s.refData.Info(c.Request.Context(), kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) GetTaxpayer(c *gin.Context) {
	data, err := s.refData.Taxpayer(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func (s *Server) ListErrorCodes(c *gin.Context) {
	codes := catalog.Codes()
	resp := make([]errorCodeResponse, 0, len(codes))
	for _, code := range codes {
		resp = append(resp, errorCodeResponse{Code: code, Message: catalog.Message(code)})
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
