package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetOrderStatus(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))

	details, err := s.orderStatusSvc.Verify(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": details})
}

func (s *Server) ReconcileOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))

	result, err := s.orderStatusSvc.Reconcile(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
