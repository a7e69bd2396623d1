package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seva/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"github.com/smallbiznis/seva/internal/payment/webhook"
	"go.uber.org/zap"
)

const (
	maxWebhookBodyBytes = 1 << 20
	headerWebhookStatus = "X-Webhook-Status"
	webhookOutcomeKey   = "webhook_outcome"
)

// HandlePaymentWebhook always answers with {"success": bool, ...}. The gateway
// retries on any non-2xx, so only signature, shape and infrastructure failures
// leave the 2xx range.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.writeWebhookError(c, paymentdomain.ErrInvalidPayload)
		return
	}

	outcome, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		s.writeWebhookError(c, err)
		return
	}

	c.Set(webhookOutcomeKey, outcome.Label())
	c.JSON(http.StatusOK, webhookResponse(outcome))
}

func webhookResponse(outcome paymentdomain.WebhookOutcome) gin.H {
	if outcome.Ignored {
		return gin.H{"success": true, "ignored": true, "event_type": outcome.EventType}
	}
	result := outcome.Reconcile
	if result == nil {
		return gin.H{"success": true}
	}
	if result.Result == paymentdomain.ResultNotFound {
		return gin.H{"success": true, "not_found": true, "order_id": result.OrderID}
	}

	body := gin.H{
		"success":    true,
		"order_id":   result.OrderID,
		"new_status": result.Status,
		"updated":    result.Updated,
	}
	if result.Reason != "" {
		body["reason"] = result.Reason
	}
	return body
}

func (s *Server) writeWebhookError(c *gin.Context, err error) {
	status := webhook.StatusCode(err)
	code := "internal_error"
	switch {
	case status == http.StatusInternalServerError:
		logger.FromContext(c.Request.Context()).Error("webhook failed", zap.Error(err))
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		code = "invalid_signature"
	case errors.Is(err, paymentdomain.ErrProviderNotFound), errors.Is(err, paymentdomain.ErrInvalidProvider):
		code = "provider_not_found"
	case errors.Is(err, paymentdomain.ErrInvalidEvent):
		code = "invalid_event"
	default:
		code = "invalid_payload"
	}

	c.Set(webhookOutcomeKey, code)
	c.JSON(status, gin.H{"success": false, "error": code})
}

func (s *Server) PaymentWebhookStatus(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if !s.adapters.ProviderExists(provider) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "provider_not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    "ok",
		"provider":  provider,
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) PaymentWebhookHead(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if !s.adapters.ProviderExists(provider) {
		c.Header(headerWebhookStatus, "provider_not_found")
		c.Status(http.StatusNotFound)
		return
	}
	c.Header(headerWebhookStatus, "ok")
	c.Status(http.StatusOK)
}

func (s *Server) PaymentWebhookPreflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, GET, HEAD, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, x-webhook-signature, x-webhook-timestamp, x-webhook-version")
	c.Header("Access-Control-Max-Age", "86400")
	c.Status(http.StatusNoContent)
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
