package cashfree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/seva/internal/observability/context"
	"github.com/smallbiznis/seva/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// error bodies beyond this are truncated before decoding
const maxErrorBody = 64 << 10

// Client talks to the Cashfree PG REST API.
type Client struct {
	baseURL    string
	appID      string
	secretKey  string
	apiVersion string
	http       *http.Client
	observe    func(ctx context.Context, operation string, statusCode int, elapsed time.Duration)
	log        *zap.Logger
}

func (c *Client) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (*paymentdomain.Session, error) {
	body := createOrderRequest{
		OrderID:       req.OrderID,
		OrderAmount:   req.Amount,
		OrderCurrency: req.Currency,
		CustomerDetails: customerDetails{
			CustomerID:    req.Customer.CustomerID,
			CustomerName:  req.Customer.Name,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
		},
		OrderMeta: orderMeta{
			ReturnURL: req.ReturnURL,
			NotifyURL: req.NotifyURL,
		},
		OrderNote: req.Note,
	}

	var resp orderResponse
	if err := c.do(ctx, "create_order", http.MethodPost, "/pg/orders", body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.PaymentSessionID) == "" {
		return nil, &paymentdomain.GatewayError{
			Kind:       paymentdomain.GatewayErrorUnavailable,
			StatusCode: http.StatusOK,
			Message:    "order created without payment_session_id",
		}
	}

	return &paymentdomain.Session{
		OrderID:          firstNonEmpty(resp.OrderID, req.OrderID),
		GatewayOrderID:   resp.CfOrderID.String(),
		PaymentSessionID: resp.PaymentSessionID,
		OrderStatus:      resp.OrderStatus,
		ExpiresAt:        parseOptionalTime(resp.OrderExpiryTime),
	}, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*paymentdomain.GatewayOrder, error) {
	var resp orderResponse
	if err := c.do(ctx, "get_order", http.MethodGet, "/pg/orders/"+url.PathEscape(orderID), nil, &resp); err != nil {
		return nil, err
	}
	return &paymentdomain.GatewayOrder{
		OrderID:        firstNonEmpty(resp.OrderID, orderID),
		GatewayOrderID: resp.CfOrderID.String(),
		Amount:         resp.OrderAmount,
		Currency:       resp.OrderCurrency,
		Status:         strings.ToUpper(strings.TrimSpace(resp.OrderStatus)),
		CreatedAt:      parseOptionalTime(resp.CreatedAt),
	}, nil
}

func (c *Client) ListPayments(ctx context.Context, orderID string) ([]paymentdomain.GatewayPayment, error) {
	var resp []paymentResponse
	if err := c.do(ctx, "list_payments", http.MethodGet, "/pg/orders/"+url.PathEscape(orderID)+"/payments", nil, &resp); err != nil {
		return nil, err
	}

	payments := make([]paymentdomain.GatewayPayment, 0, len(resp))
	for _, p := range resp {
		payments = append(payments, paymentdomain.GatewayPayment{
			PaymentID:   p.CfPaymentID.String(),
			Status:      strings.ToUpper(strings.TrimSpace(p.PaymentStatus)),
			Amount:      p.PaymentAmount,
			Currency:    p.PaymentCurrency,
			Method:      p.PaymentGroup,
			Message:     p.PaymentMessage,
			PaymentTime: parseOptionalTime(p.PaymentTime),
		})
	}
	return payments, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	ctx, span := otel.Tracer("seva/gateway").Start(ctx, "cashfree."+operation, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("payment.provider", ProviderName),
		attribute.String("payment.operation", operation),
	)...)
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, operation+" failed")
		}
		span.End()
	}()

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-client-id", c.appID)
	req.Header.Set("x-client-secret", c.secretKey)
	req.Header.Set("x-api-version", c.apiVersion)
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("x-request-id", requestID)
	}
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(ctx, operation, 0, time.Since(start))
		c.log.Warn("gateway request failed", zap.String("operation", operation), zap.Error(err))
		return &paymentdomain.GatewayError{
			Kind:    paymentdomain.GatewayErrorUnavailable,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()
	c.record(ctx, operation, resp.StatusCode, time.Since(start))

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(raw, &apiErr)
		message := strings.TrimSpace(apiErr.Message)
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		c.log.Info("gateway rejected request",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code),
		)
		return paymentdomain.NewGatewayError(resp.StatusCode, apiErr.Code, message)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &paymentdomain.GatewayError{
			Kind:       paymentdomain.GatewayErrorUnavailable,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("decode %s response: %v", operation, err),
		}
	}
	return nil
}

func (c *Client) record(ctx context.Context, operation string, statusCode int, elapsed time.Duration) {
	if c.observe != nil {
		c.observe(ctx, operation, statusCode, elapsed)
	}
}

func parseOptionalTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t := parseEventTime(value, time.Time{})
	if t.IsZero() {
		return nil
	}
	return &t
}
