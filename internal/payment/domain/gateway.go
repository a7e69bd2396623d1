package domain

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type CustomerDetails struct {
	CustomerID string
	Name       string
	Email      string
	Phone      string
}

type CreateOrderRequest struct {
	OrderID   string
	Amount    float64
	Currency  string
	Customer  CustomerDetails
	ReturnURL string
	NotifyURL string
	Note      string
}

// Session is what the browser needs to open the hosted checkout.
type Session struct {
	OrderID          string     `json:"order_id"`
	GatewayOrderID   string     `json:"gateway_order_id"`
	PaymentSessionID string     `json:"payment_session_id"`
	OrderStatus      string     `json:"order_status"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

type GatewayOrder struct {
	OrderID        string
	GatewayOrderID string
	Amount         float64
	Currency       string
	Status         string
	CreatedAt      *time.Time
}

type GatewayPayment struct {
	PaymentID   string
	Status      string
	Amount      float64
	Currency    string
	Method      string
	Message     string
	PaymentTime *time.Time
}

// Gateway order and payment states as reported by the provider.
const (
	OrderStatusActive     = "ACTIVE"
	OrderStatusPaid       = "PAID"
	OrderStatusExpired    = "EXPIRED"
	OrderStatusTerminated = "TERMINATED"

	PaymentStatusSuccess     = "SUCCESS"
	PaymentStatusFailed      = "FAILED"
	PaymentStatusUserDropped = "USER_DROPPED"
	PaymentStatusCancelled   = "CANCELLED"
	PaymentStatusPending     = "PENDING"
)

// OrderDetails is the normalized pull-verification view of an order.
type OrderDetails struct {
	OrderID       string     `json:"order_id"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	OrderStatus   string     `json:"order_status"`
	PaymentStatus string     `json:"payment_status,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	PaymentTime   *time.Time `json:"payment_time,omitempty"`
	PaymentID     string     `json:"payment_id,omitempty"`
}

type GatewayClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Session, error)
	GetOrder(ctx context.Context, orderID string) (*GatewayOrder, error)
	ListPayments(ctx context.Context, orderID string) ([]GatewayPayment, error)
}

type GatewayErrorKind string

const (
	GatewayErrorValidation     GatewayErrorKind = "validation"
	GatewayErrorAuthentication GatewayErrorKind = "authentication"
	GatewayErrorNotFound       GatewayErrorKind = "not_found"
	GatewayErrorUnavailable    GatewayErrorKind = "unavailable"
)

// GatewayError is a failed gateway call. errors.Is matches it against the
// ErrGateway* sentinels and ErrOrderNotFound according to Kind.
type GatewayError struct {
	Kind       GatewayErrorKind
	StatusCode int
	Code       string
	Message    string
}

func NewGatewayError(statusCode int, code, message string) *GatewayError {
	return &GatewayError{
		Kind:       kindForStatus(statusCode),
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

func kindForStatus(statusCode int) GatewayErrorKind {
	switch statusCode {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return GatewayErrorValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return GatewayErrorAuthentication
	case http.StatusNotFound:
		return GatewayErrorNotFound
	default:
		return GatewayErrorUnavailable
	}
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("gateway %s (%d %s): %s", e.Kind, e.StatusCode, e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	switch e.Kind {
	case GatewayErrorValidation:
		return ErrGatewayValidation
	case GatewayErrorAuthentication:
		return ErrGatewayAuthentication
	case GatewayErrorNotFound:
		return ErrOrderNotFound
	default:
		return ErrGatewayUnavailable
	}
}
