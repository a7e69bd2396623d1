package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
)

type ReconcileSource string

const (
	SourceWebhook      ReconcileSource = "webhook"
	SourceVerification ReconcileSource = "verification"
)

type ReconcileRequest struct {
	OrderID   string
	Target    donationdomain.Status
	PaymentID string
	Source    ReconcileSource
}

type ReconcileResult string

const (
	ResultApplied  ReconcileResult = "applied"
	ResultNoop     ReconcileResult = "noop"
	ResultNotFound ReconcileResult = "not_found"
	ResultRejected ReconcileResult = "rejected"
)

const (
	ReasonDuplicate         = "duplicate"
	ReasonOutOfOrder        = "out_of_order"
	ReasonIllegalTransition = "illegal_transition"
)

type ReconcileOutcome struct {
	Result         ReconcileResult       `json:"result"`
	DonationID     snowflake.ID          `json:"donation_id,omitempty"`
	OrderID        string                `json:"order_id"`
	PreviousStatus donationdomain.Status `json:"previous_status,omitempty"`
	Status         donationdomain.Status `json:"status,omitempty"`
	Updated        bool                  `json:"updated"`
	Reason         string                `json:"reason,omitempty"`
}

type WebhookOutcome struct {
	Provider  string
	EventType string
	OrderID   string
	Ignored   bool
	Reconcile *ReconcileOutcome
}

// Label is the low-cardinality outcome name used in logs, metrics and the audit log.
func (o WebhookOutcome) Label() string {
	if o.Ignored {
		return "ignored"
	}
	if o.Reconcile == nil {
		return "unknown"
	}
	return string(o.Reconcile.Result)
}

// VerifyResult is the outcome of a pull verification that may have fed the engine.
type VerifyResult struct {
	Details  *OrderDetails          `json:"details"`
	Target   *donationdomain.Status `json:"target,omitempty"`
	Outcome  *ReconcileOutcome      `json:"outcome,omitempty"`
	Verified bool                   `json:"verified"`
}

type ReconcileService interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileOutcome, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (WebhookOutcome, error)
}

type OrderStatusService interface {
	Verify(ctx context.Context, orderID string) (*OrderDetails, error)
	Reconcile(ctx context.Context, orderID string) (*VerifyResult, error)
}

var (
	ErrInvalidProvider   = errors.New("invalid_provider")
	ErrProviderNotFound  = errors.New("provider_not_found")
	ErrInvalidConfig     = errors.New("invalid_config")
	ErrInvalidSignature  = errors.New("invalid_signature")
	ErrInvalidPayload    = errors.New("invalid_payload")
	ErrInvalidEvent      = errors.New("invalid_event")
	ErrInvalidOrderID    = errors.New("invalid_order_id")
	ErrInvalidTarget     = errors.New("invalid_target_status")
	ErrConcurrentUpdate  = errors.New("concurrent_update")
	ErrGatewayNotEnabled = errors.New("gateway_not_configured")

	ErrGatewayValidation     = errors.New("gateway_validation_error")
	ErrGatewayAuthentication = errors.New("gateway_authentication_error")
	ErrOrderNotFound         = errors.New("gateway_order_not_found")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
)
