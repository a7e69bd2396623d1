package cashfree

import (
	"bytes"
	"encoding/json"
	"strings"
)

// flexID accepts ids sent either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

type webhookBody struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order   *webhookOrder   `json:"order"`
		Payment *webhookPayment `json:"payment"`
		Refund  *webhookRefund  `json:"refund"`
	} `json:"data"`
}

type webhookOrder struct {
	OrderID       string  `json:"order_id"`
	OrderAmount   float64 `json:"order_amount"`
	OrderCurrency string  `json:"order_currency"`
}

type webhookPayment struct {
	CfPaymentID     flexID  `json:"cf_payment_id"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentAmount   float64 `json:"payment_amount"`
	PaymentCurrency string  `json:"payment_currency"`
	PaymentMessage  string  `json:"payment_message"`
	PaymentTime     string  `json:"payment_time"`
	PaymentGroup    string  `json:"payment_group"`
}

type webhookRefund struct {
	CfRefundID     flexID  `json:"cf_refund_id"`
	CfPaymentID    flexID  `json:"cf_payment_id"`
	RefundID       string  `json:"refund_id"`
	OrderID        string  `json:"order_id"`
	RefundAmount   float64 `json:"refund_amount"`
	RefundCurrency string  `json:"refund_currency"`
	RefundStatus   string  `json:"refund_status"`
}

type createOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
	OrderNote       string          `json:"order_note,omitempty"`
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type orderResponse struct {
	CfOrderID        flexID  `json:"cf_order_id"`
	OrderID          string  `json:"order_id"`
	OrderAmount      float64 `json:"order_amount"`
	OrderCurrency    string  `json:"order_currency"`
	OrderStatus      string  `json:"order_status"`
	PaymentSessionID string  `json:"payment_session_id"`
	OrderExpiryTime  string  `json:"order_expiry_time"`
	CreatedAt        string  `json:"created_at"`
}

type paymentResponse struct {
	CfPaymentID     flexID  `json:"cf_payment_id"`
	OrderID         string  `json:"order_id"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentAmount   float64 `json:"payment_amount"`
	PaymentCurrency string  `json:"payment_currency"`
	PaymentMessage  string  `json:"payment_message"`
	PaymentTime     string  `json:"payment_time"`
	PaymentGroup    string  `json:"payment_group"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}
