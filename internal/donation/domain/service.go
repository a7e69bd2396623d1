package domain

import (
	"context"
	"errors"
)

type CheckoutRequest struct {
	UserID     *string `json:"user_id,omitempty"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	DonorPhone string  `json:"donor_phone"`
}

type CheckoutResponse struct {
	DonationID       string `json:"donation_id"`
	OrderID          string `json:"order_id"`
	PaymentSessionID string `json:"payment_session_id"`
	Status           Status `json:"status"`
}

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
	GetByOrderID(ctx context.Context, orderID string) (*Donation, error)
}

var (
	ErrInvalidOrderID = errors.New("invalid_order_id")
	ErrNotFound       = errors.New("donation_not_found")
	ErrDuplicateOrder = errors.New("duplicate_order_id")
)
