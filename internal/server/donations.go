package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	donationdomain "github.com/smallbiznis/seva/internal/donation/domain"
)

type checkoutRequest struct {
	UserID     *string `json:"user_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	DonorName  string  `json:"donor_name"`
	DonorEmail string  `json:"donor_email"`
	DonorPhone string  `json:"donor_phone"`
}

func (s *Server) CreateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.donationSvc.Checkout(c.Request.Context(), donationdomain.CheckoutRequest{
		UserID:     req.UserID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		DonorName:  req.DonorName,
		DonorEmail: req.DonorEmail,
		DonorPhone: req.DonorPhone,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// donationStatusView is what the success page may see; donor contact details stay server-side.
type donationStatusView struct {
	DonationID     string     `json:"donation_id"`
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
	Amount         float64    `json:"amount"`
	Currency       string     `json:"currency"`
	DonorName      string     `json:"donor_name"`
	PaymentID      *string    `json:"payment_id,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Server) GetDonationByOrder(c *gin.Context) {
	orderID := strings.TrimSpace(c.Param("order_id"))

	donation, err := s.donationSvc.GetByOrderID(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": donationStatusView{
		DonationID:     donation.ID.String(),
		OrderID:        donation.GatewayOrderID,
		Status:         donation.PaymentStatus.String(),
		Amount:         donation.Amount,
		Currency:       donation.Currency,
		DonorName:      donation.DonorName,
		PaymentID:      donation.PaymentID,
		LastVerifiedAt: donation.LastVerifiedAt,
		CreatedAt:      donation.CreatedAt,
	}})
}
