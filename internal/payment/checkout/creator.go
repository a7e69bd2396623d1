package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/seva/internal/audit/masking"
	"github.com/smallbiznis/seva/internal/clock"
	"github.com/smallbiznis/seva/internal/config"
	paymentdomain "github.com/smallbiznis/seva/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Intent is what the donor submits on the donation form.
type Intent struct {
	Amount      float64 `validate:"gt=0"`
	Currency    string  `validate:"len=3,alpha"`
	DonorName   string  `validate:"required,max=100"`
	DonorEmail  string  `validate:"required,email"`
	DonorPhone  string  `validate:"required"`
	OrderPrefix string  `validate:"omitempty,max=12"`
}

// PreparedOrder is a validated intent with its identifiers assigned.
type PreparedOrder struct {
	OrderID    string
	CustomerID string
	Amount     float64
	Currency   string
	DonorName  string
	DonorEmail string
	DonorPhone string
	CreatedAt  time.Time
}

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidName     = errors.New("invalid_donor_name")
	ErrInvalidEmail    = errors.New("invalid_donor_email")
	ErrInvalidPhone    = errors.New("invalid_donor_phone")
	ErrInvalidPrefix   = errors.New("invalid_order_prefix")
)

type Params struct {
	fx.In

	Client   paymentdomain.GatewayClient `optional:"true"`
	Settings *config.CheckoutConfigHolder
	Clock    clock.Clock
	Log      *zap.Logger
}

// Creator opens hosted checkout sessions with the gateway.
type Creator struct {
	client   paymentdomain.GatewayClient
	settings *config.CheckoutConfigHolder
	clock    clock.Clock
	validate *validator.Validate
	log      *zap.Logger
}

func NewCreator(p Params) *Creator {
	c := p.Clock
	if c == nil {
		c = clock.New()
	}
	return &Creator{
		client:   p.Client,
		settings: p.Settings,
		clock:    c,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      p.Log.Named("payment.checkout"),
	}
}

// Prepare validates the intent, normalizes the phone and assigns order and customer ids.
func (c *Creator) Prepare(intent Intent) (*PreparedOrder, error) {
	settings := c.settings.Get()

	intent.Currency = strings.ToUpper(strings.TrimSpace(intent.Currency))
	if intent.Currency == "" {
		intent.Currency = settings.Currency
	}
	intent.DonorName = strings.TrimSpace(intent.DonorName)
	intent.DonorEmail = strings.ToLower(strings.TrimSpace(intent.DonorEmail))
	intent.DonorPhone = strings.TrimSpace(intent.DonorPhone)
	intent.OrderPrefix = strings.TrimSpace(intent.OrderPrefix)
	if intent.OrderPrefix == "" {
		intent.OrderPrefix = settings.OrderPrefix
	}

	if err := c.validate.Struct(intent); err != nil {
		return nil, validationError(err)
	}

	now := c.clock.Now()
	return &PreparedOrder{
		OrderID:    NewOrderID(intent.OrderPrefix, now),
		CustomerID: CustomerID(intent.DonorEmail, now),
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		DonorName:  intent.DonorName,
		DonorEmail: intent.DonorEmail,
		DonorPhone: NormalizePhone(intent.DonorPhone, settings.DefaultCountryCode),
		CreatedAt:  now,
	}, nil
}

// Submit creates the gateway order for a prepared intent. Gateway 4xx come back
// as *paymentdomain.GatewayError and are not retried.
func (c *Creator) Submit(ctx context.Context, order *PreparedOrder) (*paymentdomain.Session, error) {
	if c.client == nil {
		return nil, paymentdomain.ErrGatewayNotEnabled
	}
	settings := c.settings.Get()

	session, err := c.client.CreateOrder(ctx, paymentdomain.CreateOrderRequest{
		OrderID:  order.OrderID,
		Amount:   order.Amount,
		Currency: order.Currency,
		Customer: paymentdomain.CustomerDetails{
			CustomerID: order.CustomerID,
			Name:       order.DonorName,
			Email:      order.DonorEmail,
			Phone:      order.DonorPhone,
		},
		ReturnURL: settings.ReturnURL,
		NotifyURL: settings.NotifyURL,
	})
	if err != nil {
		c.log.Warn("checkout session failed",
			zap.String("order_id", order.OrderID),
			zap.String("donor_email", masking.MaskEmail(order.DonorEmail)),
			zap.Error(err),
		)
		return nil, err
	}

	c.log.Info("checkout session created",
		zap.String("order_id", order.OrderID),
		zap.String("gateway_order_id", session.GatewayOrderID),
		zap.String("donor_phone", masking.MaskPhone(order.DonorPhone)),
	)
	return session, nil
}

func (c *Creator) CreateSession(ctx context.Context, intent Intent) (*paymentdomain.Session, error) {
	order, err := c.Prepare(intent)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, order)
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	switch fieldErrs[0].Field() {
	case "Amount":
		return ErrInvalidAmount
	case "Currency":
		return ErrInvalidCurrency
	case "DonorName":
		return ErrInvalidName
	case "DonorEmail":
		return ErrInvalidEmail
	case "DonorPhone":
		return ErrInvalidPhone
	case "OrderPrefix":
		return ErrInvalidPrefix
	default:
		return err
	}
}
