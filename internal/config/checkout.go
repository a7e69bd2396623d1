package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CheckoutConfig holds donor checkout settings that operators tune without a redeploy.
type CheckoutConfig struct {
	OrderPrefix        string `mapstructure:"orderPrefix"`
	DefaultCountryCode string `mapstructure:"defaultCountryCode"`
	Currency           string `mapstructure:"currency"`
	// ReturnURL may contain the {order_id} placeholder, the gateway substitutes it.
	ReturnURL string `mapstructure:"returnUrl"`
	NotifyURL string `mapstructure:"notifyUrl"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		OrderPrefix:        "DON",
		DefaultCountryCode: "91",
		Currency:           "INR",
		ReturnURL:          "http://localhost:3000/donate/success?order_id={order_id}",
		NotifyURL:          "http://localhost:8080/api/payments/webhooks/cashfree",
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewStaticCheckoutConfigHolder returns a holder pinned to cfg, without file watching.
func NewStaticCheckoutConfigHolder(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewCheckoutConfigHolder(log *zap.Logger) (*CheckoutConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("checkout.config")

	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/seva/config")
	v.AddConfigPath("/etc/seva")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SEVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.orderPrefix", defaults.OrderPrefix)
	v.SetDefault("checkout.defaultCountryCode", defaults.DefaultCountryCode)
	v.SetDefault("checkout.currency", defaults.Currency)
	v.SetDefault("checkout.returnUrl", defaults.ReturnURL)
	v.SetDefault("checkout.notifyUrl", defaults.NotifyURL)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	cfg = normalizeCheckoutConfig(cfg)
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutConfig
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Warn("checkout config reload failed", zap.Error(err))
			return
		}
		updated = normalizeCheckoutConfig(updated)
		if err := validateCheckoutConfig(updated); err != nil {
			log.Warn("invalid checkout config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("checkout config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	if h == nil {
		return DefaultCheckoutConfig()
	}
	cfg, ok := h.current.Load().(CheckoutConfig)
	if !ok {
		return DefaultCheckoutConfig()
	}
	return cfg
}

func normalizeCheckoutConfig(cfg CheckoutConfig) CheckoutConfig {
	cfg.OrderPrefix = strings.TrimSpace(cfg.OrderPrefix)
	cfg.DefaultCountryCode = strings.TrimPrefix(strings.TrimSpace(cfg.DefaultCountryCode), "+")
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	cfg.ReturnURL = strings.TrimSpace(cfg.ReturnURL)
	cfg.NotifyURL = strings.TrimSpace(cfg.NotifyURL)
	return cfg
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.DefaultCountryCode == "" {
		return errors.New("checkout.defaultCountryCode cannot be empty")
	}
	if cfg.ReturnURL == "" {
		return errors.New("checkout.returnUrl cannot be empty")
	}
	if cfg.NotifyURL == "" {
		return errors.New("checkout.notifyUrl cannot be empty")
	}
	return nil
}
