package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CheckoutConfig holds tunables that operators may change without a restart.
type CheckoutConfig struct {
	DefaultDurationDays int           `mapstructure:"defaultDurationDays"`
	FanoutBatchSize     int           `mapstructure:"fanoutBatchSize"`
	PollInterval        time.Duration `mapstructure:"pollInterval"`
	PollBudget          time.Duration `mapstructure:"pollBudget"`
	PollMaxErrors       int           `mapstructure:"pollMaxErrors"`
	CreateRatePerSecond float64       `mapstructure:"createRatePerSecond"`
	CreateBurst         int           `mapstructure:"createBurst"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		DefaultDurationDays: 30,
		FanoutBatchSize:     300,
		PollInterval:        3 * time.Second,
		PollBudget:          2 * time.Minute,
		PollMaxErrors:       10,
		CreateRatePerSecond: 0.2,
		CreateBurst:         5,
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

// NewCheckoutConfigHolder reads checkout.yml when present and reloads it on change.
func NewCheckoutConfigHolder() (*CheckoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/coursepay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COURSEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.defaultDurationDays", defaults.DefaultDurationDays)
	v.SetDefault("checkout.fanoutBatchSize", defaults.FanoutBatchSize)
	v.SetDefault("checkout.pollInterval", defaults.PollInterval)
	v.SetDefault("checkout.pollBudget", defaults.PollBudget)
	v.SetDefault("checkout.pollMaxErrors", defaults.PollMaxErrors)
	v.SetDefault("checkout.createRatePerSecond", defaults.CreateRatePerSecond)
	v.SetDefault("checkout.createBurst", defaults.CreateBurst)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, &ConfigError{Field: "checkout", Err: err}
	}

	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated CheckoutConfig
			if err := v.UnmarshalKey("checkout", &updated); err != nil {
				zap.L().Warn("checkout config reload failed", zap.Error(err))
				return
			}
			if err := validateCheckoutConfig(updated); err != nil {
				zap.L().Warn("invalid checkout config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			zap.L().Info("checkout config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticCheckoutConfig returns a holder that never reloads.
func NewStaticCheckoutConfig(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
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

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if cfg.DefaultDurationDays <= 0 {
		return errors.New("checkout.defaultDurationDays must be positive")
	}
	if cfg.FanoutBatchSize <= 0 {
		return errors.New("checkout.fanoutBatchSize must be positive")
	}
	if cfg.PollInterval <= 0 || cfg.PollBudget <= 0 {
		return errors.New("checkout poll interval and budget must be positive")
	}
	if cfg.PollMaxErrors <= 0 {
		return errors.New("checkout.pollMaxErrors must be positive")
	}
	if cfg.CreateRatePerSecond <= 0 || cfg.CreateBurst <= 0 {
		return errors.New("checkout create rate and burst must be positive")
	}
	return nil
}
