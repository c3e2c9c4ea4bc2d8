package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Maker   VenueConfig
	Taker   VenueConfig
	Trading TradingConfig
	Balance BalanceConfig
	Runtime RuntimeConfig
	Notify  NotifyConfig
	Metrics MetricsConfig
}

type VenueConfig struct {
	Venue       string `validate:"oneof=bybit paper"`
	BaseUrl     string `validate:"required_if=Venue bybit"`
	WSUrl       string
	AccountType string
	ApiKey      string
	Secret      string
	Symbol      string  `validate:"required"`
	Fee         float64 `validate:"gte=0,lt=100"`
	PaperFiat   float64 `validate:"gte=0"`
	PaperCrypto float64 `validate:"gte=0"`
}

type TradingConfig struct {
	TimeToLive        time.Duration `validate:"gt=0"`
	CloseTimeToLive   time.Duration `validate:"gt=0"`
	Buying            BuyingConfig
	Selling           SellingConfig
	BuyingFxRate      float64       `validate:"gt=0"`
	SellingFxRate     float64       `validate:"gt=0"`
	LostOrderDelay    time.Duration `validate:"gte=0"`
	LostOrderAttempts int           `validate:"gte=1"`
}

type BuyingConfig struct {
	AmountToSpendPerOrder float64 `validate:"gt=0"`
	Profit                float64 `validate:"gte=0,lt=100"`
}

type SellingConfig struct {
	QuantityToSellPerOrder float64 `validate:"gt=0"`
	Profit                 float64 `validate:"gte=0,lt=100"`
}

type BalanceConfig struct {
	FiatWarning     float64 `validate:"gte=0"`
	FiatStop        float64 `validate:"gte=0"`
	CryptoWarning   float64 `validate:"gte=0"`
	CryptoStop      float64 `validate:"gte=0"`
	WarningInterval time.Duration
}

type RuntimeConfig struct {
	DryRun          bool
	CooldownPerCall time.Duration `validate:"gte=0"`
	StorePath       string        `validate:"required"`
	Log             LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID int64
	MinInterval    time.Duration
}

type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	return LoadFrom("configs")
}

func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("Не удалось прочитать .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	v.SetEnvPrefix("ARBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
		}
	}

	cfg := &Config{
		Maker: venue(v, "maker"),
		Taker: venue(v, "taker"),
	}

	cfg.Trading = TradingConfig{
		TimeToLive:      seconds(v, "trading.time_to_live"),
		CloseTimeToLive: seconds(v, "trading.close_time_to_live"),
		Buying: BuyingConfig{
			AmountToSpendPerOrder: v.GetFloat64("trading.buying.amount_to_spend_per_order"),
			Profit:                v.GetFloat64("trading.buying.profit"),
		},
		Selling: SellingConfig{
			QuantityToSellPerOrder: v.GetFloat64("trading.selling.quantity_to_sell_per_order"),
			Profit:                 v.GetFloat64("trading.selling.profit"),
		},
		BuyingFxRate:      v.GetFloat64("trading.buying_fx_rate"),
		SellingFxRate:     v.GetFloat64("trading.selling_fx_rate"),
		LostOrderDelay:    seconds(v, "trading.lost_order_delay"),
		LostOrderAttempts: v.GetInt("trading.lost_order_attempts"),
	}

	cfg.Balance = BalanceConfig{
		FiatWarning:     v.GetFloat64("balance.fiat_warning"),
		FiatStop:        v.GetFloat64("balance.fiat_stop"),
		CryptoWarning:   v.GetFloat64("balance.crypto_warning"),
		CryptoStop:      v.GetFloat64("balance.crypto_stop"),
		WarningInterval: seconds(v, "balance.warning_interval"),
	}

	cfg.Runtime = RuntimeConfig{
		DryRun:          v.GetBool("runtime.dry_run"),
		CooldownPerCall: v.GetDuration("runtime.cooldown_per_call"),
		StorePath:       v.GetString("runtime.store_path"),
		Log: LogConfig{
			Level:      v.GetString("runtime.log.level"),
			Format:     v.GetString("runtime.log.format"),
			File:       v.GetString("runtime.log.file"),
			MaxSize:    v.GetInt("runtime.log.max_size"),
			MaxBackups: v.GetInt("runtime.log.max_backups"),
			MaxAge:     v.GetInt("runtime.log.max_age"),
			Compress:   v.GetBool("runtime.log.compress"),
		},
	}

	cfg.Notify = NotifyConfig{
		TelegramToken:  envSub(v, "notify.telegram_token"),
		TelegramChatID: v.GetInt64("notify.telegram_chat_id"),
		MinInterval:    seconds(v, "notify.min_interval"),
	}

	cfg.Metrics = MetricsConfig{
		Addr: v.GetString("metrics.addr"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("Некорректная конфигурация: %w", err)
	}

	return cfg, nil
}

// overrideRules hold the same constraints as the config fields the store can override.
var overrideRules = map[string]string{
	"buying_amount_to_spend_per_order":   "gt=0",
	"selling_quantity_to_sell_per_order": "gt=0",
	"buying_profit":                      "gte=0,lt=100",
	"selling_profit":                     "gte=0,lt=100",
	"buying_fx_rate":                     "gt=0",
	"selling_fx_rate":                    "gt=0",
	"fiat_warning":                       "gte=0",
	"fiat_stop":                          "gte=0",
	"crypto_warning":                     "gte=0",
	"crypto_stop":                        "gte=0",
}

// ValidateOverride checks a stored override against the rules of the config field it replaces.
func ValidateOverride(key string, val float64) error {
	rule, ok := overrideRules[key]
	if !ok {
		return fmt.Errorf("Неизвестный параметр %q", key)
	}
	if err := validator.New().Var(val, rule); err != nil {
		return fmt.Errorf("Некорректное значение %s=%v (%s): %w", key, val, rule, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("maker.venue", "bybit")
	v.SetDefault("taker.venue", "bybit")
	v.SetDefault("maker.account_type", "UNIFIED")
	v.SetDefault("taker.account_type", "UNIFIED")
	v.SetDefault("trading.time_to_live", 20)
	v.SetDefault("trading.close_time_to_live", 30)
	v.SetDefault("trading.buying_fx_rate", 1)
	v.SetDefault("trading.selling_fx_rate", 1)
	v.SetDefault("trading.lost_order_delay", 10)
	v.SetDefault("trading.lost_order_attempts", 5)
	v.SetDefault("balance.warning_interval", 30*60)
	v.SetDefault("runtime.cooldown_per_call", "1s")
	v.SetDefault("runtime.store_path", "arbot.db")
	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("notify.min_interval", 60)
}

func venue(v *viper.Viper, prefix string) VenueConfig {
	return VenueConfig{
		Venue:       v.GetString(prefix + ".venue"),
		BaseUrl:     v.GetString(prefix + ".base_url"),
		WSUrl:       v.GetString(prefix + ".ws_url"),
		AccountType: v.GetString(prefix + ".account_type"),
		ApiKey:      envSub(v, prefix+".api_key"),
		Secret:      envSub(v, prefix+".secret"),
		Symbol:      v.GetString(prefix + ".symbol"),
		Fee:         v.GetFloat64(prefix + ".fee"),
		PaperFiat:   v.GetFloat64(prefix + ".paper_fiat"),
		PaperCrypto: v.GetFloat64(prefix + ".paper_crypto"),
	}
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetFloat64(key) * float64(time.Second))
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func envSub(v *viper.Viper, key string) string {
	val := v.GetString(key)
	if val == "" {
		return ""
	}

	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
