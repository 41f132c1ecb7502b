// Package config defines all configuration for the layered market-making
// worker. The top-level AppConfig is loaded from a YAML file with sensitive
// fields overridable via LADDER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// PriceStrategy selects the reference-price pipeline.
type PriceStrategy string

const (
	PriceStrategyTicker   PriceStrategy = "TICKER"
	PriceStrategyMiddle   PriceStrategy = "MIDDLE"
	PriceStrategyLastFill PriceStrategy = "LAST_FILL"
)

// MiddlePriceStrategy selects the midpoint sub-strategy when PriceStrategy
// is MIDDLE.
type MiddlePriceStrategy string

const (
	MiddlePriceSAP  MiddlePriceStrategy = "SAP"
	MiddlePriceWAP  MiddlePriceStrategy = "WAP"
	MiddlePriceVWAP MiddlePriceStrategy = "VWAP"
)

// LayerSide configures one side (bid or ask) of a ladder layer.
type LayerSide struct {
	Quantity              int     `mapstructure:"quantity"`
	SpreadPercentage      float64 `mapstructure:"spread_percentage"`
	MaxLiquidityInDollars float64 `mapstructure:"max_liquidity_in_dollars"`
}

// Layer is one rung of the ladder: an independent bid and ask configuration.
type Layer struct {
	Bid LayerSide `mapstructure:"bid"`
	Ask LayerSide `mapstructure:"ask"`
}

// StrategyConfig tunes the tick loop and the reference-price/proposal
// pipeline for a single worker.
type StrategyConfig struct {
	TickIntervalMs int64 `mapstructure:"tick_interval"`
	RunOnlyOnce    bool  `mapstructure:"run_only_once"`

	CancelAllOrdersOnStart bool `mapstructure:"cancel_all_orders_on_start"`
	CancelAllOrdersOnStop  bool `mapstructure:"cancel_all_orders_on_stop"`
	WithdrawMarketOnStart  bool `mapstructure:"withdraw_market_on_start"`
	WithdrawMarketOnStop   bool `mapstructure:"withdraw_market_on_stop"`
	WithdrawMarketOnTick   bool `mapstructure:"withdraw_market_on_tick"`

	PriceStrategy       PriceStrategy       `mapstructure:"price_strategy"`
	MiddlePriceStrategy MiddlePriceStrategy `mapstructure:"middle_price_strategy"`
	OrderType           string              `mapstructure:"kujira_order_type"`

	// CancelDuplicateOrders opts into the reconciler's duplicate scan every
	// tick. The spec leaves activation to the implementer; default is off.
	CancelDuplicateOrders bool `mapstructure:"cancel_duplicate_orders"`

	Layers []Layer `mapstructure:"layers"`
}

// WorkerConfig is everything one worker needs: identity, routing, and its
// strategy tuning.
type WorkerConfig struct {
	ID        string `mapstructure:"id"`
	Chain     string `mapstructure:"chain"`
	Network   string `mapstructure:"network"`
	Connector string `mapstructure:"connector"`
	Wallet    string `mapstructure:"wallet"`
	Market    string `mapstructure:"market"`

	Strategy StrategyConfig `mapstructure:"strategy"`
}

// GatewayConfig tunes the HTTP transport backing the gateway client facade.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
	RetryWait  time.Duration `mapstructure:"retry_wait"`
	DryRun     bool          `mapstructure:"dry_run"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StatusConfig controls the optional observability HTTP/WebSocket host.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AppConfig is the top-level configuration file shape: shared gateway/
// logging/status settings plus one or more workers, each quoting its own
// market, possibly concurrently in the same process.
type AppConfig struct {
	Gateway GatewayConfig  `mapstructure:"gateway"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Status  StatusConfig   `mapstructure:"status"`
	Workers []WorkerConfig `mapstructure:"workers"`
}

// Load reads configuration from a YAML file with environment overrides.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LADDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if url := os.Getenv("LADDER_GATEWAY_BASE_URL"); url != "" {
		cfg.Gateway.BaseURL = url
	}
	if os.Getenv("LADDER_DRY_RUN") == "true" || os.Getenv("LADDER_DRY_RUN") == "1" {
		cfg.Gateway.DryRun = true
	}

	return &cfg, nil
}

// Validate checks every worker's configuration, returning the first failing
// check rather than aggregating, matching the host repo's own Validate().
func (c *AppConfig) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker must be configured")
	}

	for i, w := range c.Workers {
		if err := w.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (w WorkerConfig) validate(index int) error {
	label := fmt.Sprintf("workers[%d]", index)
	if w.ID == "" {
		label = fmt.Sprintf("workers[%d] (id missing)", index)
	} else {
		label = fmt.Sprintf("workers[%d] (%s)", index, w.ID)
	}

	if w.Market == "" {
		return fmt.Errorf("%s: market is required", label)
	}
	if w.Wallet == "" {
		return fmt.Errorf("%s: wallet is required", label)
	}
	if !common.IsHexAddress(w.Wallet) {
		return fmt.Errorf("%s: wallet %q is not a well-formed hex address", label, w.Wallet)
	}

	switch w.Strategy.PriceStrategy {
	case PriceStrategyTicker, PriceStrategyMiddle, PriceStrategyLastFill:
	default:
		return fmt.Errorf("%s: unknown strategy.price_strategy %q", label, w.Strategy.PriceStrategy)
	}

	if w.Strategy.PriceStrategy == PriceStrategyMiddle && w.Strategy.MiddlePriceStrategy != "" {
		switch w.Strategy.MiddlePriceStrategy {
		case MiddlePriceSAP, MiddlePriceWAP, MiddlePriceVWAP:
		default:
			return fmt.Errorf("%s: unknown strategy.middle_price_strategy %q", label, w.Strategy.MiddlePriceStrategy)
		}
	}

	if w.Strategy.TickIntervalMs <= 0 {
		return fmt.Errorf("%s: strategy.tick_interval must be > 0", label)
	}
	if len(w.Strategy.Layers) == 0 {
		return fmt.Errorf("%s: strategy.layers must declare at least one layer", label)
	}

	return nil
}
