package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	defaultSummaryTTL        = 24 * time.Hour
	defaultCreditsPerHectare = 10
	defaultPricePerCredit    = 50
	defaultLockTTL           = 30 * time.Second
	defaultChainMaxAttempts  = 5
	defaultChainBatchSize    = 50
	defaultChainBackoff      = 2 * time.Second
	defaultChainMaxBackoff   = 5 * time.Minute
	defaultChainClaimTTL     = time.Minute
)

type OracleConfig struct {
	SummaryTTLSeconds int `koanf:"summary_ttl_seconds" mapstructure:"summary_ttl_seconds"`
}

type IssuanceConfig struct {
	CreditsPerHectare float64 `koanf:"credits_per_hectare" mapstructure:"credits_per_hectare"`
	DisableAreaCap    bool    `koanf:"disable_area_cap" mapstructure:"disable_area_cap"`
}

type PricingConfig struct {
	PricePerCredit int64 `koanf:"price_per_credit" mapstructure:"price_per_credit"`
}

type LocksConfig struct {
	TTLSeconds int `koanf:"ttl_seconds" mapstructure:"ttl_seconds"`
}

type ChainConfig struct {
	MaxAttempts           int `koanf:"max_attempts" mapstructure:"max_attempts"`
	BatchSize             int `koanf:"batch_size" mapstructure:"batch_size"`
	InitialBackoffSeconds int `koanf:"initial_backoff_seconds" mapstructure:"initial_backoff_seconds"`
	MaxBackoffSeconds     int `koanf:"max_backoff_seconds" mapstructure:"max_backoff_seconds"`
	ClaimTTLSeconds       int `koanf:"claim_ttl_seconds" mapstructure:"claim_ttl_seconds"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Oracle      OracleConfig   `koanf:"oracle" mapstructure:"oracle"`
	Issuance    IssuanceConfig `koanf:"issuance" mapstructure:"issuance"`
	Pricing     PricingConfig  `koanf:"pricing" mapstructure:"pricing"`
	Locks       LocksConfig    `koanf:"locks" mapstructure:"locks"`
	Chain       ChainConfig    `koanf:"chain" mapstructure:"chain"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "blueledger",
		Oracle: OracleConfig{
			SummaryTTLSeconds: int(defaultSummaryTTL / time.Second),
		},
		Issuance: IssuanceConfig{
			CreditsPerHectare: defaultCreditsPerHectare,
		},
		Pricing: PricingConfig{
			PricePerCredit: defaultPricePerCredit,
		},
		Locks: LocksConfig{
			TTLSeconds: int(defaultLockTTL / time.Second),
		},
		Chain: ChainConfig{
			MaxAttempts:           defaultChainMaxAttempts,
			BatchSize:             defaultChainBatchSize,
			InitialBackoffSeconds: int(defaultChainBackoff / time.Second),
			MaxBackoffSeconds:     int(defaultChainMaxBackoff / time.Second),
			ClaimTTLSeconds:       int(defaultChainClaimTTL / time.Second),
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Oracle.SummaryTTLSeconds <= 0 {
		return fmt.Errorf("core: oracle.summary_ttl_seconds must be > 0")
	}
	if c.Issuance.CreditsPerHectare < 0 || math.IsNaN(c.Issuance.CreditsPerHectare) || math.IsInf(c.Issuance.CreditsPerHectare, 0) {
		return fmt.Errorf("core: issuance.credits_per_hectare must be a finite value >= 0")
	}
	if c.Pricing.PricePerCredit < 0 {
		return fmt.Errorf("core: pricing.price_per_credit must be >= 0")
	}
	if c.Locks.TTLSeconds < 0 {
		return fmt.Errorf("core: locks.ttl_seconds must be >= 0")
	}
	if c.Chain.MaxAttempts < 0 || c.Chain.BatchSize < 0 {
		return fmt.Errorf("core: chain.max_attempts and chain.batch_size must be >= 0")
	}
	if c.Chain.InitialBackoffSeconds < 0 || c.Chain.MaxBackoffSeconds < 0 {
		return fmt.Errorf("core: chain backoff values must be >= 0")
	}
	if c.Chain.ClaimTTLSeconds < 0 {
		return fmt.Errorf("core: chain.claim_ttl_seconds must be >= 0")
	}
	return nil
}

func (c Config) SummaryTTL() time.Duration {
	if c.Oracle.SummaryTTLSeconds <= 0 {
		return defaultSummaryTTL
	}
	return time.Duration(c.Oracle.SummaryTTLSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	if c.Locks.TTLSeconds <= 0 {
		return defaultLockTTL
	}
	return time.Duration(c.Locks.TTLSeconds) * time.Second
}

func (c Config) ChainReconcilerConfig() ChainReconcilerConfig {
	return ChainReconcilerConfig{
		BatchSize:      c.Chain.BatchSize,
		MaxAttempts:    c.Chain.MaxAttempts,
		InitialBackoff: time.Duration(c.Chain.InitialBackoffSeconds) * time.Second,
		MaxBackoff:     time.Duration(c.Chain.MaxBackoffSeconds) * time.Second,
		ClaimTTL:       time.Duration(c.Chain.ClaimTTLSeconds) * time.Second,
	}
}
