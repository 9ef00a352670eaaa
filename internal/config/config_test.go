package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeShadow, cfg.Mode)
	assert.InDelta(t, 992.10, cfg.Trading.Bankroll, 1e-9)
	assert.Equal(t, 4, cfg.Gates.SpreadMaxCents)
	assert.InDelta(t, 5.0, cfg.Gates.MinLiquidityMultiple, 1e-9)
	assert.Equal(t, 60*time.Second, cfg.CycleInterval())
	assert.Equal(t, 5*time.Second, cfg.ErrorSleep())
	assert.Equal(t, time.Hour, cfg.PublicDelay())
	assert.Equal(t, 15*time.Minute, cfg.RejectWindow())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Bankroll = 0
	cfg.Gates.SpreadMaxCents = 0
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bankroll")
	assert.Contains(t, err.Error(), "spread_max_cents")
	assert.Contains(t, err.Error(), "redis")
}

func TestValidateLiveRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = ModeLive

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key_id")

	cfg.Exchange.APIKeyID = "key-id"
	cfg.Exchange.PrivateKeyPath = "/etc/skybot/key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRatioBounds(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.MaxDailyLossPct = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_daily_loss_pct")
}

func TestExchangeBaseURLByMode(t *testing.T) {
	cfg := Defaults()

	cfg.Mode = ModePaper
	assert.Equal(t, cfg.Exchange.DemoBaseURL, cfg.ExchangeBaseURL())

	cfg.Mode = ModeLive
	assert.Equal(t, cfg.Exchange.BaseURL, cfg.ExchangeBaseURL())
}
