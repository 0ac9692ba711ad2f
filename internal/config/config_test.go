package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SOURCE_API_KEY", "SOURCE_API_SECRET", "SOURCE_API_PASSPHRASE",
		"MIRROR_API_KEY", "MIRROR_API_SECRET", "MIRROR_API_PASSPHRASE",
		"SOURCE_CONTRACT", "MIRROR_CONTRACT", "RATIO_DEFAULT",
		"MIRROR_BOGUS_OPTION",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	clearEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when credentials are missing")
	}
}

func TestLoadSuccess(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOURCE_API_KEY", "k")
	os.Setenv("SOURCE_API_SECRET", "s")
	os.Setenv("MIRROR_API_KEY", "k2")
	os.Setenv("MIRROR_API_SECRET", "s2")
	os.Setenv("SOURCE_CONTRACT", "BTCUSDT")
	os.Setenv("MIRROR_CONTRACT", "BTC_USDT")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SourceContract != "BTCUSDT" {
		t.Errorf("source contract = %q", cfg.SourceContract)
	}
	if !cfg.RatioDefault.Equal(decimal.NewFromInt(1)) {
		t.Errorf("ratio default = %s, want 1", cfg.RatioDefault)
	}
}

func TestLoadRejectsUnknownOption(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOURCE_API_KEY", "k")
	os.Setenv("SOURCE_API_SECRET", "s")
	os.Setenv("MIRROR_API_KEY", "k2")
	os.Setenv("MIRROR_API_SECRET", "s2")
	os.Setenv("SOURCE_CONTRACT", "BTCUSDT")
	os.Setenv("MIRROR_CONTRACT", "BTC_USDT")
	os.Setenv("MIRROR_BOGUS_OPTION", "x")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of unrecognized option")
	}
}

func TestLoadRejectsOutOfRangeRatio(t *testing.T) {
	clearEnv(t)
	os.Setenv("SOURCE_API_KEY", "k")
	os.Setenv("SOURCE_API_SECRET", "s")
	os.Setenv("MIRROR_API_KEY", "k2")
	os.Setenv("MIRROR_API_SECRET", "s2")
	os.Setenv("SOURCE_CONTRACT", "BTCUSDT")
	os.Setenv("MIRROR_CONTRACT", "BTC_USDT")
	os.Setenv("RATIO_DEFAULT", "20")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected rejection of out-of-range ratio")
	}
}
