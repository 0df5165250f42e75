package config

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Storage.DataDir != "data" {
		t.Fatalf("data dir = %q, want data", cfg.Storage.DataDir)
	}
}

func TestNormalizeRejectsMissingToken(t *testing.T) {
	if err := Normalize(&Config{}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestNormalizeWebhookRequiresEndpoint(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.Telegram.RunMode = RunModeWebhook
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error without webhook url")
	}

	cfg.Webhook.URL = "https://example.com/hook"
	cfg.Webhook.Listen = "0.0.0.0"
	cfg.Webhook.Port = 8443
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
}

func TestNormalizeAdminHTTPDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.AdminHTTP.Enabled = true
	cfg.AdminHTTP.Token = "shared"

	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.AdminHTTP.Listen != "127.0.0.1" || cfg.AdminHTTP.Port != 3000 {
		t.Fatalf("admin defaults = %s:%d", cfg.AdminHTTP.Listen, cfg.AdminHTTP.Port)
	}
	if cfg.AdminHTTP.JWTSecret != "shared" {
		t.Fatalf("jwt secret should fall back to token, got %q", cfg.AdminHTTP.JWTSecret)
	}
}

func TestNormalizeRateLimitExclusions(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "t"
	cfg.RateLimit.ExcludeUpdates = []string{" Callback "}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclusion not normalized: %q", cfg.RateLimit.ExcludeUpdates[0])
	}

	cfg.RateLimit.ExcludeUpdates = []string{"bogus"}
	if err := Normalize(cfg); err == nil {
		t.Fatal("expected error for unknown exclusion")
	}
}

func TestIsOperator(t *testing.T) {
	tg := TelegramConfig{AdminIDs: []int64{10, 20}}
	if !tg.IsOperator(10) || !tg.IsOperator(20) {
		t.Fatal("listed ids must be operators")
	}
	if tg.IsOperator(30) {
		t.Fatal("unlisted id must not be operator")
	}
	if (TelegramConfig{}).IsOperator(10) {
		t.Fatal("empty allow-list admits nobody")
	}
}
