package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	os.Clearenv()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"BI_JWT_SECRET": "secret"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":3001" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":3001")
	}
	if !cfg.SSOEnabled {
		t.Error("SSOEnabled should default to true")
	}
	if cfg.SSOService != "sqabi" {
		t.Errorf("SSOService = %q, want %q", cfg.SSOService, "sqabi")
	}
	if cfg.HubURL != "http://localhost:3000" {
		t.Errorf("HubURL = %q, want default", cfg.HubURL)
	}
	if cfg.JWTIssuer != "sqabi" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "sqabi")
	}
	if cfg.JWTAudience != "sqabi-users" {
		t.Errorf("JWTAudience = %q, want %q", cfg.JWTAudience, "sqabi-users")
	}
	if cfg.TokenTTL() != 6*time.Hour {
		t.Errorf("TokenTTL = %v, want 6h", cfg.TokenTTL())
	}
	if cfg.ValidateTimeout() != 10*time.Second {
		t.Errorf("ValidateTimeout = %v, want 10s", cfg.ValidateTimeout())
	}
	if cfg.HealthTimeout() != 5*time.Second {
		t.Errorf("HealthTimeout = %v, want 5s", cfg.HealthTimeout())
	}
	if cfg.Inactivity() != 60*time.Minute {
		t.Errorf("Inactivity = %v, want 60m", cfg.Inactivity())
	}
	if cfg.RecheckInterval() != 2*time.Minute {
		t.Errorf("RecheckInterval = %v, want 2m", cfg.RecheckInterval())
	}
	if cfg.FailClosed() {
		t.Error("liveness policy should default to fail_open")
	}
	if cfg.HubValidateMaxAttempts != 2 {
		t.Errorf("HubValidateMaxAttempts = %d, want 2", cfg.HubValidateMaxAttempts)
	}
	if cfg.DatasetPreviewLimit != 10 {
		t.Errorf("DatasetPreviewLimit = %d, want 10", cfg.DatasetPreviewLimit)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setEnv(t, map[string]string{
		"BI_JWT_SECRET":               "secret",
		"HTTP_ADDR":                   ":9090",
		"HUB_URL":                     "https://hub.example.com/",
		"BI_JWT_EXPIRES_IN":           "1d",
		"LIVENESS_CHECK_ERROR_POLICY": "FAIL_CLOSED",
		"SSO_SERVICE":                 "sqahub",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.HubURL != "https://hub.example.com" {
		t.Errorf("HubURL = %q, want trailing slash trimmed", cfg.HubURL)
	}
	if cfg.TokenTTL() != 24*time.Hour {
		t.Errorf("TokenTTL = %v, want 24h", cfg.TokenTTL())
	}
	if !cfg.FailClosed() {
		t.Error("FailClosed should be true")
	}
	if cfg.SSOService != "sqahub" {
		t.Errorf("SSOService = %q, want %q", cfg.SSOService, "sqahub")
	}
}

func TestLoad_MissingSecretWhenSSOEnabled(t *testing.T) {
	setEnv(t, map[string]string{})

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when BI_JWT_SECRET is empty")
	}
	if !strings.Contains(err.Error(), "BI_JWT_SECRET") {
		t.Errorf("error = %q, want mention of BI_JWT_SECRET", err.Error())
	}
}

func TestLoad_SSODisabledWithoutSecret(t *testing.T) {
	setEnv(t, map[string]string{"SSO_ENABLED": "false"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SSOEnabled {
		t.Error("SSOEnabled should be false")
	}
}

func TestLoad_InvalidLivenessPolicy(t *testing.T) {
	setEnv(t, map[string]string{
		"BI_JWT_SECRET":               "secret",
		"LIVENESS_CHECK_ERROR_POLICY": "sometimes",
	})

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid liveness policy")
	}
}

func TestLoad_PreviewLimitBounds(t *testing.T) {
	setEnv(t, map[string]string{
		"BI_JWT_SECRET":         "secret",
		"DATASET_PREVIEW_LIMIT": "500",
	})

	if _, err := Load(); err == nil {
		t.Fatal("expected error for preview limit above 100")
	}
}

func TestParseExpiry(t *testing.T) {
	testCases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"6h", 6 * time.Hour},
		{"2d", 48 * time.Hour},
		{" 8h ", 8 * time.Hour},
		{"", 6 * time.Hour},
		{"6", 6 * time.Hour},
		{"h", 6 * time.Hour},
		{"1w", 6 * time.Hour},
		{"1h30m", 6 * time.Hour},
		{"0h", 6 * time.Hour},
		{"-1h", 6 * time.Hour},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			if got := ParseExpiry(tc.in); got != tc.want {
				t.Errorf("ParseExpiry(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := &Config{
		HubValidateTimeout: "nope",
		HubHealthTimeout:   "-5s",
		InactivityTimeout:  "",
		HubRecheckInterval: "0s",
	}
	if cfg.ValidateTimeout() != 10*time.Second {
		t.Errorf("ValidateTimeout = %v, want 10s", cfg.ValidateTimeout())
	}
	if cfg.HealthTimeout() != 5*time.Second {
		t.Errorf("HealthTimeout = %v, want 5s", cfg.HealthTimeout())
	}
	if cfg.Inactivity() != time.Hour {
		t.Errorf("Inactivity = %v, want 1h", cfg.Inactivity())
	}
	if cfg.RecheckInterval() != 2*time.Minute {
		t.Errorf("RecheckInterval = %v, want 2m", cfg.RecheckInterval())
	}
}

func TestKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if got := nilCfg.KafkaBrokersList(); got != nil {
		t.Errorf("nil config brokers = %v, want nil", got)
	}
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList = %v, want [a:9092 b:9092]", got)
	}
}
