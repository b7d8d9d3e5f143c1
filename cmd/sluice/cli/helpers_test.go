package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/secret"
	"github.com/sluicehq/sluice/internal/service"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	setDefaults()
	t.Cleanup(func() {
		viper.Reset()
		tenantFlag = ""
	})
}

func TestParseSettings(t *testing.T) {
	cfg, err := parseSettings(`{"host":"db","port":5432}`, []string{"port=6543", "password=a=b"})
	if err != nil {
		t.Fatalf("parseSettings: %v", err)
	}
	if cfg["host"] != "db" {
		t.Errorf("host = %v", cfg["host"])
	}
	if cfg["port"] != "6543" {
		t.Errorf("port = %v, want pair to override JSON", cfg["port"])
	}
	if cfg["password"] != "a=b" {
		t.Errorf("password = %v, want split on first '='", cfg["password"])
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseSettings("", []string{bad}); err == nil {
			t.Errorf("parseSettings(%q) should fail", bad)
		}
	}
	if _, err := parseSettings("{", nil); err == nil {
		t.Error("malformed JSON should fail")
	}
}

func TestCurrentTenant(t *testing.T) {
	resetViper(t)

	got, err := currentTenant()
	if err != nil || !got.IsNone() {
		t.Fatalf("default tenant = %v, %v; want none", got, err)
	}

	viper.Set("tenant.id", "acme")
	got, err = currentTenant()
	if err != nil || got.ID() != "acme" {
		t.Errorf("config tenant = %v, %v", got, err)
	}

	tenantFlag = "globex"
	got, err = currentTenant()
	if err != nil || got.ID() != "globex" {
		t.Errorf("flag should win over config, got %v, %v", got, err)
	}
}

func TestLifetimesDefaults(t *testing.T) {
	resetViper(t)

	lt, err := lifetimes()
	if err != nil {
		t.Fatalf("lifetimes: %v", err)
	}
	if lt.Token != 48*time.Hour || lt.Refresh != 72*time.Hour {
		t.Errorf("lifetimes = %+v, want 48h/72h", lt)
	}

	viper.Set("auth.expire_token", "soon")
	if _, err := lifetimes(); err == nil {
		t.Error("invalid TTL should fail")
	}
}

func TestQuotaLimits(t *testing.T) {
	resetViper(t)
	viper.Set("quota.apps", 5)

	limits := quotaLimits()
	if limits[service.ResourceApps] != 5 || limits[service.ResourceUsers] != 0 {
		t.Errorf("limits = %v", limits)
	}
}

func TestLoadKeys(t *testing.T) {
	resetViper(t)

	if _, err := loadKeys(); err == nil {
		t.Fatal("missing project key should fail")
	}

	viper.Set("auth.project_key", base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32)))
	k, err := loadKeys()
	if err != nil {
		t.Fatalf("loadKeys: %v", err)
	}
	if k.encryption.Fingerprint() == k.signing.Fingerprint() {
		t.Error("encryption and signing keys should differ")
	}
}

func TestCheckFingerprint(t *testing.T) {
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	first, _ := secret.DeriveKey(bytes.Repeat([]byte{1}, 32), secret.LabelEncryption)
	second, _ := secret.DeriveKey(bytes.Repeat([]byte{2}, 32), secret.LabelEncryption)

	if err := checkFingerprint(ctx, store, first); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := checkFingerprint(ctx, store, first); err != nil {
		t.Errorf("same key: %v", err)
	}
	if err := checkFingerprint(ctx, store, second); err == nil {
		t.Error("different key should be refused")
	}
}

func TestVersionString(t *testing.T) {
	defer func(v string) { appVersion = v }(appVersion)

	for in, want := range map[string]string{"": "dev", "dev": "dev", "1.2.0": "v1.2.0", "v1.2.0": "v1.2.0"} {
		appVersion = in
		if got := versionString(); got != want {
			t.Errorf("versionString(%q) = %q, want %q", in, got, want)
		}
	}
}
