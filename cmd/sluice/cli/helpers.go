package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/connector"
	"github.com/sluicehq/sluice/internal/connector/mssql"
	"github.com/sluicehq/sluice/internal/connector/mysql"
	"github.com/sluicehq/sluice/internal/connector/oracle"
	"github.com/sluicehq/sluice/internal/connector/postgres"
	"github.com/sluicehq/sluice/internal/connector/snowflake"
	"github.com/sluicehq/sluice/internal/connector/sqlite"
	"github.com/sluicehq/sluice/internal/secret"
	"github.com/sluicehq/sluice/internal/service"
	"github.com/sluicehq/sluice/internal/tenant"
)

// settingKeyFingerprint records which encryption key sealed the stored
// connection configurations.
const settingKeyFingerprint = "encryption_key_fingerprint"

var (
	// dataDir holds the --data-dir persistent flag value (set on root command).
	dataDir string
	// tenantFlag holds the --tenant persistent flag value.
	tenantFlag string
)

// resolveDataDir returns the data directory from --data-dir flag,
// SLUICE_DATA_DIR env var, or ~/.sluice as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("SLUICE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sluice")
}

// openConfigStore opens the SQLite store, defaulting to ~/.sluice if no data
// dir was specified.
func openConfigStore() (*config.Store, error) {
	store, err := config.NewStore(resolveDataDir())
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	return store, nil
}

// newRegistry creates a connector registry with every supported engine.
func newRegistry() *connector.Registry {
	registry := connector.NewRegistry()
	registry.Register(postgres.New())
	registry.Register(mysql.New())
	registry.Register(mssql.New())
	registry.Register(oracle.New())
	registry.Register(snowflake.New())
	registry.Register(sqlite.New())
	return registry
}

// currentTenant returns the tenant selected by --tenant or tenant.id. An empty
// value is the unpartitioned tenant.
func currentTenant() (tenant.Context, error) {
	id := tenantFlag
	if id == "" {
		id = viper.GetString("tenant.id")
	}
	if id == "" {
		return tenant.None(), nil
	}
	return tenant.New(id)
}

// newLogger builds the process logger from logging.level and logging.format.
func newLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("logging.level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(viper.GetString("logging.format"), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// keys are the subkeys derived from the project key.
type keys struct {
	encryption secret.Key
	signing    secret.Key
}

// loadKeys derives the encryption and signing keys from auth.project_key.
func loadKeys() (keys, error) {
	raw := os.ExpandEnv(viper.GetString("auth.project_key"))
	if strings.TrimSpace(raw) == "" {
		return keys{}, errors.New("auth.project_key is not set; generate one with 'sluice key generate'")
	}
	projectKey, err := secret.ParseProjectKey(raw)
	if err != nil {
		return keys{}, err
	}
	enc, err := secret.DeriveKey(projectKey, secret.LabelEncryption)
	if err != nil {
		return keys{}, err
	}
	sig, err := secret.DeriveKey(projectKey, secret.LabelSigning)
	if err != nil {
		return keys{}, err
	}
	return keys{encryption: enc, signing: sig}, nil
}

// checkFingerprint records the encryption key fingerprint on first use and
// refuses a different key afterwards, since stored connections could no
// longer be decrypted.
func checkFingerprint(ctx context.Context, store *config.Store, key secret.Key) error {
	stored, err := store.GetSetting(ctx, settingKeyFingerprint)
	switch {
	case errors.Is(err, config.ErrNotFound):
		return store.SetSetting(ctx, settingKeyFingerprint, key.Fingerprint())
	case err != nil:
		return err
	case stored != key.Fingerprint():
		return fmt.Errorf("project key fingerprint %s does not match the key this store was created with (%s)", key.Fingerprint(), stored)
	}
	return nil
}

// lifetimes parses auth.expire_token and auth.expire_refresh.
func lifetimes() (service.Lifetimes, error) {
	tok, err := config.ParseTTL(viper.GetString("auth.expire_token"))
	if err != nil {
		return service.Lifetimes{}, fmt.Errorf("auth.expire_token: %w", err)
	}
	refresh, err := config.ParseTTL(viper.GetString("auth.expire_refresh"))
	if err != nil {
		return service.Lifetimes{}, fmt.Errorf("auth.expire_refresh: %w", err)
	}
	return service.Lifetimes{Token: tok, Refresh: refresh}, nil
}

func quotaLimits() service.Limits {
	return service.Limits{
		service.ResourceApps:        viper.GetInt("quota.apps"),
		service.ResourceUsers:       viper.GetInt("quota.users"),
		service.ResourceScopes:      viper.GetInt("quota.scopes"),
		service.ResourceConnections: viper.GetInt("quota.connections"),
	}
}

// ---------------------------------------------------------------------------
// Service wiring
// ---------------------------------------------------------------------------

// app bundles the store and services shared by the commands. Connections and
// Codec are nil unless the app was opened with keys.
type app struct {
	store     *config.Store
	registry  *connector.Registry
	tenant    tenant.Context
	logger    *slog.Logger
	directory *service.Directory
	resolver  *service.CredentialResolver
	issuer    *service.TokenIssuer
	grants    *service.GrantService

	connections *service.ConnectionService
	codec       *service.JWTCodec
}

// openApp opens the store and builds the services. When withKeys is set the
// project key is loaded and checked against the store.
func openApp(withKeys bool) (*app, error) {
	t, err := currentTenant()
	if err != nil {
		return nil, err
	}
	lt, err := lifetimes()
	if err != nil {
		return nil, err
	}
	store, err := openConfigStore()
	if err != nil {
		return nil, err
	}

	logger := newLogger(os.Stderr)
	hasher := service.NewPasswordHasher(viper.GetInt("auth.bcrypt_cost"))
	quota := service.NewQuota(service.StoreLimiter{Counter: store}, quotaLimits())
	resolver := service.NewCredentialResolver(store, store, hasher, logger)
	issuer := service.NewTokenIssuer(store, service.WithIssuerLogger(logger))

	a := &app{
		store:     store,
		registry:  newRegistry(),
		tenant:    t,
		logger:    logger,
		directory: service.NewDirectory(store, hasher, quota),
		resolver:  resolver,
		issuer:    issuer,
		grants:    service.NewGrantService(resolver, service.NewScopeAuthority(store), issuer, lt, logger),
	}

	if withKeys {
		k, err := loadKeys()
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := checkFingerprint(context.Background(), store, k.encryption); err != nil {
			a.Close()
			return nil, err
		}
		a.connections = service.NewConnectionService(store, a.registry, k.encryption, quota, logger)
		a.codec = service.NewJWTCodec(k.signing, "sluice")
	}
	return a, nil
}

// Close releases open pools and the store.
func (a *app) Close() {
	a.registry.CloseAll()
	a.store.Close()
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
