// Package secrets resolves venue API credentials, from HashiCorp
// Vault when configured and from the environment otherwise.
package secrets

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

const (
	envAPIKey    = "VENUE_API_KEY"
	envAPISecret = "VENUE_API_SECRET"
)

// Config holds Vault connection settings.
type Config struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// DefaultConfig disables Vault and relies on the environment.
func DefaultConfig() Config {
	return Config{
		MountPath:  "secret",
		SecretPath: "fractal-trader",
	}
}

// Credentials are the venue API key pair.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Loader reads credentials from Vault KV v2 with an env fallback.
type Loader struct {
	cfg    Config
	client *api.Client
	logger zerolog.Logger
}

// NewLoader builds a loader. With Vault disabled no connection is made.
func NewLoader(cfg Config, logger zerolog.Logger) (*Loader, error) {
	l := &Loader{
		cfg:    cfg,
		logger: logger.With().Str("component", "Secrets").Logger(),
	}
	if !cfg.Enabled {
		return l, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	l.client = client
	return l, nil
}

// Load resolves the credentials for one network profile. Vault is
// tried first when enabled; missing secrets fall back to env vars so
// a half-configured Vault does not block paper trading.
func (l *Loader) Load(ctx context.Context, network string) (Credentials, error) {
	if l.cfg.Enabled {
		creds, err := l.fromVault(ctx, network)
		if err == nil {
			return creds, nil
		}
		l.logger.Warn().Err(err).Str("network", network).Msg("vault lookup failed, falling back to environment")
	}
	return l.fromEnv()
}

func (l *Loader) fromVault(ctx context.Context, network string) (Credentials, error) {
	path := fmt.Sprintf("%s/data/%s/%s", l.cfg.MountPath, l.cfg.SecretPath, network)

	secret, err := l.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("no secret at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return Credentials{}, fmt.Errorf("unexpected secret format at %s", path)
	}

	creds := Credentials{
		APIKey:    getString(data, "api_key"),
		APISecret: getString(data, "api_secret"),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, fmt.Errorf("incomplete credentials at %s", path)
	}
	return creds, nil
}

func (l *Loader) fromEnv() (Credentials, error) {
	creds := Credentials{
		APIKey:    os.Getenv(envAPIKey),
		APISecret: os.Getenv(envAPISecret),
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, fmt.Errorf("%s and %s are not set", envAPIKey, envAPISecret)
	}
	return creds, nil
}

// Health verifies the Vault connection and seal state.
func (l *Loader) Health() error {
	if !l.cfg.Enabled {
		return nil
	}
	health, err := l.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
