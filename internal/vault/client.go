// Package vault provides optional secret retrieval from HashiCorp Vault.
// When Vault is disabled, all lookups fall back to environment variables.
package vault

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hashicorp/vault/api"
)

// Config holds Vault connection settings
type Config struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
	TLSEnabled bool
	CACert     string
}

// Secrets holds the sensitive values the engine needs at startup. No
// Binance secret key: the client only reads public market data, the
// API key alone buys the higher request limits.
type Secrets struct {
	BinanceAPIKey    string
	JWTSecret        string
	TelegramBotToken string
	DiscordWebhook   string
}

// Client wraps the HashiCorp Vault client with an in-process cache
type Client struct {
	client *api.Client
	config Config

	mu    sync.RWMutex
	cache map[string]string
}

// NewClient creates a new Vault client. A disabled config returns a client
// that serves lookups from environment variables only.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]string),
	}

	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	return c, nil
}

// GetSecret returns the named secret field. Vault is consulted first when
// enabled; otherwise, or when the field is absent, envFallback is read.
func (c *Client) GetSecret(ctx context.Context, field, envFallback string) (string, error) {
	c.mu.RLock()
	if v, ok := c.cache[field]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	if c.config.Enabled {
		value, err := c.readField(ctx, field)
		if err != nil {
			return "", err
		}
		if value != "" {
			c.mu.Lock()
			c.cache[field] = value
			c.mu.Unlock()
			return value, nil
		}
	}

	return os.Getenv(envFallback), nil
}

// LoadSecrets fetches all engine secrets in one pass
func (c *Client) LoadSecrets(ctx context.Context) (*Secrets, error) {
	s := &Secrets{}

	pairs := []struct {
		dst   *string
		field string
		env   string
	}{
		{&s.BinanceAPIKey, "binance_api_key", "BINANCE_API_KEY"},
		{&s.JWTSecret, "jwt_secret", "JWT_SECRET"},
		{&s.TelegramBotToken, "telegram_bot_token", "TELEGRAM_BOT_TOKEN"},
		{&s.DiscordWebhook, "discord_webhook", "DISCORD_WEBHOOK_URL"},
	}

	for _, p := range pairs {
		value, err := c.GetSecret(ctx, p.field, p.env)
		if err != nil {
			return nil, fmt.Errorf("failed to load secret %s: %w", p.field, err)
		}
		*p.dst = value
	}

	return s, nil
}

func (c *Client) readField(ctx context.Context, field string) (string, error) {
	mount := c.config.MountPath
	if mount == "" {
		mount = "secret"
	}
	path := c.config.SecretPath
	if path == "" {
		path = "signal-engine"
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, fmt.Sprintf("%s/data/%s", mount, path))
	if err != nil {
		return "", fmt.Errorf("failed to read secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", nil
	}

	// KV v2 wraps the payload in a "data" map
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("invalid secret format at %s/%s", mount, path)
	}

	if v, ok := data[field].(string); ok {
		return v, nil
	}
	return "", nil
}
