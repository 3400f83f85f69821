package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/vault/api"

	"forex-signal-engine/internal/logging"
)

// ErrSecretNotFound is returned when no key is stored for a provider
var ErrSecretNotFound = errors.New("secret not found")

// Config holds Vault configuration
type Config struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" default:"false"`
	Address    string `yaml:"address" json:"address" default:"http://127.0.0.1:8200" validate:"required_if=Enabled true"`
	Token      string `yaml:"token" json:"-"`
	MountPath  string `yaml:"mount_path" json:"mountPath" default:"secret"`
	SecretPath string `yaml:"secret_path" json:"secretPath" default:"forex-signal-engine/providers"`
	TLSEnabled bool   `yaml:"tls_enabled" json:"tlsEnabled"`
	CACert     string `yaml:"ca_cert" json:"caCert"`
}

// ProviderKey is the credential of one AI provider, stored as a KV v2 secret
type ProviderKey struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model,omitempty"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled keys live in the local cache only.
type Client struct {
	client *api.Client
	config Config
	mu     sync.RWMutex
	cache  map[string]*ProviderKey
	logger *logging.Logger
}

// NewClient creates a new Vault client
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		config: cfg,
		cache:  make(map[string]*ProviderKey),
		logger: logging.WithComponent("vault"),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address
	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
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

// StoreProviderKey writes a provider key
func (c *Client) StoreProviderKey(ctx context.Context, key ProviderKey) error {
	provider := normalise(key.Provider)
	key.Provider = provider

	if c.config.Enabled {
		payload := map[string]interface{}{
			"data": map[string]interface{}{
				"provider": key.Provider,
				"api_key":  key.APIKey,
				"model":    key.Model,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(provider), payload); err != nil {
			return fmt.Errorf("failed to store provider key in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cache[provider] = &key
	c.mu.Unlock()
	return nil
}

// GetProviderKey reads a provider key, serving repeated lookups from the cache
func (c *Client) GetProviderKey(ctx context.Context, provider string) (*ProviderKey, error) {
	provider = normalise(provider)

	c.mu.RLock()
	cached, ok := c.cache[provider]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if !c.config.Enabled {
		return nil, fmt.Errorf("%s: %w", provider, ErrSecretNotFound)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider key from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%s: %w", provider, ErrSecretNotFound)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	key := &ProviderKey{
		Provider: provider,
		APIKey:   getString(data, "api_key"),
		Model:    getString(data, "model"),
	}
	if key.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", provider, ErrSecretNotFound)
	}

	c.mu.Lock()
	c.cache[provider] = key
	c.mu.Unlock()
	c.logger.Debug("Loaded provider key", "provider", provider)
	return key, nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*ProviderKey)
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path of a provider key
func (c *Client) secretPath(provider string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, provider)
}

func normalise(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
