package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/flemzord/toolgate/internal/config"
	"github.com/flemzord/toolgate/internal/provider"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/modules/provider/anthropic"
	"github.com/flemzord/toolgate/modules/provider/openaicompat"
)

// buildProviders creates the failover chain. It returns nil when no
// provider is configured: FORMALIZE and model review are then unavailable.
// API keys found along the way are added to creds for redaction.
func buildProviders(cfg config.ProviderConfig, creds *security.CredentialStore, logger *slog.Logger) (*provider.Chain, error) {
	if len(cfg.Chain) == 0 {
		return nil, nil
	}

	entries := make([]provider.ChainEntry, 0, len(cfg.Chain))
	for _, e := range cfg.Chain {
		c, err := buildProvider(e, creds, logger.With("provider", e.Name))
		if err != nil {
			return nil, err
		}
		entries = append(entries, provider.ChainEntry{Name: e.Name, Completer: c})
	}

	opts := []provider.ChainOption{provider.WithLogger(logger)}
	if cfg.Cooldown > 0 {
		opts = append(opts, provider.WithCooldown(cfg.Cooldown))
	}
	return provider.NewChain(entries, opts...)
}

func buildProvider(e config.ProviderEntry, creds *security.CredentialStore, logger *slog.Logger) (provider.Completer, error) {
	switch e.Type {
	case config.ProviderAnthropic:
		var pc anthropic.Config
		if err := decodeNode(e, &pc); err != nil {
			return nil, err
		}
		rememberKey(creds, e.Name, pc.APIKey, pc.APIKeyEnv, "ANTHROPIC_API_KEY")
		return anthropic.New(pc, logger)
	case config.ProviderOpenAICompatible:
		var pc openaicompat.Config
		if err := decodeNode(e, &pc); err != nil {
			return nil, err
		}
		rememberKey(creds, e.Name, pc.APIKey, pc.APIKeyEnv, "OPENAI_API_KEY")
		return openaicompat.New(pc, logger)
	default:
		return nil, fmt.Errorf("provider %s: unknown type %q", e.Name, e.Type)
	}
}

func decodeNode(e config.ProviderEntry, out any) error {
	if e.Config.Kind == 0 {
		return nil
	}
	if err := e.Config.Decode(out); err != nil {
		return fmt.Errorf("provider %s: decode config: %w", e.Name, err)
	}
	return nil
}

func rememberKey(creds *security.CredentialStore, name, literal, envName, fallbackEnv string) {
	if literal != "" {
		creds.Set(name+"_api_key", literal)
		return
	}
	if envName != "" && os.Getenv(envName) != "" {
		creds.SetFromEnv(envName)
		return
	}
	creds.SetFromEnv(fallbackEnv)
}
