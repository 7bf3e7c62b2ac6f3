package embedder

import (
	"fmt"

	"semsync/internal/config"
)

// New builds the configured provider wrapped in the LRU cache.
func New(cfg config.EmbedderConfig) (Embedder, error) {
	var (
		provider Embedder
		err      error
	)

	switch cfg.Provider {
	case ProviderOpenAI:
		provider, err = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case ProviderOllama:
		provider, err = NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderLocal:
		provider, err = NewLocalProvider()
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProviderEnabled, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", cfg.Provider, err)
	}

	return NewCached(provider, cfg.CacheSize), nil
}
