package app

import (
	"time"

	"github.com/sitecraft/sitecraft/internal/publisher"
)

// Config aggregates runtime configuration for the application's components.
type Config struct {
	// StorageRoot is the base path where the registry and build store live.
	StorageRoot string

	// ProviderBaseURL is the hosting provider's API base URL. The access
	// token is supplied per deploy request, never held in config.
	ProviderBaseURL string

	// PublisherCfg controls upload concurrency and preview-banner injection.
	PublisherCfg publisher.Config

	// JobRetention is how long finished deploy jobs remain queryable.
	JobRetention time.Duration
}

// DefaultConfig returns a Config populated with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot:  "./data",
		PublisherCfg: publisher.DefaultConfig(),
		JobRetention: time.Hour,
	}
}
