package exchange

import (
	"fmt"
	"log/slog"

	"hermes/internal/config"
)

// NewClient creates a new exchange client based on the given name and configuration.
func NewClient(name string, logger *slog.Logger, cfg config.UpstreamConfig) (ExchangeClient, error) {
	switch name {
	case "uphold":
		return NewUpholdClient(logger, cfg.BaseURL, cfg.APIKey, cfg.Timeout), nil
	case "stream":
		if cfg.StreamURL == "" {
			return nil, fmt.Errorf("exchange %s: stream_url is required", name)
		}
		return NewStreamClient(logger, cfg.StreamURL, cfg.Quotes), nil
	default:
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
}
