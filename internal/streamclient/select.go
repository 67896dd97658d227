package streamclient

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CapabilityProbe reports whether the server streams and its suggested poll interval.
type CapabilityProbe interface {
	Capabilities(ctx context.Context) (streaming bool, pollInterval time.Duration, err error)
}

// Select returns a streaming Client when the server supports it and a Poller otherwise.
// A failed probe falls back to streaming; the Client's reconnect loop covers an unreachable server.
func Select(ctx context.Context, probe CapabilityProbe, fetch SnapshotFetcher, cfg Config) Subscriber {
	if probe == nil {
		return NewClient(cfg)
	}
	streaming, interval, err := probe.Capabilities(ctx)
	if err != nil {
		if cfg.Logger != nil {
			cfg.Logger.Warn("capability probe failed; using stream", zap.Error(err))
		}
		return NewClient(cfg)
	}
	if streaming || fetch == nil {
		return NewClient(cfg)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = interval
	}
	return NewPoller(cfg, fetch)
}
