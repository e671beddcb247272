package nodes

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Prober keeps node health fresh on a fixed interval, independent of payment
// traffic, so failover decisions stay current even when no sessions are
// polling.
type Prober struct {
	registry *Registry
	interval time.Duration
	logger   zerolog.Logger
}

func NewProber(registry *Registry, interval time.Duration, logger zerolog.Logger) *Prober {
	return &Prober{
		registry: registry,
		interval: interval,
		logger:   logger.With().Str("component", "node_prober").Logger(),
	}
}

// Run probes all nodes once immediately and then on every tick until the
// context is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	p.probeAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Node prober stopped")
			return ctx.Err()
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, node := range p.registry.Descriptors() {
		node := node
		group.Go(func() error {
			if err := p.registry.Probe(groupCtx, node); err != nil {
				p.logger.Debug().
					Err(err).
					Str("node", node.Name).
					Msg("Health probe failed")
			}
			// A dead node must not stop probing of its siblings.
			return nil
		})
	}

	_ = group.Wait()

	stats := p.registry.Statistics()
	p.logger.Debug().
		Int("healthy", stats.HealthyCount).
		Int("total", stats.TotalNodes).
		Msg("Probe sweep completed")
}
