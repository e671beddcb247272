package nodes

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bootarou/xympay-sub000/internal/domain"
	"github.com/bootarou/xympay-sub000/pkg/config"
)

// HealthProber performs one liveness probe against a node.
type HealthProber interface {
	ProbeHealth(ctx context.Context, node domain.NodeDescriptor) error
}

// Registry owns the configured Symbol REST endpoints and their health
// records. Callers ask for the active node immediately before every RPC and
// report every real call outcome back, so health reflects live traffic, not
// just synthetic probes.
type Registry struct {
	mu        sync.RWMutex
	nodes     []*nodeState
	threshold int
	cooldown  time.Duration

	totalCalls  uint64
	totalErrors uint64

	prober HealthProber
	logger zerolog.Logger
}

type nodeState struct {
	descriptor        domain.NodeDescriptor
	healthy           bool
	lastCheckedAt     time.Time
	lastResponseTime  time.Duration
	consecutiveErrors int
	lastError         string
}

func NewRegistry(cfg config.NodesConfig, prober HealthProber, logger zerolog.Logger) *Registry {
	states := make([]*nodeState, 0, len(cfg.Endpoints))
	for _, endpoint := range cfg.Endpoints {
		states = append(states, &nodeState{
			descriptor: domain.NodeDescriptor{
				URL:      endpoint.URL,
				Name:     endpoint.Name,
				Priority: endpoint.Priority,
				Timeout:  endpoint.Timeout,
				Region:   endpoint.Region,
			},
			// Optimistic until the first failure; the background prober
			// corrects this within one interval.
			healthy: true,
		})
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].descriptor.Priority < states[j].descriptor.Priority
	})

	return &Registry{
		nodes:     states,
		threshold: cfg.UnhealthyThreshold,
		cooldown:  cfg.ProbeCooldown,
		prober:    prober,
		logger:    logger.With().Str("component", "node_registry").Logger(),
	}
}

// GetActiveNode returns the healthy node with the lowest priority number. If
// none is healthy it sweeps all nodes with an immediate out-of-band probe, in
// priority order, and returns the first that responds. Unhealthy nodes probed
// less than a cooldown ago are skipped by the sweep.
func (r *Registry) GetActiveNode(ctx context.Context) (domain.NodeDescriptor, error) {
	r.mu.RLock()
	for _, state := range r.nodes {
		if state.healthy {
			node := state.descriptor
			r.mu.RUnlock()
			return node, nil
		}
	}

	candidates := make([]domain.NodeDescriptor, 0, len(r.nodes))
	for _, state := range r.nodes {
		if time.Since(state.lastCheckedAt) < r.cooldown {
			continue
		}
		candidates = append(candidates, state.descriptor)
	}
	r.mu.RUnlock()

	for _, node := range candidates {
		if err := r.Probe(ctx, node); err != nil {
			continue
		}
		r.logger.Info().
			Str("node", node.Name).
			Msg("Node recovered during emergency sweep")
		return node, nil
	}

	return domain.NodeDescriptor{}, domain.ErrNoNodeAvailable
}

// ReportOutcome records the result of one real RPC attempt against a node.
// Every caller of the Symbol client must call it after every attempt.
func (r *Registry) ReportOutcome(node domain.NodeDescriptor, success bool, responseTime time.Duration, callErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.lookup(node.URL)
	if state == nil {
		return
	}

	r.totalCalls++
	state.lastCheckedAt = time.Now()
	state.lastResponseTime = responseTime

	if success {
		if !state.healthy {
			r.logger.Info().
				Str("node", state.descriptor.Name).
				Msg("Node back to healthy")
		}
		state.healthy = true
		state.consecutiveErrors = 0
		state.lastError = ""
		return
	}

	r.totalErrors++
	state.consecutiveErrors++
	if callErr != nil {
		state.lastError = callErr.Error()
	}

	if state.healthy && state.consecutiveErrors >= r.threshold {
		state.healthy = false
		r.logger.Warn().
			Str("node", state.descriptor.Name).
			Int("consecutive_errors", state.consecutiveErrors).
			Str("last_error", state.lastError).
			Msg("Node marked unhealthy")
	}
}

// Probe runs one health probe against a node and feeds the outcome into the
// health record.
func (r *Registry) Probe(ctx context.Context, node domain.NodeDescriptor) error {
	start := time.Now()
	err := r.prober.ProbeHealth(ctx, node)
	r.ReportOutcome(node, err == nil, time.Since(start), err)
	return err
}

// HealthSnapshot returns a copy of every node's health record, in priority
// order.
func (r *Registry) HealthSnapshot() []domain.NodeHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make([]domain.NodeHealth, 0, len(r.nodes))
	for _, state := range r.nodes {
		snapshot = append(snapshot, domain.NodeHealth{
			Node:              state.descriptor,
			Healthy:           state.healthy,
			LastCheckedAt:     state.lastCheckedAt,
			LastResponseTime:  state.lastResponseTime,
			ConsecutiveErrors: state.consecutiveErrors,
			LastError:         state.lastError,
		})
	}
	return snapshot
}

// Statistics summarizes registry-wide call outcomes.
func (r *Registry) Statistics() domain.NodeStatistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := 0
	for _, state := range r.nodes {
		if state.healthy {
			healthy++
		}
	}

	uptime := 1.0
	if r.totalCalls > 0 {
		uptime = float64(r.totalCalls-r.totalErrors) / float64(r.totalCalls)
	}

	return domain.NodeStatistics{
		TotalNodes:   len(r.nodes),
		HealthyCount: healthy,
		TotalErrors:  r.totalErrors,
		TotalCalls:   r.totalCalls,
		UptimeRatio:  uptime,
	}
}

// Descriptors returns the configured nodes in priority order.
func (r *Registry) Descriptors() []domain.NodeDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]domain.NodeDescriptor, 0, len(r.nodes))
	for _, state := range r.nodes {
		descriptors = append(descriptors, state.descriptor)
	}
	return descriptors
}

// lookup requires r.mu held.
func (r *Registry) lookup(url string) *nodeState {
	for _, state := range r.nodes {
		if state.descriptor.URL == url {
			return state
		}
	}
	return nil
}
