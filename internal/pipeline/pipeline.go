// Package pipeline drives one epoch of the weight engine: fetch campaign
// stats, score miners against adaptive ceilings, apply creator burn, combine
// the campaign vectors, and hand the result to the ledger submitter.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/adgrid-network/weightd/internal/aggregate"
	"github.com/adgrid-network/weightd/internal/burn"
	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
	"github.com/adgrid-network/weightd/internal/observability"
	"github.com/adgrid-network/weightd/internal/percentile"
	"github.com/adgrid-network/weightd/internal/scoring"
	"github.com/adgrid-network/weightd/internal/storage"
	"github.com/adgrid-network/weightd/internal/submit"
)

// Collaborator contracts. Implementations live at the I/O edge; the pipeline
// only sees these interfaces. Errors from any of them degrade the affected
// campaign to zero activity, they never abort the other campaigns.

// StatsProvider supplies each miner's activity over the scoring window.
type StatsProvider interface {
	MinerStats(ctx context.Context, scope string, windowDays int) ([]models.MinerStats, error)
}

// ScopeConfigProvider supplies per-scope scoring parameters.
type ScopeConfigProvider interface {
	ScopeConfig(ctx context.Context, scope string) (models.ScopeConfig, error)
}

// CampaignProvider lists the campaigns to score, snapshotted once per epoch.
type CampaignProvider interface {
	Campaigns(ctx context.Context) ([]models.Campaign, error)
}

// BurnPolicyProvider resolves a scope's burn policy; nil means no burn.
type BurnPolicyProvider interface {
	BurnPolicy(ctx context.Context, scope string) (*models.BurnPolicy, error)
}

// BeneficiaryResolver identifies the burn and fallback target, typically the
// subnet owner hotkey.
type BeneficiaryResolver interface {
	Beneficiary(ctx context.Context) (string, error)
}

// PendingProvider lists miners that registered but have no activity yet;
// they receive a minimum score so they are not starved out immediately.
type PendingProvider interface {
	PendingMiners(ctx context.Context, scope string) ([]string, error)
}

// Providers bundles every collaborator the pipeline consumes. BurnPolicies
// and Pending are optional; the rest must be set.
type Providers struct {
	Stats        StatsProvider
	ScopeConfigs ScopeConfigProvider
	Campaigns    CampaignProvider
	BurnPolicies BurnPolicyProvider
	Beneficiary  BeneficiaryResolver
	Pending      PendingProvider
}

// Pipeline phases, exposed for the status endpoint.
const (
	PhaseIdle        = "idle"
	PhaseFetching    = "fetching"
	PhaseScoring     = "scoring"
	PhaseAggregating = "aggregating"
	PhaseSubmitted   = "submitted"
	PhaseSkipped     = "skipped"
)

// Result summarizes one completed epoch.
type Result struct {
	IterationID     string
	Outcome         string
	Campaigns       int
	CampaignsFailed int
	Weights         map[string]float64
	Beneficiary     string
	Message         string
	Duration        time.Duration
}

// Pipeline runs one epoch at a time. It owns no I/O; everything external
// comes in through Providers and leaves through the Submitter.
type Pipeline struct {
	providers Providers
	tracker   *percentile.Tracker
	store     *storage.Storage
	submitter submit.Submitter
	metrics   *observability.Metrics
	log       *logger.Logger

	// Per-campaign scoring may run in parallel; cap the fan-out.
	maxParallel int

	mu    sync.Mutex
	phase string
}

// New wires a pipeline from its collaborators. metrics may be nil.
func New(providers Providers, tracker *percentile.Tracker, store *storage.Storage, submitter submit.Submitter, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		providers:   providers,
		tracker:     tracker,
		store:       store,
		submitter:   submitter,
		metrics:     metrics,
		log:         logger.Scoped("pipeline"),
		maxParallel: 4,
		phase:       PhaseIdle,
	}
}

// SetMaxParallel caps concurrent campaign scoring. Values below 1 are ignored.
func (p *Pipeline) SetMaxParallel(n int) {
	if n >= 1 {
		p.maxParallel = n
	}
}

// Phase returns the pipeline's current phase.
func (p *Pipeline) Phase() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Pipeline) setPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// Run executes one epoch. It submits at most once and always advances the
// percentile tracker on the way out, so next-epoch smoothing never depends
// on whether this epoch reached the ledger.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		IterationID: uuid.NewString(),
		Outcome:     models.OutcomeSkipped,
	}

	defer p.tracker.Advance()
	defer p.setPhase(PhaseIdle)
	defer func() {
		res.Duration = time.Since(start)
		p.metrics.IterationCompleted(res.Outcome, res.Duration)
	}()

	p.setPhase(PhaseFetching)
	campaigns, err := p.providers.Campaigns.Campaigns(ctx)
	if err != nil {
		p.metrics.ProviderError("campaigns")
		res.Message = fmt.Sprintf("campaign list unavailable: %v", err)
		p.record(res, nil, start)
		return res, fmt.Errorf("failed to list campaigns: %w", err)
	}
	res.Campaigns = len(campaigns)

	beneficiary, err := p.providers.Beneficiary.Beneficiary(ctx)
	if err != nil {
		p.metrics.ProviderError("beneficiary")
		p.log.Warn("Beneficiary unresolved, burn and fallback disabled this epoch: %v", err)
		beneficiary = ""
	}
	res.Beneficiary = beneficiary

	p.setPhase(PhaseScoring)
	vectors := make([]aggregate.CampaignVector, len(campaigns))
	campaignResults := make([]models.CampaignResult, len(campaigns))
	var failed int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxParallel)
	for i, c := range campaigns {
		g.Go(func() error {
			vec, cr, ok := p.scoreCampaign(gctx, res.IterationID, c, beneficiary)
			if !ok {
				atomic.AddInt32(&failed, 1)
				p.metrics.CampaignFailed()
			}
			vectors[i] = vec
			campaignResults[i] = cr
			return nil
		})
	}
	_ = g.Wait() // scoring errors are isolated per campaign, never propagated
	res.CampaignsFailed = int(failed)

	// A campaign is in the aggregate when it declared a split, or when no
	// campaign declared one and the uniform fallback applies.
	anyDeclared := false
	for _, c := range campaigns {
		if c.EmissionSplit != nil {
			anyDeclared = true
			break
		}
	}
	for i, c := range campaigns {
		campaignResults[i].Included = c.EmissionSplit != nil || !anyDeclared
	}

	p.setPhase(PhaseAggregating)
	final, err := aggregate.Combine(vectors, beneficiary)
	if err != nil {
		res.Message = err.Error()
		p.setPhase(PhaseSkipped)
		p.record(res, campaignResults, start)
		return res, fmt.Errorf("failed to aggregate weights: %w", err)
	}
	res.Weights = final
	p.metrics.ObserveAggregate(final, beneficiary)

	// An interrupted epoch must not submit a partial vector; aggregation is
	// complete here, but the cancellation still wins.
	if ctx.Err() != nil {
		res.Message = "epoch cancelled before submission"
		p.setPhase(PhaseSkipped)
		p.record(res, campaignResults, start)
		return res, ctx.Err()
	}

	msg, submitErr := p.submitter.Submit(ctx, &submit.Submission{
		IterationID: res.IterationID,
		Weights:     final,
		Campaigns:   len(campaigns),
		Beneficiary: beneficiary,
	})
	p.metrics.SubmissionResult(submitErr == nil)

	if submitErr != nil {
		res.Message = submitErr.Error()
		p.setPhase(PhaseSkipped)
		p.record(res, campaignResults, start)
		return res, fmt.Errorf("submission failed: %w", submitErr)
	}

	res.Outcome = models.OutcomeSubmitted
	res.Message = msg
	p.setPhase(PhaseSubmitted)
	p.record(res, campaignResults, start)
	return res, nil
}

// scoreCampaign produces one campaign's burn-adjusted weight vector. Any
// collaborator failure degrades to zero activity for this campaign only; ok
// reports whether the campaign scored cleanly.
func (p *Pipeline) scoreCampaign(ctx context.Context, iterID string, c models.Campaign, beneficiary string) (aggregate.CampaignVector, models.CampaignResult, bool) {
	vec := aggregate.CampaignVector{
		Scope:       c.Scope,
		MechanismID: c.MechanismID,
		Split:       c.EmissionSplit,
		Weights:     map[string]float64{},
	}
	cr := models.CampaignResult{
		IterationID: iterID,
		Scope:       c.Scope,
		MechanismID: c.MechanismID,
		Weights:     map[string]float64{},
	}

	if err := c.Validate(); err != nil {
		p.log.Warn("Campaign %s rejected: %v", c.Scope, err)
		return vec, cr, false
	}

	ok := true
	cfg, err := p.providers.ScopeConfigs.ScopeConfig(ctx, c.Scope)
	if err != nil {
		p.metrics.ProviderError("scope_config")
		p.log.Warn("Config for %s unavailable, using defaults: %v", c.Scope, err)
		cfg = models.DefaultScopeConfig(c.Scope)
	}
	if err := cfg.Validate(); err != nil {
		p.log.Warn("Config for %s invalid, using defaults: %v", c.Scope, err)
		cfg = models.DefaultScopeConfig(c.Scope)
	}

	stats, err := p.providers.Stats.MinerStats(ctx, c.Scope, cfg.WindowDays)
	if err != nil {
		p.metrics.ProviderError("miner_stats")
		p.log.Warn("Stats for %s unavailable, scoring as zero activity: %v", c.Scope, err)
		stats = nil
		ok = false
	}

	thresholds := p.tracker.Effective(c.Scope, stats, cfg.Thresholds)
	results := scoring.ScoreMany(stats, thresholds, scoring.ParamsFrom(cfg))
	p.metrics.MinersScored(c.Scope, len(results))

	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.MinerID] = r.Score
		cr.TotalScore += r.Score
	}
	cr.MinersScored = len(results)

	p.applyPendingFloor(ctx, c.Scope, cfg, scores)

	weights := burn.Normalize(scores)

	pct, burnBeneficiary := p.resolveBurn(ctx, c.Scope, cfg, beneficiary)
	cr.BurnPct = pct
	if pct > 0 {
		if burnBeneficiary == "" {
			// Fail soft: an unresolved beneficiary skips the burn, it never
			// kills the campaign.
			p.log.Warn("Burn of %.1f%% on %s skipped: no beneficiary", pct, c.Scope)
			cr.BurnPct = 0
		} else {
			weights = burn.Redistribute(weights, burnBeneficiary, pct)
		}
	}

	vec.Weights = weights
	cr.Weights = weights
	return vec, cr, ok
}

// applyPendingFloor raises newly registered miners to the configured minimum
// score so a miner with no sales yet is not immediately deregistered.
func (p *Pipeline) applyPendingFloor(ctx context.Context, scope string, cfg models.ScopeConfig, scores map[string]float64) {
	if p.providers.Pending == nil || cfg.PendingMinScore <= 0 {
		return
	}
	pending, err := p.providers.Pending.PendingMiners(ctx, scope)
	if err != nil {
		p.metrics.ProviderError("pending_miners")
		p.log.Warn("Pending miners for %s unavailable: %v", scope, err)
		return
	}
	for _, id := range pending {
		if scores[id] < cfg.PendingMinScore {
			scores[id] = cfg.PendingMinScore
		}
	}
}

// resolveBurn returns the burn percentage and beneficiary for a scope. The
// scope config's explicit percentage wins; otherwise the burn policy
// provider is consulted. Zero means no burn.
func (p *Pipeline) resolveBurn(ctx context.Context, scope string, cfg models.ScopeConfig, fallbackBeneficiary string) (float64, string) {
	if cfg.BurnPercentage != nil {
		return *cfg.BurnPercentage, fallbackBeneficiary
	}
	if p.providers.BurnPolicies == nil {
		return 0, fallbackBeneficiary
	}
	policy, err := p.providers.BurnPolicies.BurnPolicy(ctx, scope)
	if err != nil {
		p.metrics.ProviderError("burn_policy")
		p.log.Warn("Burn policy for %s unavailable, skipping burn: %v", scope, err)
		return 0, fallbackBeneficiary
	}
	if policy == nil {
		return 0, fallbackBeneficiary
	}
	beneficiary := policy.BeneficiaryID
	if beneficiary == "" {
		beneficiary = fallbackBeneficiary
	}
	return policy.Percentage, beneficiary
}

// record writes the iteration audit row; a storage failure costs history,
// never the epoch.
func (p *Pipeline) record(res *Result, campaignResults []models.CampaignResult, start time.Time) {
	rec := &models.IterationRecord{
		ID:              res.IterationID,
		StartedAt:       start,
		FinishedAt:      time.Now(),
		Outcome:         res.Outcome,
		Campaigns:       res.Campaigns,
		CampaignsFailed: res.CampaignsFailed,
		Submitted:       res.Outcome == models.OutcomeSubmitted,
		Message:         res.Message,
	}
	if err := p.store.RecordIteration(rec, campaignResults); err != nil {
		p.log.Warn("Failed to record iteration %s: %v", res.IterationID, err)
	}
}
