package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arc-eval/core/internal/canon"
	"github.com/arc-eval/core/internal/cost"
)

// Pair is one (scenario, output) unit of judge work.
type Pair struct {
	Scenario canon.Scenario
	Output   canon.AgentOutput
}

// Runtime batches judge calls over a bounded worker pool, retries
// transient failures with backoff, enforces a shared cost budget, and
// optionally re-evaluates judgments with a second judge for verification.
type Runtime struct {
	client LLMClient
	policy ModelPolicy
	budget *cost.Budget
	tokens *cost.TokenCounter
	logger *slog.Logger
}

// NewRuntime builds a Runtime. budget may be nil, in which case an
// unlimited budget is used.
func NewRuntime(client LLMClient, policy ModelPolicy, budget *cost.Budget, logger *slog.Logger) *Runtime {
	if budget == nil {
		budget = cost.NewBudget(policy.MaxCostPerRun)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		client: client,
		policy: policy,
		budget: budget,
		tokens: cost.NewTokenCounter(),
		logger: logger.With("component", "judge.Runtime"),
	}
}

// EvaluatePairs evaluates every pair with cap using a judge of the given
// variant, preserving input order in the returned slice. A pair refused
// for cost reasons yields a warning Judgment with "cost_cap_exceeded"
// evidence rather than being dropped, so the caller always gets one
// Judgment per input pair.
func (r *Runtime) EvaluatePairs(ctx context.Context, variant Variant, pairs []Pair) []canon.Judgment {
	parallelism := r.policy.MaxParallelism
	if parallelism <= 0 {
		parallelism = 4
	}
	judge := NewVariant(variant)
	results := make([]canon.Judgment, len(pairs))

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	for i, pair := range pairs {
		select {
		case <-ctx.Done():
			results[i] = cancelledJudgment(pair.Scenario)
			continue
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, pair Pair) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.evaluateOne(ctx, judge, pair, len(pairs))
		}(i, pair)
	}
	wg.Wait()

	if r.policy.VerifyEnabled {
		r.verify(ctx, judge, pairs, results)
	}
	return results
}

func (r *Runtime) evaluateOne(ctx context.Context, j Capability, pair Pair, batchSize int) canon.Judgment {
	model := r.policy.SelectModel(batchSize, pair.Scenario.Severity)
	system, user := j.BuildPrompt(pair.Scenario, pair.Output)

	projected := cost.CalculateCost(model, r.tokens.CountRequestTokens([]byte(user+system)), 256)
	if !r.budget.Reserve(projected) {
		r.logger.Warn("cost cap exceeded, refusing judge call", "scenario_id", pair.Scenario.ID)
		return canon.Judgment{
			ScenarioID: pair.Scenario.ID,
			Decision:   canon.DecisionWarning,
			Confidence: 0,
			Reasoning:  "evaluation skipped: cost cap would be exceeded",
			Evidence:   []string{"cost_cap_exceeded"},
			Severity:   pair.Scenario.Severity,
		}
	}

	completion, parsed, actualCost := r.callWithRetry(ctx, model, system, user)
	r.budget.Spend(actualCost)

	return canon.Judgment{
		ScenarioID:                 pair.Scenario.ID,
		Decision:                   parsed.Decision,
		Confidence:                 calibrateConfidence(parsed),
		Reasoning:                  parsed.Reasoning,
		Evidence:                   parsed.Evidence,
		RewardSignals:              j.ExtractRewardSignals(pair.Scenario, pair.Output, parsed),
		ImprovementRecommendations: j.SuggestImprovements(pair.Scenario, parsed),
		Cost:                       actualCost,
		Model:                      model,
		Logprobs:                   parsed.Logprobs,
		Severity:                   pair.Scenario.Severity,
		BiasTelemetry:              marshalBias(completion.Text, string(parsed.Decision)),
	}
}

func marshalBias(raw, decision string) json.RawMessage {
	if raw == "" {
		return nil
	}
	b, err := json.Marshal(computeBiasMetrics(raw, decision))
	if err != nil {
		return nil
	}
	return b
}

// callWithRetry retries transient provider errors up to twice with
// exponential backoff. Non-transient errors (auth, malformed request) fail
// fast and are folded into the never-erroring robust-parse heuristic
// fallback so the caller still gets a usable Judgment.
func (r *Runtime) callWithRetry(ctx context.Context, model, system, user string) (Completion, ParsedResponse, float64) {
	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= 2; attempt++ {
		completion, err := r.client.Complete(ctx, model, system, user)
		if err == nil {
			parsed := RobustParse(completion.Text)
			parsed.Logprobs = completion.Logprobs
			inTok := r.tokens.CountRequestTokens([]byte(user + system))
			outTok := r.tokens.CountRequestTokens([]byte(completion.Text))
			actualCost := cost.CalculateCost(model, inTok, outTok)
			return completion, parsed, actualCost
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
		r.logger.Warn("transient judge call failure, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			return Completion{}, heuristicFallback(fmt.Sprintf("call cancelled: %v", lastErr)), 0
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	r.logger.Error("judge call failed", "error", lastErr)
	return Completion{}, heuristicFallback(fmt.Sprintf("call failed: %v", lastErr)), 0
}

// calibrateConfidence prefers logprob-derived certainty (the highest
// decision-token logprob, i.e. the most likely decision) when the provider
// exposed decision-token logprobs, falling back to the judge's clamped
// self-reported confidence otherwise.
func calibrateConfidence(parsed ParsedResponse) float64 {
	if len(parsed.Logprobs) == 0 {
		return clamp01(parsed.Confidence)
	}
	var maxLP float64 = -1e9
	for _, lp := range parsed.Logprobs {
		if lp > maxLP {
			maxLP = lp
		}
	}
	// log-probability close to 0 means near-certain; very negative means
	// uncertain. expClamp maps it to 0.9^steps, one step per 0.1 of
	// negative logprob and at most 10 steps (so never below about 0.35),
	// and the result is blended with the self-reported value rather than
	// overriding it outright.
	calibrated := expClamp(maxLP)
	return clamp01((calibrated + parsed.Confidence) / 2)
}

func expClamp(logprob float64) float64 {
	if logprob > 0 {
		logprob = 0
	}
	v := 1.0
	for i := 0; i < int(-logprob*10) && i < 10; i++ {
		v *= 0.9
	}
	return v
}

func cancelledJudgment(scenario canon.Scenario) canon.Judgment {
	return canon.Judgment{
		ScenarioID: scenario.ID,
		Decision:   canon.DecisionWarning,
		Confidence: 0,
		Reasoning:  "evaluation cancelled before this scenario ran",
		Evidence:   []string{"cancelled"},
		Severity:   scenario.Severity,
	}
}

// verify re-evaluates each judgment with a second, independent judge call
// and resolves disagreement by weighted consensus: the judgment with
// higher confidence wins; an exact tie resolves to warning rather than
// silently picking one side.
func (r *Runtime) verify(ctx context.Context, j Capability, pairs []Pair, results []canon.Judgment) {
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			second := r.evaluateOne(ctx, j, pairs[i], len(pairs))
			results[i].Verification = reconcile(&results[i], &second)
		}(i)
	}
	wg.Wait()
}

// reconcile applies weighted-consensus conflict resolution between a
// primary and secondary judgment for the same pair, mutating primary's
// decision in place when the secondary wins or the pair disagrees.
func reconcile(primary, secondary *canon.Judgment) *canon.VerificationSummary {
	delta := secondary.Confidence - primary.Confidence
	if primary.Decision == secondary.Decision {
		return &canon.VerificationSummary{Verified: true, ConfidenceDelta: delta}
	}
	switch {
	case primary.Confidence > secondary.Confidence:
		return &canon.VerificationSummary{
			Verified:        false,
			ConfidenceDelta: delta,
			IssuesFound:     []string{fmt.Sprintf("secondary judge disagreed (%s, confidence %.2f), primary kept", secondary.Decision, secondary.Confidence)},
		}
	case secondary.Confidence > primary.Confidence:
		issues := []string{fmt.Sprintf("secondary judge disagreed (%s, confidence %.2f), overriding primary (%s, confidence %.2f)", secondary.Decision, secondary.Confidence, primary.Decision, primary.Confidence)}
		primary.Decision = secondary.Decision
		primary.Confidence = secondary.Confidence
		primary.Reasoning = secondary.Reasoning
		return &canon.VerificationSummary{Verified: false, ConfidenceDelta: delta, IssuesFound: issues}
	default:
		// exact tie: neither side wins, decision downgrades to warning.
		primary.Decision = canon.DecisionWarning
		return &canon.VerificationSummary{
			Verified:        false,
			ConfidenceDelta: 0,
			IssuesFound:     []string{"primary and secondary judges tied at equal confidence with differing decisions; downgraded to warning"},
		}
	}
}
