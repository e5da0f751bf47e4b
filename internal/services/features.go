package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aspire/internal/feature"
	"aspire/internal/metrics"
)

const (
	PricingFlat    = "flat"
	PricingMetered = "metered"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GenerateRequest struct {
	AccountID   string
	Feature     feature.Type
	Prompt      string
	Description string
}

type GenerateResult struct {
	Feature          feature.Type `json:"feature"`
	Content          string       `json:"content"`
	Charged          int64        `json:"tokensCharged"`
	RemainingBalance int64        `json:"remainingBalance"`
	InputTokens      int64        `json:"inputTokens,omitempty"`
	OutputTokens     int64        `json:"outputTokens,omitempty"`
}

// FeatureRunner charges for a feature only after its generation succeeded. The balance
// is checked against the catalog price before the generator is called.
type FeatureRunner struct {
	ledger    *Ledger
	costs     *CostRegistry
	generator Generator
	meter     *UsageMeter
	pricing   string
	logger    *slog.Logger
}

func NewFeatureRunner(ledger *Ledger, costs *CostRegistry, generator Generator, meter *UsageMeter, pricing string, logger *slog.Logger) *FeatureRunner {
	if pricing != PricingMetered {
		pricing = PricingFlat
	}
	return &FeatureRunner{
		ledger:    ledger,
		costs:     costs,
		generator: generator,
		meter:     meter,
		pricing:   pricing,
		logger:    logger,
	}
}

func (r *FeatureRunner) Run(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if req.AccountID == "" {
		return GenerateResult{}, ErrUnauthenticated
	}
	if !req.Feature.Priced() {
		return GenerateResult{}, feature.ErrUnknownFeature
	}
	cost := r.costs.GetCost(ctx, req.Feature)
	ok, err := r.ledger.CheckBalance(ctx, req.AccountID, cost)
	if err != nil {
		return GenerateResult{}, err
	}
	if !ok {
		metrics.DebitRejections.WithLabelValues("precheck").Inc()
		return GenerateResult{}, ErrInsufficientTokens
	}

	content, err := r.generator.Generate(ctx, req.Prompt)
	if err != nil {
		metrics.Generations.WithLabelValues(req.Feature.String(), "failed").Inc()
		r.logger.Error("generation failed", "account_id", req.AccountID, "feature", req.Feature.String(), "error", err)
		return GenerateResult{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	description := req.Description
	if description == "" {
		if price, ok := feature.Default(req.Feature); ok {
			description = price.Description
		}
	}
	charge := cost
	var usage Usage
	if r.pricing == PricingMetered {
		usage = r.meter.Estimate(req.Prompt, content)
		charge = usage.Total
		if usage.Defaulted {
			r.logger.Warn("usage estimate unavailable, charging default", "feature", req.Feature.String(), "charge", charge)
			description = fmt.Sprintf("%s (default token count)", description)
		} else {
			description = fmt.Sprintf("%s (%d input + %d output tokens)", description, usage.InputTokens, usage.OutputTokens)
		}
	}

	debit, err := r.ledger.Debit(ctx, DebitRequest{
		AccountID:   req.AccountID,
		Amount:      charge,
		Description: description,
		Feature:     req.Feature,
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientTokens) {
			r.logger.Warn("balance drained during generation, withholding content", "account_id", req.AccountID, "feature", req.Feature.String(), "charge", charge)
		}
		metrics.Generations.WithLabelValues(req.Feature.String(), "unbilled").Inc()
		return GenerateResult{}, err
	}
	metrics.Generations.WithLabelValues(req.Feature.String(), "ok").Inc()
	return GenerateResult{
		Feature:          req.Feature,
		Content:          content,
		Charged:          charge,
		RemainingBalance: debit.RemainingBalance,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
	}, nil
}
