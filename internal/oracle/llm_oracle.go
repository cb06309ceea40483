package oracle

import (
	"context"
	"fmt"
	"log"

	"github.com/memoirlabs/memoir/internal/llm"
)

// LLMOracle implements Oracle on top of an llm.Client.
type LLMOracle struct {
	client llm.Client
}

// NewLLMOracle wraps an LLM client as an oracle.
func NewLLMOracle(client llm.Client) *LLMOracle {
	return &LLMOracle{client: client}
}

// ExtractFacts asks the model for memory candidates from one journal entry.
func (o *LLMOracle) ExtractFacts(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	resp, err := o.client.Complete(ctx, ExtractionPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("extraction completion: %w", err)
	}

	var parsed struct {
		IsExplicitRequest bool        `json:"is_explicit_request"`
		Candidates        []Candidate `json:"candidates"`
	}
	if err := extractJSONObject(resp.Content, &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	if len(parsed.Candidates) > maxCandidatesPerEntry {
		log.Printf("extraction: capping %d candidates to %d for user %s",
			len(parsed.Candidates), maxCandidatesPerEntry, req.UserID)
		parsed.Candidates = parsed.Candidates[:maxCandidatesPerEntry]
	}

	return &ExtractionResult{
		Candidates:        parsed.Candidates,
		IsExplicitRequest: parsed.IsExplicitRequest,
		TokensUsed:        resp.TokensUsed,
	}, nil
}

// PlanConsolidation asks the model for a plan shrinking the active set.
func (o *LLMOracle) PlanConsolidation(ctx context.Context, req ConsolidationRequest) (*Plan, error) {
	resp, err := o.client.Complete(ctx, ConsolidationPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("consolidation completion: %w", err)
	}

	var plan Plan
	if err := extractJSONObject(resp.Content, &plan); err != nil {
		return nil, fmt.Errorf("parse consolidation response: %w", err)
	}
	plan.TokensUsed = resp.TokensUsed
	return &plan, nil
}
