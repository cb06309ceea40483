package oracle

import (
	"context"
	"sync"
)

// MockOracle is a test double for the Oracle interface. It records requests
// and returns canned results. Safe for concurrent use.
type MockOracle struct {
	ExtractResult *ExtractionResult
	ExtractErr    error
	PlanResult    *Plan
	PlanErr       error

	mu           sync.Mutex
	ExtractCalls []ExtractionRequest
	PlanCalls    []ConsolidationRequest
}

func (m *MockOracle) ExtractFacts(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	m.mu.Lock()
	m.ExtractCalls = append(m.ExtractCalls, req)
	m.mu.Unlock()
	if m.ExtractErr != nil {
		return nil, m.ExtractErr
	}
	if m.ExtractResult == nil {
		return &ExtractionResult{}, nil
	}
	return m.ExtractResult, nil
}

func (m *MockOracle) PlanConsolidation(ctx context.Context, req ConsolidationRequest) (*Plan, error) {
	m.mu.Lock()
	m.PlanCalls = append(m.PlanCalls, req)
	m.mu.Unlock()
	if m.PlanErr != nil {
		return nil, m.PlanErr
	}
	if m.PlanResult == nil {
		return &Plan{}, nil
	}
	return m.PlanResult, nil
}
