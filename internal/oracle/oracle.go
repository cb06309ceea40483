package oracle

import "context"

// Oracle is the reasoning backend for the memory lifecycle engine. It turns
// raw journal entries into structured memory candidates and proposes
// consolidation plans over a user's active memory set. Implementations must
// be side-effect free — the engine owns all writes.
type Oracle interface {
	ExtractFacts(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
	PlanConsolidation(ctx context.Context, req ConsolidationRequest) (*Plan, error)
}
