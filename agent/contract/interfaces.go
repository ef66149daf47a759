package contract

import "context"

type Decider interface {
	Decide(ctx context.Context, req DecisionRequest) (Decision, error)
}

type ToolGateway interface {
	Execute(ctx context.Context, session Session, action Action) (ToolResult, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, question string, k int, minScore float64) ([]RetrievedChunk, error)
}

// Notifier announces domain events. key identifies the subject of the event
// (a booking id); the same topic and key describe the same event.
type Notifier interface {
	Notify(ctx context.Context, topic, key string, payload any) error
}
