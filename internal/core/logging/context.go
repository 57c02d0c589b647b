package logging

import "context"

type contextKey string

const (
	cycleIDKey contextKey = "cycle_id"
	agentKey   contextKey = "agent"
)

// WithCycleID tags the context with the id of the refresh cycle it belongs to.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// WithAgent tags the context with the address of the acting agent.
func WithAgent(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, agentKey, address)
}

// GetCycleID returns the refresh cycle id, or "".
func GetCycleID(ctx context.Context) string {
	if id, ok := ctx.Value(cycleIDKey).(string); ok {
		return id
	}
	return ""
}

// GetAgent returns the acting agent address, or "".
func GetAgent(ctx context.Context) string {
	if addr, ok := ctx.Value(agentKey).(string); ok {
		return addr
	}
	return ""
}
