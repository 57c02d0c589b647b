package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// ContextHook copies cycle_id and agent from the event's context into the log line.
type ContextHook struct{}

// Run adds contextual fields to the zerolog event.
func (h ContextHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == context.Background() || ctx == nil {
		return
	}

	if id := GetCycleID(ctx); id != "" {
		e.Str("cycle_id", id)
	}

	if addr := GetAgent(ctx); addr != "" {
		e.Str("agent", addr)
	}
}
