// Package schedule triggers the enrichment cycle on a fixed interval.
package schedule

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/colonyops/roadmap/internal/roadmap"
)

// Runner runs one enrichment cycle.
type Runner interface {
	RunCycle(ctx context.Context, reset bool) (roadmap.Report, error)
}

// Sweeper drops expired entries from the local KV.
type Sweeper interface {
	SweepExpired(ctx context.Context) error
}

// Start runs a cycle right away and then once per interval until ctx is
// cancelled. After every cycle expired KV entries are swept when sweeper
// is non-nil, and onReport (if set) receives the report. Cycles never
// overlap: a tick that arrives while a cycle is running is dropped.
func Start(ctx context.Context, runner Runner, sweeper Sweeper, interval time.Duration, onReport func(roadmap.Report)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runOnce(ctx, runner, sweeper, onReport)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runOnce(ctx context.Context, runner Runner, sweeper Sweeper, onReport func(roadmap.Report)) {
	report, err := runner.RunCycle(ctx, false)
	if err != nil {
		log.Error().Err(err).Msg("scheduled cycle failed")
		return
	}
	if onReport != nil {
		onReport(report)
	}

	if sweeper != nil {
		if err := sweeper.SweepExpired(ctx); err != nil {
			log.Debug().Err(err).Msg("kv sweep failed")
		}
	}
}
