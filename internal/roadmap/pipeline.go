package roadmap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/colonyops/roadmap/internal/core/logging"
)

// Resource names a piece of shared state a stage touches.
type Resource string

const (
	ResourceItems   Resource = "items"
	ResourceEvents  Resource = "events"
	ResourceArchive Resource = "message-archive"
	ResourceCursors Resource = "event-cursors"
	ResourceGithub  Resource = "github"
	ResourceFeed    Resource = "activity-feed"
)

// Stage names.
const (
	StageGithubRefresh   = "github-refresh"
	StageMentionScan     = "mention-scan"
	StageContributorScan = "contributor-scan"
	StageEventScan       = "event-scan"
	StageMentionBackfill = "mention-backfill"
)

// StageResult summarizes one stage of a cycle.
type StageResult struct {
	Name      string `json:"name"`
	Checked   int    `json:"checked"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Conflict  bool   `json:"conflict,omitempty"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsedMs"`
}

// Stage is one step of a cycle together with the state it reads and writes.
type Stage struct {
	Name   string
	Reads  []Resource
	Writes []Resource
	Run    func(ctx context.Context) (StageResult, error)
}

// Report is the outcome of a full cycle. OK is false if any stage errored;
// conflicts alone do not clear it.
type Report struct {
	CycleID   string        `json:"cycleId"`
	OK        bool          `json:"ok"`
	ElapsedMS int64         `json:"elapsedMs"`
	Stages    []StageResult `json:"stages"`
	Timestamp time.Time     `json:"timestamp"`
}

// Stage returns the result of the named stage.
func (r Report) Stage(name string) (StageResult, bool) {
	for _, st := range r.Stages {
		if st.Name == name {
			return st, true
		}
	}
	return StageResult{}, false
}

// Pipeline runs stages one after another. Stages that write the item
// collection must never overlap because every one of them would conflict
// with the others, so there is no concurrent mode.
type Pipeline struct {
	stages []Stage
	log    zerolog.Logger
	now    func() time.Time
}

// NewPipeline validates stages and returns a pipeline running them in order.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	p := &Pipeline{
		stages: stages,
		log:    logging.Component("pipeline"),
		now:    time.Now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every stage has a unique name and a runner.
func (p *Pipeline) Validate() error {
	if len(p.stages) == 0 {
		return fmt.Errorf("pipeline has no stages")
	}

	seen := make(map[string]struct{}, len(p.stages))
	for i, st := range p.stages {
		if st.Name == "" {
			return fmt.Errorf("stage %d: name is required", i)
		}
		if st.Run == nil {
			return fmt.Errorf("stage %q: run is required", st.Name)
		}
		if _, dup := seen[st.Name]; dup {
			return fmt.Errorf("stage %q: duplicate name", st.Name)
		}
		seen[st.Name] = struct{}{}
	}
	return nil
}

// Names returns the stage names in execution order.
func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, st := range p.stages {
		out[i] = st.Name
	}
	return out
}

// Run executes every stage. A failing stage is recorded in the report and
// the following stages still run.
func (p *Pipeline) Run(ctx context.Context) Report {
	started := p.now()
	report := Report{
		CycleID:   "c_" + uuid.NewString()[:8],
		OK:        true,
		Stages:    make([]StageResult, 0, len(p.stages)),
		Timestamp: started.UTC(),
	}
	ctx = logging.WithCycleID(ctx, report.CycleID)

	for _, st := range p.stages {
		stageStart := p.now()
		res, err := runStage(ctx, st)
		res.Name = st.Name
		res.ElapsedMS = p.now().Sub(stageStart).Milliseconds()

		ev := p.log.Info()
		if err != nil {
			res.Error = err.Error()
			report.OK = false
			ev = p.log.Error().Err(err)
		}
		ev.Ctx(ctx).
			Str("stage", st.Name).
			Int("checked", res.Checked).
			Int("updated", res.Updated).
			Int("failed", res.Failed).
			Bool("conflict", res.Conflict).
			Int64("elapsed_ms", res.ElapsedMS).
			Msg("stage finished")

		report.Stages = append(report.Stages, res)
	}

	report.ElapsedMS = p.now().Sub(started).Milliseconds()
	return report
}

// runStage calls st.Run, turning a panic into a stage error so the
// remaining stages still run.
func runStage(ctx context.Context, st Stage) (res StageResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", st.Name, r)
		}
	}()
	return st.Run(ctx)
}

// DefaultStages returns the enrichment cycle: refresh snapshots, scan
// mentions, scan contributors, scan timeline events and finally backfill
// mentions from the event log. With reset the mention counters are
// recomputed from the whole working set.
func (s *Service) DefaultStages(reset bool) []Stage {
	return []Stage{
		{
			Name:   StageGithubRefresh,
			Reads:  []Resource{ResourceItems, ResourceGithub},
			Writes: []Resource{ResourceItems},
			Run:    s.RefreshStale,
		},
		{
			Name:   StageMentionScan,
			Reads:  []Resource{ResourceItems, ResourceFeed, ResourceArchive},
			Writes: []Resource{ResourceItems, ResourceArchive, ResourceEvents},
			Run: func(ctx context.Context) (StageResult, error) {
				return s.ScanMentions(ctx, reset)
			},
		},
		{
			Name:   StageContributorScan,
			Reads:  []Resource{ResourceItems, ResourceGithub},
			Writes: []Resource{ResourceItems, ResourceEvents},
			Run:    s.ScanContributors,
		},
		{
			Name:   StageEventScan,
			Reads:  []Resource{ResourceItems, ResourceGithub, ResourceCursors},
			Writes: []Resource{ResourceItems, ResourceEvents, ResourceCursors},
			Run:    s.ScanEvents,
		},
		{
			Name:   StageMentionBackfill,
			Reads:  []Resource{ResourceItems, ResourceEvents},
			Writes: []Resource{ResourceEvents},
			Run:    s.BackfillMentions,
		},
	}
}

// RunCycle runs the default stages once.
func (s *Service) RunCycle(ctx context.Context, reset bool) (Report, error) {
	p, err := NewPipeline(s.DefaultStages(reset)...)
	if err != nil {
		return Report{}, err
	}
	return p.Run(ctx), nil
}
