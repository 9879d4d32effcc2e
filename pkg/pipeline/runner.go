package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Makar0n1/art-automation/pkg/bus"
	"github.com/Makar0n1/art-automation/pkg/log"
	"github.com/Makar0n1/art-automation/pkg/metrics"
	"github.com/Makar0n1/art-automation/pkg/storage"
	"github.com/Makar0n1/art-automation/pkg/types"
)

const (
	questionDelay = 300 * time.Millisecond
	blockDelay    = 500 * time.Millisecond

	// Used when no SERP entry produced a usable word count.
	defaultWordCount = 2000
)

// Event names published to a generation's room.
const (
	EventLog       = "generation:log"
	EventStatus    = "generation:status"
	EventBlocks    = "generation:blocks"
	EventCompleted = "generation:completed"
	EventError     = "generation:error"
)

// Runner drives one generation through the seven-stage pipeline. A Runner
// is shared by all workers in a process; per-job state lives in the job
// value passed between stages.
type Runner struct {
	store   storage.Store
	bus     bus.Publisher
	clients ClientFactory

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// New creates a runner.
func New(store storage.Store, publisher bus.Publisher, clients ClientFactory) *Runner {
	return &Runner{
		store:   store,
		bus:     publisher,
		clients: clients,
		sleep:   time.Sleep,
	}
}

// job carries the per-run state the stage functions share.
type job struct {
	gen    *types.Generation
	user   *types.User
	set    *ClientSet
	logger zerolog.Logger
}

type stage struct {
	name  string
	run   func(*Runner, context.Context, *job) error
	pause types.GenerationStatus // empty for stages that never pause
}

// Stage order is fixed; the skip table below indexes into it.
var stages = []stage{
	{name: "serp", run: (*Runner).runSERP, pause: types.StatusPausedAfterSerp},
	{name: "structure", run: (*Runner).runStructure, pause: types.StatusPausedAfterStructure},
	{name: "enrichment", run: (*Runner).runEnrichment, pause: types.StatusPausedAfterBlocks},
	{name: "answers", run: (*Runner).runAnswers, pause: types.StatusPausedAfterAnswers},
	{name: "writing", run: (*Runner).runWriting, pause: types.StatusPausedAfterWriting},
	{name: "links", run: (*Runner).runLinks},
	{name: "review", run: (*Runner).runReview, pause: types.StatusPausedAfterReview},
}

// resumeIndex maps a pause state to the index of the first stage still to
// run. Resuming from the last pause point runs nothing and completes.
var resumeIndex = map[types.GenerationStatus]int{
	types.StatusPausedAfterSerp:      1,
	types.StatusPausedAfterStructure: 2,
	types.StatusPausedAfterBlocks:    3,
	types.StatusPausedAfterAnswers:   4,
	types.StatusPausedAfterWriting:   5,
	types.StatusPausedAfterReview:    len(stages),
}

// Run executes the pipeline for one queue message. The returned error is
// the queue layer's retry signal; terminal state is already persisted
// before Run returns.
func (r *Runner) Run(ctx context.Context, msg types.QueueMessage) error {
	gen, err := r.store.GetGeneration(msg.GenerationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger := log.WithGenerationID(msg.GenerationID)
			logger.Warn().Msg("generation vanished before pickup, dropping")
			return nil
		}
		return err
	}
	user, err := r.store.GetUser(msg.UserID)
	if err != nil {
		return err
	}
	set, err := r.clients(user)
	if err != nil {
		return err
	}

	j := &job{
		gen:    gen,
		user:   user,
		set:    set,
		logger: log.WithGenerationID(gen.ID),
	}

	start := 0
	if msg.ContinueFrom != "" {
		idx, ok := resumeIndex[msg.ContinueFrom]
		if !ok {
			j.logger.Warn().Str("continue_from", string(msg.ContinueFrom)).Msg("unknown resume point, starting from scratch")
		} else {
			start = idx
		}
	}

	// Fresh runs pass through processing; resumes go straight to the next
	// stage's status so statuses never re-enter within a job.
	now := time.Now().UTC()
	if err := r.persist(j, func(g *types.Generation) {
		g.Error = ""
		if start == 0 {
			g.Status = types.StatusProcessing
			if g.StartedAt == nil {
				g.StartedAt = &now
			}
		}
	}); err != nil {
		return err
	}
	if start == 0 {
		r.emitStatus(ctx, j)
	}

	for i := start; i < len(stages); i++ {
		st := stages[i]
		stageStart := time.Now()
		err := st.run(r, ctx, j)
		metrics.StageDuration.WithLabelValues(st.name).Observe(time.Since(stageStart).Seconds())
		if err != nil {
			return r.fail(ctx, j, err)
		}

		if st.pause != "" && !j.gen.Continuous {
			return r.pause(ctx, j, st.pause)
		}
	}

	return r.complete(ctx, j)
}

func (r *Runner) pause(ctx context.Context, j *job, state types.GenerationStatus) error {
	if err := r.persist(j, func(g *types.Generation) {
		g.Status = state
	}); err != nil {
		return err
	}
	r.emitStatus(ctx, j)
	r.appendLog(ctx, j, types.LogInfo, "Generation paused, waiting for continue", nil)
	metrics.GenerationsTotal.WithLabelValues(string(state)).Inc()
	j.logger.Info().Str("status", string(state)).Msg("generation paused")
	return nil
}

func (r *Runner) complete(ctx context.Context, j *job) error {
	now := time.Now().UTC()
	if err := r.persist(j, func(g *types.Generation) {
		g.Status = types.StatusCompleted
		g.Progress = 100
		g.CurrentStep = ""
		g.CompletedAt = &now
	}); err != nil {
		return err
	}
	r.emitStatus(ctx, j)
	r.appendLog(ctx, j, types.LogInfo, "Generation completed", nil)
	metrics.GenerationsTotal.WithLabelValues(string(types.StatusCompleted)).Inc()
	r.bus.Publish(ctx, types.GenerationRoom(j.gen.ID), EventCompleted, map[string]any{
		"generationId":   j.gen.ID,
		"article":        j.gen.Article,
		"seoTitle":       j.gen.SEOTitle,
		"seoDescription": j.gen.SEODescription,
	})
	if j.set.LLM != nil {
		usage := j.set.LLM.GetTokenUsage(false)
		j.logger.Info().
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Msg("generation completed")
	} else {
		j.logger.Info().Msg("generation completed")
	}
	return nil
}

// fail records the terminal failure and returns the original error so the
// queue layer can apply its retry policy.
func (r *Runner) fail(ctx context.Context, j *job, cause error) error {
	r.appendLog(ctx, j, types.LogError, cause.Error(), nil)
	if err := r.persist(j, func(g *types.Generation) {
		g.Status = types.StatusFailed
		g.Error = cause.Error()
	}); err != nil {
		j.logger.Error().Err(err).Msg("failed to persist failure state")
	}
	r.emitStatus(ctx, j)
	r.bus.Publish(ctx, types.GenerationRoom(j.gen.ID), EventError, map[string]any{
		"generationId": j.gen.ID,
		"error":        cause.Error(),
	})
	metrics.GenerationsTotal.WithLabelValues(string(types.StatusFailed)).Inc()
	j.logger.Error().Err(cause).Msg("generation failed")
	return cause
}

// persist applies one mutation to both the stored record and the local
// copy. The store is the source of truth; the local copy only feeds later
// stages and emissions.
func (r *Runner) persist(j *job, mutate func(*types.Generation)) error {
	if err := r.store.UpdateGeneration(j.gen.ID, func(g *types.Generation) error {
		mutate(g)
		return nil
	}); err != nil {
		return err
	}
	mutate(j.gen)
	return nil
}

// setStatus persists an active-status transition and emits it.
func (r *Runner) setStatus(ctx context.Context, j *job, status types.GenerationStatus, progress int, step string) error {
	if err := r.persist(j, func(g *types.Generation) {
		g.Status = status
		if progress > g.Progress {
			g.Progress = progress
		}
		g.CurrentStep = step
	}); err != nil {
		return err
	}
	r.emitStatus(ctx, j)
	return nil
}

// setProgress bumps progress without a status change. Progress never
// regresses within a run.
func (r *Runner) setProgress(ctx context.Context, j *job, progress int) error {
	if progress <= j.gen.Progress {
		return nil
	}
	if err := r.persist(j, func(g *types.Generation) {
		if progress > g.Progress {
			g.Progress = progress
		}
	}); err != nil {
		return err
	}
	r.emitStatus(ctx, j)
	return nil
}

func (r *Runner) emitStatus(ctx context.Context, j *job) {
	r.bus.Publish(ctx, types.GenerationRoom(j.gen.ID), EventStatus, map[string]any{
		"generationId": j.gen.ID,
		"status":       j.gen.Status,
		"progress":     j.gen.Progress,
	})
}

// appendLog appends one entry to the job's event log and publishes it. Log
// appends and status updates are independent writes on purpose.
func (r *Runner) appendLog(ctx context.Context, j *job, level types.LogLevel, message string, data map[string]any) {
	entry := types.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Data:      data,
	}
	if err := r.store.AppendLog(j.gen.ID, entry); err != nil {
		j.logger.Error().Err(err).Msg("failed to append generation log")
	}
	j.gen.Logs = append(j.gen.Logs, entry)
	r.bus.Publish(ctx, types.GenerationRoom(j.gen.ID), EventLog, map[string]any{
		"generationId": j.gen.ID,
		"log":          entry,
	})
}

func (r *Runner) emitBlocks(ctx context.Context, j *job) {
	r.bus.Publish(ctx, types.GenerationRoom(j.gen.ID), EventBlocks, map[string]any{
		"generationId": j.gen.ID,
		"blocks":       j.gen.ArticleBlocks,
	})
}
