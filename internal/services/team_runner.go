package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	teamrepo "github.com/chorusapp/chorus-backend/internal/data/repos/team"
	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/pkg/httpx"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type RunnerConfig struct {
	// MaxTurns bounds the engine loop per specialist, answers included.
	MaxTurns int
	// MaxTurnRetries bounds retries of a transient engine error within one turn.
	MaxTurnRetries int
	// TurnTimeout bounds a single engine call.
	TurnTimeout time.Duration
	// RetryBackoff is the initial backoff between turn retries; it doubles.
	RetryBackoff time.Duration
}

func (c *RunnerConfig) normalize() {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 12
	}
	if c.MaxTurnRetries < 0 {
		c.MaxTurnRetries = 0
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = 3 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

// TeamRunner drives specialists through their turn loops. Every state
// transition is persisted under a per-conversation transaction with the run
// row locked; engine calls happen outside the lock.
type TeamRunner struct {
	db       *gorm.DB
	runs     teamrepo.RunRepo
	engine   AgentEngine
	notifier *TeamNotifier
	cfg      RunnerConfig
	log      *logger.Logger
}

func NewTeamRunner(db *gorm.DB, runs teamrepo.RunRepo, engine AgentEngine, notifier *TeamNotifier, cfg RunnerConfig, log *logger.Logger) *TeamRunner {
	cfg.normalize()
	return &TeamRunner{
		db:       db,
		runs:     runs,
		engine:   engine,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With("service", "TeamRunner"),
	}
}

// errSpecialistPaused flows out of a specialist loop when it asked the user
// a question. It is not a failure.
var errSpecialistPaused = errors.New("specialist paused")

// withRunLock runs fn against the locked run row and persists the mutated
// run in the same transaction.
func (r *TeamRunner) withRunLock(ctx context.Context, conversationID uuid.UUID, fn func(run *types.TeamRun) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		run, err := r.runs.LockByConversationID(dbc, conversationID)
		if err != nil {
			return err
		}
		if run == nil {
			return ErrRunNotFound
		}
		if err := fn(run); err != nil {
			return err
		}
		_, err = r.runs.Save(dbc, run)
		return err
	})
}

// Execute drives the run until it completes, pauses, fails, or ctx is
// canceled. Cancellation stops further work and emission; persisted state
// stays resumable.
func (r *TeamRunner) Execute(ctx context.Context, conversationID uuid.UUID) error {
	log := r.log.With("conversationID", conversationID)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		run, err := r.runs.GetByConversationID(dbctx.Context{Ctx: ctx}, conversationID)
		if err != nil {
			return err
		}
		if run == nil {
			return ErrRunNotFound
		}
		if run.Status == types.TeamRunFailed || run.Status == types.TeamRunCompleted {
			return nil
		}

		specs, err := run.DecodeSpecialists()
		if err != nil {
			return err
		}

		ready := readySpecialists(specs)
		if len(ready) == 0 {
			if anyStatus(specs, types.SpecialistPaused) {
				// Waiting on the user; the answer path resumes execution.
				return nil
			}
			if allCompleted(specs) {
				return r.synthesize(ctx, run)
			}
			// Pending specialists whose dependencies never completed; a
			// paused or failed dependency was handled above, so this is a
			// plan cycle.
			return r.failRun(ctx, conversationID, fmt.Errorf("dependency cycle in plan"))
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, name := range ready {
			name := name
			g.Go(func() error {
				err := r.runSpecialist(gctx, run, name)
				if errors.Is(err, errSpecialistPaused) {
					return nil
				}
				return err
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				log.Info("Run canceled", "error", ctx.Err())
				return ctx.Err()
			}
			return r.failRun(ctx, conversationID, err)
		}
	}
}

// readySpecialists returns agents that may take a turn now: working ones
// (resumed or recovered mid-loop) and pending ones with all dependencies
// completed.
func readySpecialists(specs []types.SpecialistState) []string {
	done := make(map[string]bool, len(specs))
	for i := range specs {
		if specs[i].Status == types.SpecialistCompleted {
			done[specs[i].AgentName] = true
		}
	}
	var out []string
	for i := range specs {
		sp := &specs[i]
		switch sp.Status {
		case types.SpecialistWorking:
			out = append(out, sp.AgentName)
		case types.SpecialistPending:
			ok := true
			for _, dep := range sp.DependsOn {
				if !done[dep] {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, sp.AgentName)
			}
		}
	}
	return out
}

func anyStatus(specs []types.SpecialistState, status types.SpecialistStatus) bool {
	for i := range specs {
		if specs[i].Status == status {
			return true
		}
	}
	return false
}

func allCompleted(specs []types.SpecialistState) bool {
	if len(specs) == 0 {
		return false
	}
	for i := range specs {
		if specs[i].Status != types.SpecialistCompleted {
			return false
		}
	}
	return true
}

func (r *TeamRunner) runSpecialist(ctx context.Context, run *types.TeamRun, agentName string) error {
	log := r.log.With("conversationID", run.ConversationID, "agent", agentName)

	started := false
	var role string
	err := r.withRunLock(ctx, run.ConversationID, func(locked *types.TeamRun) error {
		specs, err := locked.DecodeSpecialists()
		if err != nil {
			return err
		}
		sp := types.Specialist(specs, agentName)
		if sp == nil {
			return fmt.Errorf("%w: %s", ErrSpecialistNotFound, agentName)
		}
		role = sp.Role
		if sp.Status == types.SpecialistPending {
			sp.Status = types.SpecialistWorking
			started = true
		}
		locked.Status = types.DeriveRunStatus(specs)
		return locked.SetSpecialists(specs)
	})
	if err != nil {
		return err
	}
	if started {
		r.notifier.AgentStart(ctx, run.ConversationID, run.ID, agentName, role)
	}

	for turn := 0; turn < r.cfg.MaxTurns; turn++ {
		// Fresh snapshot each turn so collaboration from concurrent peers
		// lands in the shared context.
		current, err := r.runs.GetByConversationID(dbctx.Context{Ctx: ctx}, run.ConversationID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrRunNotFound
		}
		specs, err := current.DecodeSpecialists()
		if err != nil {
			return err
		}
		sp := types.Specialist(specs, agentName)
		if sp == nil {
			return fmt.Errorf("%w: %s", ErrSpecialistNotFound, agentName)
		}
		plan, err := current.DecodePlan()
		if err != nil {
			return err
		}

		in := StepInput{
			ConversationID: current.ConversationID,
			Objective:      plan.Objective,
			AgentName:      sp.AgentName,
			Role:           sp.Role,
			Goal:           sp.Goal,
			Messages:       sp.Messages,
			SharedContext:  current.SharedContext,
		}

		res, err := r.step(ctx, in)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agentName, err)
		}

		if res.Thinking != "" {
			r.notifier.Thinking(ctx, run.ConversationID, run.ID, agentName, res.Thinking)
		}

		var pausedOn string
		err = r.withRunLock(ctx, run.ConversationID, func(locked *types.TeamRun) error {
			specs, dErr := locked.DecodeSpecialists()
			if dErr != nil {
				return dErr
			}
			sp := types.Specialist(specs, agentName)
			if sp == nil {
				return fmt.Errorf("%w: %s", ErrSpecialistNotFound, agentName)
			}
			now := time.Now().UTC()
			if res.Output != "" {
				sp.Messages = append(sp.Messages, types.SpecialistMessage{
					Role: "assistant", Content: res.Output, CreatedAt: now,
				})
				sp.CurrentOutput = res.Output
			}
			if res.Collaboration != "" {
				locked.SharedContext = appendContext(locked.SharedContext,
					fmt.Sprintf("[%s] %s", agentName, res.Collaboration))
			}
			switch {
			case res.Question != "":
				sp.Status = types.SpecialistPaused
				sp.InterruptQuestion = res.Question
				pausedOn = res.Question
			case res.Done:
				sp.Status = types.SpecialistCompleted
				sp.InterruptQuestion = ""
				if sp.CurrentOutput != "" {
					locked.SharedContext = appendContext(locked.SharedContext,
						fmt.Sprintf("[%s] result: %s", agentName, sp.CurrentOutput))
				}
			}
			locked.Status = types.DeriveRunStatus(specs)
			return locked.SetSpecialists(specs)
		})
		if err != nil {
			return err
		}

		if res.Collaboration != "" {
			r.notifier.Collaboration(ctx, run.ConversationID, run.ID, agentName, res.Collaboration)
		}
		if pausedOn != "" {
			r.notifier.Question(ctx, run.ConversationID, run.ID, agentName, pausedOn)
			log.Info("Specialist paused", "question", pausedOn)
			return errSpecialistPaused
		}
		if res.Done {
			r.notifier.AgentComplete(ctx, run.ConversationID, run.ID, agentName, role)
			log.Info("Specialist completed", "turns", turn+1)
			return nil
		}
	}
	return fmt.Errorf("agent %s: exceeded %d turns", agentName, r.cfg.MaxTurns)
}

// step calls the engine with a per-turn timeout, retrying transient errors
// with doubling backoff.
func (r *TeamRunner) step(ctx context.Context, in StepInput) (StepResult, error) {
	backoff := r.cfg.RetryBackoff
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxTurnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return StepResult{}, err
		}
		turnCtx, cancel := context.WithTimeout(ctx, r.cfg.TurnTimeout)
		res, err := r.engine.Step(turnCtx, in)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !httpx.IsRetryableError(err) || attempt == r.cfg.MaxTurnRetries {
			break
		}
		sleep := httpx.JitterSleep(backoff)
		r.log.Warn("Engine step retrying",
			"agent", in.AgentName, "attempt", attempt+1, "sleep", sleep.String(), "error", err.Error())
		select {
		case <-ctx.Done():
			return StepResult{}, ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
	}
	return StepResult{}, lastErr
}

// failRun marks the run failed and records the error in the shared context.
// The failing specialist's own status is left as-is so its history survives
// for inspection.
func (r *TeamRunner) failRun(ctx context.Context, conversationID uuid.UUID, cause error) error {
	// Persist the failure even when the surrounding ctx is going away.
	persistCtx := context.WithoutCancel(ctx)
	err := r.withRunLock(persistCtx, conversationID, func(locked *types.TeamRun) error {
		locked.Status = types.TeamRunFailed
		locked.SharedContext = appendContext(locked.SharedContext,
			fmt.Sprintf("[error] %s", cause.Error()))
		return nil
	})
	if err != nil {
		r.log.Error("Failed to persist run failure", "conversationID", conversationID, "error", err)
	}
	r.log.Error("Run failed", "conversationID", conversationID, "error", cause)
	return cause
}

// synthesize runs the lead's final pass over the specialists' results and
// completes the run.
func (r *TeamRunner) synthesize(ctx context.Context, run *types.TeamRun) error {
	r.notifier.Synthesizing(ctx, run.ConversationID, run.ID)

	plan, err := run.DecodePlan()
	if err != nil {
		return err
	}
	in := StepInput{
		ConversationID: run.ConversationID,
		Objective:      plan.Objective,
		AgentName:      LeadAgent,
		Role:           "lead",
		Goal:           "Synthesize the specialists' results into one final answer for the user.",
		SharedContext:  run.SharedContext,
	}
	res, err := r.step(ctx, in)
	if err != nil {
		return r.failRun(ctx, run.ConversationID, fmt.Errorf("synthesis: %w", err))
	}

	err = r.withRunLock(ctx, run.ConversationID, func(locked *types.TeamRun) error {
		if res.Output != "" {
			locked.SharedContext = appendContext(locked.SharedContext,
				fmt.Sprintf("[%s] final: %s", LeadAgent, res.Output))
		}
		locked.Status = types.TeamRunCompleted
		return nil
	})
	if err != nil {
		return err
	}

	r.notifier.Final(ctx, run.ConversationID, run.ID, true)
	r.log.Info("Run completed", "conversationID", run.ConversationID)
	return nil
}

// Resume applies a user answer to a paused specialist and returns the
// refreshed run. The caller restarts Execute afterwards.
func (r *TeamRunner) Resume(ctx context.Context, conversationID uuid.UUID, agentName, answer string) (*types.TeamRun, error) {
	err := r.withRunLock(ctx, conversationID, func(locked *types.TeamRun) error {
		specs, dErr := locked.DecodeSpecialists()
		if dErr != nil {
			return dErr
		}
		sp := types.Specialist(specs, agentName)
		if sp == nil {
			return fmt.Errorf("%w: %s", ErrSpecialistNotFound, agentName)
		}
		if sp.Status != types.SpecialistPaused {
			return fmt.Errorf("%w: %s is %s", ErrSpecialistNotPaused, agentName, sp.Status)
		}
		sp.Messages = append(sp.Messages, types.SpecialistMessage{
			Role: "user", Content: answer, CreatedAt: time.Now().UTC(),
		})
		sp.InterruptQuestion = ""
		sp.Status = types.SpecialistWorking
		locked.Status = types.DeriveRunStatus(specs)
		return locked.SetSpecialists(specs)
	})
	if err != nil {
		return nil, err
	}
	return r.runs.GetByConversationID(dbctx.Context{Ctx: ctx}, conversationID)
}

func appendContext(existing, entry string) string {
	if existing == "" {
		return entry
	}
	return existing + "\n" + entry
}
