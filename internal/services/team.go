package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	teamrepo "github.com/chorusapp/chorus-backend/internal/data/repos/team"
	types "github.com/chorusapp/chorus-backend/internal/domain"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
	"github.com/chorusapp/chorus-backend/internal/platform/dbctx"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
)

type StartRunInput struct {
	ConversationID  uuid.UUID
	ParentMessageID uuid.UUID
	Objective       string
}

// TeamService is the public surface of the team feature: start/replace a run,
// answer a paused specialist, inspect, cancel, clear.
type TeamService interface {
	StartRun(ctx context.Context, in StartRunInput) (*types.TeamRun, error)
	Get(ctx context.Context, conversationID uuid.UUID) (*types.TeamRun, error)
	Answer(ctx context.Context, conversationID uuid.UUID, agentName, answer string) (*types.TeamRun, error)
	Cancel(ctx context.Context, conversationID uuid.UUID) bool
	Clear(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type teamService struct {
	db       *gorm.DB
	runs     teamrepo.RunRepo
	planner  Planner
	runner   *TeamRunner
	notifier *TeamNotifier
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]*runHandle
}

type runHandle struct {
	cancel context.CancelFunc
}

func NewTeamService(db *gorm.DB, runs teamrepo.RunRepo, planner Planner, runner *TeamRunner, notifier *TeamNotifier, log *logger.Logger) TeamService {
	return &teamService{
		db:       db,
		runs:     runs,
		planner:  planner,
		runner:   runner,
		notifier: notifier,
		log:      log.With("service", "TeamService"),
		cancels:  make(map[uuid.UUID]*runHandle),
	}
}

// StartRun replaces any existing run for the conversation: the in-flight
// execution is canceled, clients get a sync reset, then the new plan is
// seeded and executed asynchronously.
func (s *teamService) StartRun(ctx context.Context, in StartRunInput) (*types.TeamRun, error) {
	if in.ConversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(in.Objective) == "" {
		return nil, fmt.Errorf("%w: missing objective", pkgerrors.ErrInvalidArgument)
	}

	if s.cancelInFlight(in.ConversationID) {
		s.notifier.Sync(ctx, in.ConversationID)
	}

	// Planning happens before any row is written so a planner failure
	// leaves no half-initialized run behind.
	plan, err := s.planner.BuildPlan(ctx, in.Objective)
	if err != nil {
		return nil, err
	}

	specs := make([]types.SpecialistState, len(plan.Roles))
	for i, role := range plan.Roles {
		specs[i] = types.SpecialistState{
			AgentName: role.AgentName,
			Role:      role.Role,
			Goal:      role.Goal,
			DependsOn: role.DependsOn,
			Status:    types.SpecialistPending,
		}
	}

	run := &types.TeamRun{
		ConversationID:  in.ConversationID,
		ParentMessageID: in.ParentMessageID,
		Status:          types.TeamRunInProgress,
	}
	if err := run.SetPlan(plan); err != nil {
		return nil, err
	}
	if err := run.SetSpecialists(specs); err != nil {
		return nil, err
	}
	saved, err := s.runs.Save(dbctx.Context{Ctx: ctx}, run)
	if err != nil {
		return nil, err
	}

	s.notifier.Created(ctx, saved.ConversationID, saved.ID)
	s.notifier.Planned(ctx, saved.ConversationID, saved.ID, plan)

	s.launch(saved.ConversationID)
	return saved, nil
}

func (s *teamService) Get(ctx context.Context, conversationID uuid.UUID) (*types.TeamRun, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	return s.runs.GetByConversationID(dbctx.Context{Ctx: ctx}, conversationID)
}

// Answer resumes a paused specialist with the user's reply and restarts
// execution.
func (s *teamService) Answer(ctx context.Context, conversationID uuid.UUID, agentName, answer string) (*types.TeamRun, error) {
	if conversationID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(agentName) == "" {
		return nil, fmt.Errorf("%w: missing agent_name", pkgerrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: missing answer", pkgerrors.ErrInvalidArgument)
	}

	run, err := s.runner.Resume(ctx, conversationID, agentName, answer)
	if err != nil {
		return nil, err
	}

	s.cancelInFlight(conversationID)
	s.launch(conversationID)
	return run, nil
}

// Cancel stops an in-flight execution. Persisted state is untouched and
// stays resumable. Returns whether anything was running.
func (s *teamService) Cancel(_ context.Context, conversationID uuid.UUID) bool {
	return s.cancelInFlight(conversationID)
}

// Clear cancels any execution, deletes the run row, and resets clients.
func (s *teamService) Clear(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	if conversationID == uuid.Nil {
		return 0, fmt.Errorf("%w: missing conversation_id", pkgerrors.ErrInvalidArgument)
	}
	s.cancelInFlight(conversationID)
	n, err := s.runs.Clear(dbctx.Context{Ctx: ctx}, conversationID)
	if err != nil {
		return 0, err
	}
	s.notifier.Sync(ctx, conversationID)
	return n, nil
}

// launch runs Execute in the background under a cancel func registered for
// the conversation. The incoming request context must not govern the run's
// lifetime.
func (s *teamService) launch(conversationID uuid.UUID) {
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{cancel: cancel}

	s.mu.Lock()
	s.cancels[conversationID] = handle
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			// A replacement run may have installed its own handle already.
			if s.cancels[conversationID] == handle {
				delete(s.cancels, conversationID)
			}
			s.mu.Unlock()
		}()
		if err := s.runner.Execute(runCtx, conversationID); err != nil && runCtx.Err() == nil {
			s.log.Error("Run execution ended with error", "conversationID", conversationID, "error", err)
		}
	}()
}

func (s *teamService) cancelInFlight(conversationID uuid.UUID) bool {
	s.mu.Lock()
	handle, ok := s.cancels[conversationID]
	if ok {
		delete(s.cancels, conversationID)
	}
	s.mu.Unlock()
	if ok {
		handle.cancel()
	}
	return ok
}
