package app

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/platform/openai"
	"github.com/chorusapp/chorus-backend/internal/realtime"
	"github.com/chorusapp/chorus-backend/internal/realtime/bus"
	"github.com/chorusapp/chorus-backend/internal/services"
)

type Services struct {
	OpenAI    openai.Client
	Knowledge services.KnowledgeService
	Planner   services.Planner
	Runner    *services.TeamRunner
	Team      services.TeamService
	Notifier  *services.TeamNotifier
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, hub *realtime.SSEHub, sseBus bus.Bus) (Services, error) {
	log.Info("Wiring services...")

	var emitter services.SSEEmitter
	if sseBus != nil {
		emitter = services.NewBusEmitter(sseBus, log)
	} else {
		emitter = services.NewHubEmitter(hub)
	}
	notifier := services.NewTeamNotifier(emitter, log)

	// The specialist engine needs the model client; the knowledge base
	// degrades gracefully without it but team runs do not.
	aiClient, err := openai.NewClient(log)
	if err != nil {
		if errors.Is(err, openai.ErrCredentialMissing) {
			return Services{}, fmt.Errorf("OPENAI_API_KEY is required: %w", err)
		}
		return Services{}, fmt.Errorf("init openai client: %w", err)
	}

	knowledge := services.NewKnowledgeService(db, repos.KnowledgeDoc, repos.KnowledgeChunk, aiClient, cfg.Knowledge, log)

	// A preset file pins the team composition; otherwise the lead model
	// plans per objective.
	var planner services.Planner
	if cfg.RolePresetsPath != "" {
		roles, pErr := services.LoadRolePresets(cfg.RolePresetsPath)
		if pErr != nil {
			return Services{}, pErr
		}
		planner = services.NewPresetPlanner(roles, log)
	} else {
		planner = services.NewModelPlanner(aiClient, log)
	}

	engine := services.NewModelEngine(aiClient, knowledge, log)
	runner := services.NewTeamRunner(db, repos.TeamRun, engine, notifier, cfg.Runner, log)
	team := services.NewTeamService(db, repos.TeamRun, planner, runner, notifier, log)

	return Services{
		OpenAI:    aiClient,
		Knowledge: knowledge,
		Planner:   planner,
		Runner:    runner,
		Team:      team,
		Notifier:  notifier,
	}, nil
}
