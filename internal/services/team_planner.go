package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	pkgerrors "github.com/chorusapp/chorus-backend/internal/pkg/errors"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/platform/openai"
)

// Planner decomposes a user objective into specialist roles. The plan is
// opaque to the store; the runner reads role order and dependencies only.
type Planner interface {
	BuildPlan(ctx context.Context, objective string) (types.LeadPlan, error)
}

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"roles": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_name": map[string]any{"type": "string"},
					"role":       map[string]any{"type": "string"},
					"goal":       map[string]any{"type": "string"},
					"depends_on": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required":             []string{"agent_name", "role", "goal", "depends_on"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"roles"},
	"additionalProperties": false,
}

type modelPlanner struct {
	client openai.Client
	log    *logger.Logger
}

func NewModelPlanner(client openai.Client, log *logger.Logger) Planner {
	return &modelPlanner{client: client, log: log.With("service", "ModelPlanner")}
}

func (p *modelPlanner) BuildPlan(ctx context.Context, objective string) (types.LeadPlan, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return types.LeadPlan{}, fmt.Errorf("%w: missing objective", pkgerrors.ErrInvalidArgument)
	}

	system := "You are the lead of a small team of specialist agents. " +
		"Decompose the user's objective into 2-4 specialist roles with short lowercase agent names. " +
		"Use depends_on only when one role genuinely needs another's output."

	obj, err := p.client.GenerateJSON(ctx, system, objective, "team_plan", planSchema)
	if err != nil {
		return types.LeadPlan{}, fmt.Errorf("build plan: %w", err)
	}

	plan := types.LeadPlan{Objective: objective}
	rawRoles, _ := obj["roles"].([]any)
	for _, raw := range rawRoles {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		role := types.PlanRole{
			AgentName: strings.TrimSpace(stringField(m, "agent_name")),
			Role:      stringField(m, "role"),
			Goal:      stringField(m, "goal"),
		}
		if deps, ok := m["depends_on"].([]any); ok {
			for _, d := range deps {
				if s, ok := d.(string); ok && strings.TrimSpace(s) != "" {
					role.DependsOn = append(role.DependsOn, strings.TrimSpace(s))
				}
			}
		}
		if role.AgentName != "" {
			plan.Roles = append(plan.Roles, role)
		}
	}
	return sanitizePlan(plan)
}

// sanitizePlan enforces unique agent names and prunes dependencies that do
// not resolve to a planned role.
func sanitizePlan(plan types.LeadPlan) (types.LeadPlan, error) {
	if len(plan.Roles) == 0 {
		return plan, fmt.Errorf("plan has no roles")
	}
	seen := make(map[string]bool, len(plan.Roles))
	roles := plan.Roles[:0]
	for _, r := range plan.Roles {
		if seen[r.AgentName] {
			continue
		}
		seen[r.AgentName] = true
		roles = append(roles, r)
	}
	for i := range roles {
		deps := roles[i].DependsOn[:0]
		for _, d := range roles[i].DependsOn {
			if seen[d] && d != roles[i].AgentName {
				deps = append(deps, d)
			}
		}
		roles[i].DependsOn = deps
	}
	plan.Roles = roles
	return plan, nil
}

// -------------------- Preset fallback --------------------

type rolePresetFile struct {
	Roles []types.PlanRole `yaml:"roles"`
}

// LoadRolePresets reads a YAML role list used when no model is configured.
func LoadRolePresets(path string) ([]types.PlanRole, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role presets: %w", err)
	}
	var f rolePresetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse role presets: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("role presets: no roles in %s", path)
	}
	return f.Roles, nil
}

type presetPlanner struct {
	roles []types.PlanRole
	log   *logger.Logger
}

// NewPresetPlanner plans every objective with a fixed role list.
func NewPresetPlanner(roles []types.PlanRole, log *logger.Logger) Planner {
	return &presetPlanner{roles: roles, log: log.With("service", "PresetPlanner")}
}

func (p *presetPlanner) BuildPlan(_ context.Context, objective string) (types.LeadPlan, error) {
	objective = strings.TrimSpace(objective)
	if objective == "" {
		return types.LeadPlan{}, fmt.Errorf("%w: missing objective", pkgerrors.ErrInvalidArgument)
	}
	roles := make([]types.PlanRole, len(p.roles))
	copy(roles, p.roles)
	for i := range roles {
		if roles[i].Goal == "" {
			roles[i].Goal = objective
		}
	}
	return sanitizePlan(types.LeadPlan{Objective: objective, Roles: roles})
}
