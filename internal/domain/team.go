package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TeamRunStatus string

const (
	TeamRunInProgress TeamRunStatus = "in_progress"
	TeamRunPaused     TeamRunStatus = "paused"
	TeamRunCompleted  TeamRunStatus = "completed"
	TeamRunFailed     TeamRunStatus = "failed"
)

type SpecialistStatus string

const (
	SpecialistPending   SpecialistStatus = "pending"
	SpecialistWorking   SpecialistStatus = "working"
	SpecialistCompleted SpecialistStatus = "completed"
	SpecialistPaused    SpecialistStatus = "paused"
)

// SpecialistMessage is one turn in a specialist's reasoning history.
type SpecialistMessage struct {
	Role      string    `json:"role"` // user | assistant | tool
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SpecialistState is embedded in TeamRun.Specialists as JSON. Messages are
// append-only; resuming a paused specialist requires the full history.
// InterruptQuestion is set iff Status == paused.
type SpecialistState struct {
	AgentName         string              `json:"agent_name"`
	Role              string              `json:"role"`
	Goal              string              `json:"goal,omitempty"`
	DependsOn         []string            `json:"depends_on,omitempty"`
	Status            SpecialistStatus    `json:"status"`
	Messages          []SpecialistMessage `json:"messages,omitempty"`
	CurrentOutput     string              `json:"current_output,omitempty"`
	InterruptQuestion string              `json:"interrupt_question,omitempty"`
}

// PlanRole is one role in the coordinator's plan.
type PlanRole struct {
	AgentName string   `json:"agent_name"`
	Role      string   `json:"role"`
	Goal      string   `json:"goal"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// LeadPlan is the coordinator's decomposition of the user objective.
type LeadPlan struct {
	Objective string     `json:"objective"`
	Roles     []PlanRole `json:"roles"`
}

// TeamRun is the durable state of one orchestration run. Exactly one row
// exists per conversation; writes upsert on conversation_id.
type TeamRun struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"conversation_id"`
	ParentMessageID uuid.UUID      `gorm:"type:uuid" json:"parent_message_id"`
	Status          TeamRunStatus  `gorm:"type:text;not null" json:"status"`
	LeadPlan        datatypes.JSON `gorm:"column:lead_plan" json:"lead_plan,omitempty"`
	Specialists     datatypes.JSON `gorm:"column:specialists" json:"specialists,omitempty"`
	SharedContext   string         `gorm:"column:shared_context;type:text" json:"shared_context,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;index" json:"updated_at"`
}

func (TeamRun) TableName() string { return "team_run" }

func (r *TeamRun) DecodePlan() (LeadPlan, error) {
	var plan LeadPlan
	if len(r.LeadPlan) == 0 {
		return plan, nil
	}
	if err := json.Unmarshal(r.LeadPlan, &plan); err != nil {
		return plan, fmt.Errorf("decode lead plan: %w", err)
	}
	return plan, nil
}

func (r *TeamRun) SetPlan(plan LeadPlan) error {
	b, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode lead plan: %w", err)
	}
	r.LeadPlan = datatypes.JSON(b)
	return nil
}

func (r *TeamRun) DecodeSpecialists() ([]SpecialistState, error) {
	if len(r.Specialists) == 0 {
		return nil, nil
	}
	var specs []SpecialistState
	if err := json.Unmarshal(r.Specialists, &specs); err != nil {
		return nil, fmt.Errorf("decode specialists: %w", err)
	}
	return specs, nil
}

func (r *TeamRun) SetSpecialists(specs []SpecialistState) error {
	b, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("encode specialists: %w", err)
	}
	r.Specialists = datatypes.JSON(b)
	return nil
}

// Specialist returns a pointer into specs for the named agent, or nil.
func Specialist(specs []SpecialistState, agentName string) *SpecialistState {
	for i := range specs {
		if specs[i].AgentName == agentName {
			return &specs[i]
		}
	}
	return nil
}

// DeriveRunStatus computes the run-level status from specialist states:
// paused if any specialist is paused, completed if all are completed,
// otherwise in_progress. Failed is assigned explicitly, never derived.
func DeriveRunStatus(specs []SpecialistState) TeamRunStatus {
	if len(specs) == 0 {
		return TeamRunInProgress
	}
	allCompleted := true
	for i := range specs {
		switch specs[i].Status {
		case SpecialistPaused:
			return TeamRunPaused
		case SpecialistCompleted:
		default:
			allCompleted = false
		}
	}
	if allCompleted {
		return TeamRunCompleted
	}
	return TeamRunInProgress
}
