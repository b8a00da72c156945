package realtime

import (
	"time"

	"github.com/google/uuid"
)

type SSEEvent string

const (
	// SSEEventTeamProgress wraps every TeamEvent emitted during a team run.
	SSEEventTeamProgress SSEEvent = "TeamProgress"
)

// SSEMessage is the envelope pushed to SSE clients. Channel is the
// conversation id for team events.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

// TeamEventKind discriminates the team progress event union. Consumers
// switch on Kind; unrecognized payload fields are ignored for forward
// compatibility.
type TeamEventKind string

const (
	TeamEventCreated       TeamEventKind = "created"
	TeamEventThinking      TeamEventKind = "thinking"
	TeamEventAgentStart    TeamEventKind = "agent_start"
	TeamEventAgentComplete TeamEventKind = "agent_complete"
	TeamEventCollaboration TeamEventKind = "collaboration"
	TeamEventSync          TeamEventKind = "sync"
	TeamEventFinal         TeamEventKind = "final"
)

// TeamEvent is one record in the ordered progress stream of a run.
type TeamEvent struct {
	Kind           TeamEventKind `json:"kind"`
	ConversationID uuid.UUID     `json:"conversation_id"`
	RunID          uuid.UUID     `json:"run_id,omitempty"`

	Agent   string `json:"agent,omitempty"`
	Role    string `json:"role,omitempty"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`

	// Thinking overwrites the consumer's latest-per-agent view and is kept
	// out of the step log. Collaboration both overwrites and appends.
	Thinking      string `json:"thinking,omitempty"`
	Collaboration string `json:"collaboration,omitempty"`

	// TeamCreated rides on final: the consumer invalidates its team cache
	// when a team entity was created as a side effect of the run.
	TeamCreated bool `json:"team_created,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
