package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/realtime"
)

// LeadAgent names the coordinator in progress events.
const LeadAgent = "lead"

// TeamNotifier builds and emits the team progress stream. The SSE channel is
// the conversation id, so clients subscribe per conversation.
type TeamNotifier struct {
	emitter SSEEmitter
	log     *logger.Logger
}

func NewTeamNotifier(emitter SSEEmitter, log *logger.Logger) *TeamNotifier {
	return &TeamNotifier{
		emitter: emitter,
		log:     log.With("component", "TeamNotifier"),
	}
}

func (n *TeamNotifier) emit(ctx context.Context, ev realtime.TeamEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	n.emitter.Emit(ctx, realtime.SSEMessage{
		Channel: ev.ConversationID.String(),
		Event:   realtime.SSEEventTeamProgress,
		Data:    ev,
	})
}

func (n *TeamNotifier) Created(ctx context.Context, conversationID, runID uuid.UUID) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventCreated,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          LeadAgent,
		Action:         "analyzing",
		Message:        "Assembling a team for this objective",
	})
}

func (n *TeamNotifier) Planned(ctx context.Context, conversationID, runID uuid.UUID, plan types.LeadPlan) {
	names := make([]string, 0, len(plan.Roles))
	for _, role := range plan.Roles {
		names = append(names, role.AgentName)
	}
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventCollaboration,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          LeadAgent,
		Action:         "planned",
		Message:        fmt.Sprintf("Team assembled: %s", strings.Join(names, ", ")),
	})
}

func (n *TeamNotifier) AgentStart(ctx context.Context, conversationID, runID uuid.UUID, agent, role string) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventAgentStart,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          agent,
		Role:           role,
		Action:         "working",
	})
}

func (n *TeamNotifier) AgentComplete(ctx context.Context, conversationID, runID uuid.UUID, agent, role string) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventAgentComplete,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          agent,
		Role:           role,
		Action:         "completed",
	})
}

func (n *TeamNotifier) Thinking(ctx context.Context, conversationID, runID uuid.UUID, agent, thinking string) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventThinking,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          agent,
		Action:         "thinking",
		Thinking:       thinking,
	})
}

func (n *TeamNotifier) Collaboration(ctx context.Context, conversationID, runID uuid.UUID, agent, text string) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventCollaboration,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          agent,
		Action:         "collaboration",
		Collaboration:  text,
	})
}

// Question announces a paused specialist. It rides the collaboration kind
// with a dedicated action so the client log shows the question.
func (n *TeamNotifier) Question(ctx context.Context, conversationID, runID uuid.UUID, agent, question string) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventCollaboration,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          agent,
		Action:         "question",
		Message:        fmt.Sprintf("%s needs input: %s", agent, question),
		Collaboration:  question,
	})
}

func (n *TeamNotifier) Synthesizing(ctx context.Context, conversationID, runID uuid.UUID) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventCollaboration,
		ConversationID: conversationID,
		RunID:          runID,
		Agent:          LeadAgent,
		Action:         "synthesizing",
		Message:        "Synthesizing specialist results",
	})
}

func (n *TeamNotifier) Final(ctx context.Context, conversationID, runID uuid.UUID, teamCreated bool) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventFinal,
		ConversationID: conversationID,
		RunID:          runID,
		Action:         "complete",
		TeamCreated:    teamCreated,
	})
}

// Sync tells clients to discard their view state immediately, used when a
// run is cleared or replaced.
func (n *TeamNotifier) Sync(ctx context.Context, conversationID uuid.UUID) {
	n.emit(ctx, realtime.TeamEvent{
		Kind:           realtime.TeamEventSync,
		ConversationID: conversationID,
	})
}
