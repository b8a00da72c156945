package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/chorusapp/chorus-backend/internal/domain"
	"github.com/chorusapp/chorus-backend/internal/platform/logger"
	"github.com/chorusapp/chorus-backend/internal/platform/openai"
)

// StepInput is one specialist turn as seen by the engine. Messages carry the
// full per-agent history, including any user answers to earlier questions.
type StepInput struct {
	ConversationID uuid.UUID
	Objective      string
	AgentName      string
	Role           string
	Goal           string
	Messages       []types.SpecialistMessage
	SharedContext  string
}

// StepResult is what one turn produced. Exactly one of Question or Done
// ends the specialist's loop; otherwise the runner takes another turn.
type StepResult struct {
	Output        string
	Thinking      string
	Collaboration string
	Question      string
	Done          bool
}

// AgentEngine advances one specialist by one turn. The orchestration core
// treats it as opaque so tests can script it.
type AgentEngine interface {
	Step(ctx context.Context, in StepInput) (StepResult, error)
}

type modelEngine struct {
	client    openai.Client
	knowledge KnowledgeService
	log       *logger.Logger
}

// NewModelEngine builds the production engine on the OpenAI-compatible
// client. knowledge may be nil; specialists then work without retrieval.
func NewModelEngine(client openai.Client, knowledge KnowledgeService, log *logger.Logger) AgentEngine {
	return &modelEngine{
		client:    client,
		knowledge: knowledge,
		log:       log.With("service", "ModelEngine"),
	}
}

var stepSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"thinking": map[string]any{
			"type":        "string",
			"description": "Short private reasoning for this turn.",
		},
		"collaboration": map[string]any{
			"type":        "string",
			"description": "A note to share with the rest of the team, or empty.",
		},
		"question": map[string]any{
			"type":        "string",
			"description": "A clarifying question for the user. Non-empty pauses this agent.",
		},
		"output": map[string]any{
			"type":        "string",
			"description": "The work product of this turn.",
		},
		"done": map[string]any{
			"type":        "boolean",
			"description": "True when the goal is met and output is final.",
		},
	},
	"required":             []string{"thinking", "collaboration", "question", "output", "done"},
	"additionalProperties": false,
}

func (e *modelEngine) Step(ctx context.Context, in StepInput) (StepResult, error) {
	system := e.systemPrompt(ctx, in)
	user := transcript(in.Messages)

	obj, err := e.client.GenerateJSON(ctx, system, user, "specialist_step", stepSchema)
	if err != nil {
		return StepResult{}, fmt.Errorf("specialist step: %w", err)
	}

	res := StepResult{
		Thinking:      stringField(obj, "thinking"),
		Collaboration: stringField(obj, "collaboration"),
		Question:      strings.TrimSpace(stringField(obj, "question")),
		Output:        stringField(obj, "output"),
	}
	if done, ok := obj["done"].(bool); ok {
		res.Done = done
	}
	// A pause and a completion cannot both hold; the question wins so the
	// user keeps control.
	if res.Question != "" {
		res.Done = false
	}
	return res, nil
}

func (e *modelEngine) systemPrompt(ctx context.Context, in StepInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %q, a specialist on a team working toward: %s\n", in.AgentName, in.Objective)
	fmt.Fprintf(&b, "Your role: %s\nYour goal: %s\n", in.Role, in.Goal)
	b.WriteString("Work one turn at a time. Set done=true only when your goal is fully met. ")
	b.WriteString("If you are blocked on information only the user has, put a single question in the question field.\n")

	if in.SharedContext != "" {
		b.WriteString("\nShared team context so far:\n")
		b.WriteString(in.SharedContext)
		b.WriteString("\n")
	}

	if e.knowledge != nil && in.ConversationID != uuid.Nil {
		hits, err := e.knowledge.Search(ctx, in.ConversationID, in.Goal, 3)
		if err != nil {
			if err != ErrEmbeddingUnavailable {
				e.log.Warn("Knowledge lookup failed", "agent", in.AgentName, "error", err)
			}
		} else if len(hits) > 0 {
			b.WriteString("\nRelevant knowledge base excerpts:\n")
			for _, h := range hits {
				fmt.Fprintf(&b, "[%s L%d-%d] %s\n", h.Title, h.StartLine, h.EndLine, h.Text)
			}
		}
	}
	return b.String()
}

func transcript(msgs []types.SpecialistMessage) string {
	if len(msgs) == 0 {
		return "Begin working toward your goal."
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

func stringField(obj map[string]any, key string) string {
	if v, ok := obj[key].(string); ok {
		return v
	}
	return ""
}
