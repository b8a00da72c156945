package collab

import (
	"testing"
	"time"

	"github.com/chorusapp/chorus-backend/internal/realtime"
)

func ev(kind realtime.TeamEventKind, agent, action, msg string) realtime.TeamEvent {
	return realtime.TeamEvent{
		Kind:      kind,
		Agent:     agent,
		Action:    action,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
}

func TestCreatedResetsWithoutLoggingAStep(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	// Leftovers from a previous run.
	r.Apply(ev(realtime.TeamEventAgentStart, "researcher", "working", ""))
	r.Apply(realtime.TeamEvent{Kind: realtime.TeamEventThinking, Agent: "researcher", Action: "thinking", Thinking: "old"})

	r.Apply(ev(realtime.TeamEventCreated, "lead", "analyzing", "Assembling team"))

	s := r.State()
	if s.Phase != PhasePlanning {
		t.Fatalf("phase = %q, want %q", s.Phase, PhasePlanning)
	}
	if len(s.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(s.Steps))
	}
	if len(s.AgentThinking) != 0 || len(s.AgentCollaboration) != 0 {
		t.Fatalf("maps not cleared: %v %v", s.AgentThinking, s.AgentCollaboration)
	}
	if s.CurrentAgent != "" {
		t.Fatalf("current agent = %q, want empty", s.CurrentAgent)
	}
}

func TestCollaborationOverwritesAndLogs(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	e1 := ev(realtime.TeamEventCollaboration, "analyst", "collaboration", "")
	e1.Collaboration = "sharing draft findings"
	r.Apply(e1)

	e2 := ev(realtime.TeamEventCollaboration, "analyst", "collaboration", "")
	e2.Collaboration = "revised findings"
	r.Apply(e2)

	s := r.State()
	if got := s.AgentCollaboration["analyst"]; got != "revised findings" {
		t.Fatalf("collaboration = %q, want overwrite to latest", got)
	}
	if len(s.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(s.Steps))
	}
	if s.Steps[1].Message != "revised findings" {
		t.Fatalf("step message = %q", s.Steps[1].Message)
	}
}

func TestThinkingUpdatesWithoutStep(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	e := realtime.TeamEvent{Kind: realtime.TeamEventThinking, Agent: "writer", Action: "thinking", Thinking: "outlining sections"}
	r.Apply(e)
	e.Thinking = "drafting intro"
	r.Apply(e)

	s := r.State()
	if got := s.AgentThinking["writer"]; got != "drafting intro" {
		t.Fatalf("thinking = %q, want latest", got)
	}
	if len(s.Steps) != 0 {
		t.Fatalf("thinking must not append steps, got %d", len(s.Steps))
	}
	if s.Phase != PhaseSpecialistWork {
		t.Fatalf("phase = %q, want %q", s.Phase, PhaseSpecialistWork)
	}
}

func TestDefaultStepMessages(t *testing.T) {
	cases := []struct {
		name string
		ev   realtime.TeamEvent
		want string
	}{
		{"start", ev(realtime.TeamEventAgentStart, "researcher", "working", ""), "researcher started working"},
		{"complete", ev(realtime.TeamEventAgentComplete, "researcher", "completed", ""), "researcher finished"},
		{"explicit", ev(realtime.TeamEventAgentStart, "researcher", "working", "digging through sources"), "digging through sources"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReducer()
			defer r.Close()
			r.Apply(tc.ev)
			s := r.State()
			if len(s.Steps) != 1 {
				t.Fatalf("steps = %d, want 1", len(s.Steps))
			}
			if s.Steps[0].Message != tc.want {
				t.Fatalf("message = %q, want %q", s.Steps[0].Message, tc.want)
			}
			if s.CurrentAgent != tc.ev.Agent {
				t.Fatalf("current agent = %q, want %q", s.CurrentAgent, tc.ev.Agent)
			}
		})
	}
}

func TestPhaseMapping(t *testing.T) {
	cases := []struct {
		action string
		want   Phase
	}{
		{"analyzing", PhasePlanning},
		{"planned", PhasePlanning},
		{"working", PhaseSpecialistWork},
		{"completed", PhaseSpecialistWork},
		{"thinking", PhaseSpecialistWork},
		{"synthesizing", PhaseSynthesis},
		{"complete", PhaseComplete},
	}
	for _, tc := range cases {
		r := NewReducer()
		r.Apply(ev(realtime.TeamEventAgentStart, "a", tc.action, "m"))
		if got := r.State().Phase; got != tc.want {
			t.Errorf("action %q: phase = %q, want %q", tc.action, got, tc.want)
		}
		r.Close()
	}
}

func TestUnknownActionKeepsPhase(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	r.Apply(ev(realtime.TeamEventAgentStart, "a", "working", ""))
	r.Apply(ev(realtime.TeamEventCollaboration, "a", "question", "a needs input: which market?"))

	s := r.State()
	if s.Phase != PhaseSpecialistWork {
		t.Fatalf("unknown action must not change phase, got %q", s.Phase)
	}
	if len(s.Steps) != 2 {
		t.Fatalf("question event must appear in the log, steps = %d", len(s.Steps))
	}
}

func TestPauseQuestionAppearsInLog(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	q := ev(realtime.TeamEventCollaboration, "analyst", "question", "analyst needs input: include Q3 numbers?")
	q.Collaboration = "include Q3 numbers?"
	r.Apply(q)

	s := r.State()
	if len(s.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(s.Steps))
	}
	if s.Steps[0].Message != "analyst needs input: include Q3 numbers?" {
		t.Fatalf("step message = %q", s.Steps[0].Message)
	}
	if s.CurrentAgent != "analyst" {
		t.Fatalf("current agent = %q", s.CurrentAgent)
	}
}

func TestSyncResetsImmediately(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	r.Apply(ev(realtime.TeamEventAgentStart, "a", "working", ""))
	r.Apply(realtime.TeamEvent{Kind: realtime.TeamEventSync})

	s := r.State()
	if s.Phase != PhaseIdle || len(s.Steps) != 0 || s.CurrentAgent != "" {
		t.Fatalf("sync must reset to defaults, got %+v", s)
	}
}

func TestFinalCompletesThenResets(t *testing.T) {
	r := NewReducer(WithResetDelay(20 * time.Millisecond))
	defer r.Close()

	r.Apply(ev(realtime.TeamEventAgentStart, "a", "working", ""))
	r.Apply(realtime.TeamEvent{Kind: realtime.TeamEventFinal})

	if got := r.State().Phase; got != PhaseComplete {
		t.Fatalf("phase right after final = %q, want %q", got, PhaseComplete)
	}
	if got := len(r.State().Steps); got != 1 {
		t.Fatalf("final must keep the log until reset, steps = %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State().Phase == PhaseIdle {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := r.State()
	if s.Phase != PhaseIdle || len(s.Steps) != 0 {
		t.Fatalf("state did not reset after delay: %+v", s)
	}
}

func TestFoldSequenceEndToEnd(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	r.Apply(ev(realtime.TeamEventCreated, "lead", "analyzing", ""))
	think := realtime.TeamEvent{Kind: realtime.TeamEventThinking, Agent: "researcher", Action: "thinking", Thinking: "considering X"}
	r.Apply(think)
	r.Apply(ev(realtime.TeamEventAgentComplete, "researcher", "completed", "done"))
	r.Apply(realtime.TeamEvent{Kind: realtime.TeamEventFinal})

	s := r.State()
	if got := s.AgentThinking["researcher"]; got != "considering X" {
		t.Fatalf("thinking = %q, want %q", got, "considering X")
	}
	// Only the completion logs a step; created and thinking stay out of the log.
	if len(s.Steps) != 1 {
		t.Fatalf("steps = %d, want 1 (%v)", len(s.Steps), s.Steps)
	}
	if s.Steps[0].Message != "done" {
		t.Fatalf("step message = %q, want %q", s.Steps[0].Message, "done")
	}
	if s.Phase != PhaseComplete {
		t.Fatalf("phase = %q, want %q", s.Phase, PhaseComplete)
	}
}

func TestReplayIsIdempotentForOverwrites(t *testing.T) {
	r := NewReducer()
	defer r.Close()

	e := realtime.TeamEvent{Kind: realtime.TeamEventThinking, Agent: "a", Action: "thinking", Thinking: "same thought"}
	r.Apply(e)
	r.Apply(e)

	s := r.State()
	if len(s.AgentThinking) != 1 || s.AgentThinking["a"] != "same thought" {
		t.Fatalf("replayed thinking must land in the same slot: %v", s.AgentThinking)
	}
	if len(s.Steps) != 0 {
		t.Fatalf("steps = %d, want 0", len(s.Steps))
	}
}
