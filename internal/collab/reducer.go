// Package collab folds the team progress event stream into the ephemeral
// view state a chat client renders during a run. It lives server-side so the
// reducer and the event producer share one contract and one test suite; the
// browser client mirrors these rules.
package collab

import (
	"fmt"
	"sync"
	"time"

	"github.com/chorusapp/chorus-backend/internal/realtime"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhasePlanning       Phase = "planning"
	PhaseSpecialistWork Phase = "specialist-work"
	PhaseSynthesis      Phase = "synthesis"
	PhaseComplete       Phase = "complete"
)

// Step is one visible entry in the running progress log.
type Step struct {
	Agent     string    `json:"agent,omitempty"`
	Action    string    `json:"action,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the whole client view. It is rebuilt purely from events and is
// never persisted.
type State struct {
	Phase              Phase             `json:"phase"`
	Steps              []Step            `json:"steps"`
	AgentThinking      map[string]string `json:"agent_thinking"`
	AgentCollaboration map[string]string `json:"agent_collaboration"`
	CurrentAgent       string            `json:"current_agent,omitempty"`
}

func newState() State {
	return State{
		Phase:              PhaseIdle,
		Steps:              nil,
		AgentThinking:      make(map[string]string),
		AgentCollaboration: make(map[string]string),
	}
}

// DefaultCompleteResetDelay is how long the completed state stays visible
// before the view resets to defaults.
const DefaultCompleteResetDelay = 3 * time.Second

// Reducer folds TeamEvents into a State. Folding is idempotent with respect
// to the at-least-once transport: replaying a thinking or collaboration
// event overwrites the same map slot, and lifecycle replays only duplicate a
// log line.
type Reducer struct {
	mu         sync.Mutex
	state      State
	resetDelay time.Duration
	timer      *time.Timer
}

type Option func(*Reducer)

// WithResetDelay overrides the delay between the final event and the view
// resetting to defaults.
func WithResetDelay(d time.Duration) Option {
	return func(r *Reducer) { r.resetDelay = d }
}

func NewReducer(opts ...Option) *Reducer {
	r := &Reducer{
		state:      newState(),
		resetDelay: DefaultCompleteResetDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns a copy safe for concurrent rendering.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneState(r.state)
}

func cloneState(s State) State {
	out := s
	out.Steps = append([]Step(nil), s.Steps...)
	out.AgentThinking = make(map[string]string, len(s.AgentThinking))
	for k, v := range s.AgentThinking {
		out.AgentThinking[k] = v
	}
	out.AgentCollaboration = make(map[string]string, len(s.AgentCollaboration))
	for k, v := range s.AgentCollaboration {
		out.AgentCollaboration[k] = v
	}
	return out
}

// Apply folds one event into the state.
func (r *Reducer) Apply(ev realtime.TeamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case realtime.TeamEventCreated:
		// A new run begins: discard whatever the previous run left behind.
		r.stopTimerLocked()
		r.state = newState()
		r.state.Phase = PhasePlanning
		return

	case realtime.TeamEventSync:
		r.stopTimerLocked()
		r.state = newState()
		return

	case realtime.TeamEventFinal:
		r.state.Phase = PhaseComplete
		r.scheduleResetLocked()
		return
	}

	r.foldAgentEventLocked(ev)
}

func (r *Reducer) foldAgentEventLocked(ev realtime.TeamEvent) {
	switch {
	case ev.Collaboration != "" && ev.Action == "collaboration":
		r.state.AgentCollaboration[ev.Agent] = ev.Collaboration
		r.appendStepLocked(ev, ev.Collaboration)

	case ev.Thinking != "" && ev.Action == "thinking":
		// Thinking stays out of the visible log; only the latest-per-agent
		// view updates.
		r.state.AgentThinking[ev.Agent] = ev.Thinking

	default:
		msg := ev.Message
		if msg == "" {
			switch ev.Kind {
			case realtime.TeamEventAgentStart:
				msg = fmt.Sprintf("%s started working", ev.Agent)
			case realtime.TeamEventAgentComplete:
				msg = fmt.Sprintf("%s finished", ev.Agent)
			default:
				msg = fmt.Sprintf("%s %s", ev.Agent, ev.Action)
			}
		}
		r.appendStepLocked(ev, msg)
		r.state.CurrentAgent = ev.Agent
	}

	if p, ok := phaseForAction(ev.Action); ok {
		r.state.Phase = p
	}
}

func (r *Reducer) appendStepLocked(ev realtime.TeamEvent, msg string) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	r.state.Steps = append(r.state.Steps, Step{
		Agent:     ev.Agent,
		Action:    ev.Action,
		Message:   msg,
		Timestamp: ts,
	})
}

func phaseForAction(action string) (Phase, bool) {
	switch action {
	case "analyzing", "planned":
		return PhasePlanning, true
	case "working", "completed", "thinking":
		return PhaseSpecialistWork, true
	case "synthesizing":
		return PhaseSynthesis, true
	case "complete":
		return PhaseComplete, true
	}
	return "", false
}

func (r *Reducer) scheduleResetLocked() {
	r.stopTimerLocked()
	if r.resetDelay <= 0 {
		r.state = newState()
		return
	}
	r.timer = time.AfterFunc(r.resetDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.state = newState()
		r.timer = nil
	})
}

func (r *Reducer) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Close stops any pending reset timer. Call on unmount/teardown.
func (r *Reducer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopTimerLocked()
}
