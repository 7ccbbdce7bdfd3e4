package reactloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/martinemde/reactor/completion"
)

// scriptedProvider returns canned responses in order and records every
// request it receives.
type scriptedProvider struct {
	responses []interface{} // string responses or error values
	calls     int
	requests  []completion.Request
}

func (s *scriptedProvider) Complete(ctx context.Context, req completion.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("scripted provider exhausted after %d calls", s.calls)
	}
	r := s.responses[s.calls]
	s.calls++
	switch v := r.(type) {
	case string:
		return v, nil
	case error:
		return "", v
	default:
		return "", fmt.Errorf("bad script entry %T", r)
	}
}

func finishResponse(p *Protocol, result string) string {
	return "Task complete.\n" + p.Encode(FinishCapabilityName, Argument{Name: "result", Value: result})
}

func callResponse(p *Protocol, name string, args ...Argument) string {
	return "Next step.\n" + p.Encode(name, args...)
}

func newTestAgent(responses ...interface{}) (*Agent, *scriptedProvider) {
	provider := &scriptedProvider{responses: responses}
	agent := New(provider, nil)
	return agent, provider
}

func drainEvents(agent *Agent) []RunEvent {
	var events []RunEvent
	for e := range agent.Events() {
		events = append(events, e)
	}
	return events
}

func hasEvent(events []RunEvent, kind EventKind) bool {
	for _, e := range events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func TestRunFinishTerminates(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{finishResponse(agent.Protocol(), "the answer is 42")}

	result, err := agent.Run(context.Background(), "compute the answer", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "the answer is 42" {
		t.Errorf("expected finish result, got %q", result)
	}
	if agent.State() != StateTerminated {
		t.Errorf("expected terminated state, got %q", agent.State())
	}
	if provider.calls != 1 {
		t.Errorf("expected exactly 1 completion, got %d", provider.calls)
	}

	req := provider.requests[0]
	if !strings.Contains(req.System, "Function: finish(result)") {
		t.Error("expected the system block to carry the tool catalog")
	}
	if !strings.Contains(req.Task, "compute the answer") {
		t.Error("expected the task in the request")
	}
	if strings.Contains(req.Transcript, "compute the answer") {
		t.Error("expected the task slot to be excluded from the transcript")
	}
	if len(req.StopSequences) != 1 || req.StopSequences[0] != agent.Protocol().StopSequence() {
		t.Errorf("expected the end marker as the stop sequence, got %v", req.StopSequences)
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	// Loop detection off so identical calls run the budget down.
	cfg := DefaultConfig()
	cfg.EnableLoopDetection = false

	provider := &scriptedProvider{}
	agent := New(provider, &cfg)
	agent.Register(Capability{
		Name:   "noop",
		Invoke: func(args map[string]string) (string, error) { return "ok", nil },
	})

	step := callResponse(agent.Protocol(), "noop")
	provider.responses = []interface{}{step, step, step}

	result, err := agent.Run(context.Background(), "never finishes", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != BudgetExhaustedResult {
		t.Errorf("expected the budget sentinel, got %q", result)
	}
	if provider.calls != 3 {
		t.Errorf("expected exactly 3 completions for a budget of 3, got %d", provider.calls)
	}
	if agent.State() != StateTerminated {
		t.Errorf("expected terminated state, got %q", agent.State())
	}
	if !hasEvent(drainEvents(agent), EventBudgetExhausted) {
		t.Error("expected a budget-exhausted event")
	}
}

func TestRunDecodeFailureAddsCorrective(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{
		"I will just talk instead of calling a tool.",
		finishResponse(agent.Protocol(), "done"),
	}

	result, err := agent.Run(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected recovery after the corrective, got %q", result)
	}

	var corrective *Message
	for _, msg := range agent.History() {
		if msg.Role == RoleUser && strings.Contains(msg.Content, "could not be parsed") {
			m := msg
			corrective = &m
		}
	}
	if corrective == nil {
		t.Fatal("expected a corrective ledger entry after the decode failure")
	}
	if !strings.Contains(corrective.Content, agent.Protocol().Markers().Begin) {
		t.Error("expected the corrective to restate the response template")
	}
}

func TestRunUnknownToolAddsCorrective(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{
		callResponse(agent.Protocol(), "teleport"),
		finishResponse(agent.Protocol(), "done"),
	}

	result, err := agent.Run(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected recovery, got %q", result)
	}

	found := false
	for _, msg := range agent.History() {
		if msg.Role == RoleUser && strings.Contains(msg.Content, `"teleport"`) {
			found = true
		}
	}
	if !found {
		t.Error("expected a corrective entry naming the unrecognized function")
	}
}

func TestRunArgumentMismatchAddsCorrective(t *testing.T) {
	invoked := false
	agent, provider := newTestAgent()
	agent.Register(Capability{
		Name:   "strict",
		Params: []string{"required"},
		Invoke: func(args map[string]string) (string, error) {
			invoked = true
			return "ran", nil
		},
	})
	provider.responses = []interface{}{
		callResponse(agent.Protocol(), "strict", Argument{Name: "wrong", Value: "x"}),
		finishResponse(agent.Protocol(), "done"),
	}

	result, err := agent.Run(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected recovery, got %q", result)
	}
	if invoked {
		t.Error("expected the capability not to run on an argument mismatch")
	}

	found := false
	for _, msg := range agent.History() {
		if msg.Role == RoleUser && strings.Contains(msg.Content, "invalid arguments for strict") {
			found = true
		}
	}
	if !found {
		t.Error("expected a corrective entry carrying the argument error")
	}
}

func TestRunCapabilityErrorBecomesObservation(t *testing.T) {
	agent, provider := newTestAgent()
	agent.Register(Capability{
		Name:   "faulty",
		Invoke: func(args map[string]string) (string, error) { return "", errors.New("disk full") },
	})
	provider.responses = []interface{}{
		callResponse(agent.Protocol(), "faulty"),
		finishResponse(agent.Protocol(), "done"),
	}

	if _, err := agent.Run(context.Background(), "task", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, msg := range agent.History() {
		if msg.Role == RoleTool && strings.Contains(msg.Content, "ERROR: disk full") {
			found = true
		}
	}
	if !found {
		t.Error("expected the tool failure as a tool observation, not a corrective")
	}
}

func TestRunFinishGuardRejectsThenAccepts(t *testing.T) {
	attempts := 0
	cfg := DefaultConfig()
	cfg.FinishGuard = func() (bool, string) {
		attempts++
		if attempts == 1 {
			return false, "no patch generated yet"
		}
		return true, ""
	}

	provider := &scriptedProvider{}
	agent := New(provider, &cfg)
	provider.responses = []interface{}{
		finishResponse(agent.Protocol(), "premature"),
		finishResponse(agent.Protocol(), "final"),
	}

	result, err := agent.Run(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "final" {
		t.Errorf("expected the second finish to win, got %q", result)
	}
	if attempts != 2 {
		t.Errorf("expected the guard to be consulted twice, got %d", attempts)
	}

	found := false
	for _, msg := range agent.History() {
		if msg.Role == RoleUser && strings.Contains(msg.Content, "no patch generated yet") {
			found = true
		}
	}
	if !found {
		t.Error("expected a corrective entry with the rejection reason")
	}
	if !hasEvent(drainEvents(agent), EventFinishRejected) {
		t.Error("expected a finish-rejected event")
	}
}

func TestRunRetryableProviderErrorConsumesStep(t *testing.T) {
	transient := &completion.RateLimitError{ProviderError: completion.ProviderError{
		CompletionError: completion.CompletionError{Message: "rate limited"},
		Provider:        "test",
		StatusCode:      429,
		Retryable:       true,
	}}

	agent, provider := newTestAgent()
	provider.responses = []interface{}{
		transient,
		finishResponse(agent.Protocol(), "done"),
	}

	result, err := agent.Run(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Errorf("expected recovery after the transient failure, got %q", result)
	}
	if provider.calls != 2 {
		t.Errorf("expected the failure to consume a step, got %d calls", provider.calls)
	}
}

func TestRunFatalProviderError(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{errors.New("invalid api key")}

	_, err := agent.Run(context.Background(), "task", 5)
	if err == nil {
		t.Fatal("expected a fatal error from a non-retryable failure")
	}
	if !strings.Contains(err.Error(), "unrecoverable completion error") {
		t.Errorf("unexpected error: %v", err)
	}
	if agent.State() != StateTerminated {
		t.Errorf("expected terminated state, got %q", agent.State())
	}
}

func TestRunClampsBudgetToCeiling(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{finishResponse(agent.Protocol(), "done")}

	if _, err := agent.Run(context.Background(), "task", MaxStepCeiling+500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasEvent(drainEvents(agent), EventWarning) {
		t.Error("expected a warning event when the budget is clamped")
	}
}

func TestRunSecondRunFails(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{finishResponse(agent.Protocol(), "done")}

	if _, err := agent.Run(context.Background(), "task", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := agent.Run(context.Background(), "again", 5); err == nil {
		t.Error("expected a second run on the same agent to fail")
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent, provider := newTestAgent()
	provider.responses = []interface{}{finishResponse(agent.Protocol(), "done")}

	_, err := agent.Run(ctx, "task", 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected no completions with a cancelled context, got %d", provider.calls)
	}
	if agent.State() != StateTerminated {
		t.Errorf("expected terminated state, got %q", agent.State())
	}
}

func TestRunTaskFillsSlot(t *testing.T) {
	agent, provider := newTestAgent()
	provider.responses = []interface{}{finishResponse(agent.Protocol(), "done")}

	if _, err := agent.Run(context.Background(), "fix the flaky test", 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := agent.History()
	if len(history) < 2 {
		t.Fatalf("expected the system and task slots in history, got %d entries", len(history))
	}
	if history[0].Role != RoleSystem {
		t.Errorf("expected entry 0 to be the system slot, got role %q", history[0].Role)
	}
	if history[1].Role != RoleUser || history[1].Content != "fix the flaky test" {
		t.Errorf("expected the task slot to hold the task, got %+v", history[1])
	}
}

func TestRunLoopDetectionInjectsCorrective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoopDetectionWindow = 4

	provider := &scriptedProvider{}
	agent := New(provider, &cfg)
	agent.Register(Capability{
		Name:   "noop",
		Invoke: func(args map[string]string) (string, error) { return "ok", nil },
	})

	step := callResponse(agent.Protocol(), "noop")
	provider.responses = []interface{}{step, step, step, step, finishResponse(agent.Protocol(), "done")}

	if _, err := agent.Run(context.Background(), "task", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, msg := range agent.History() {
		if msg.Role == RoleUser && strings.Contains(msg.Content, "Loop detected") {
			found = true
		}
	}
	if !found {
		t.Error("expected a loop-detection corrective after identical calls")
	}
	if !hasEvent(drainEvents(agent), EventLoopDetection) {
		t.Error("expected a loop-detection event")
	}
}
