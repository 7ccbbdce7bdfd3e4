package reactloop

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/martinemde/reactor/completion"
)

// State represents the lifecycle state of an agent run.
type State string

const (
	StateInit       State = "init"
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// MaxStepCeiling is the hard ceiling on the step budget. Budgets above it
// are silently clamped (a warning event is emitted).
const MaxStepCeiling = 100

// BudgetExhaustedResult is the sentinel result used for the implicit
// finish when the step budget runs out.
const BudgetExhaustedResult = "Reached max steps without calling finish"

// FinishGuard is consulted when the model calls finish. Returning false
// rejects termination with the given reason and the loop continues.
type FinishGuard func() (ok bool, reason string)

// Config holds the immutable per-agent configuration. It is copied at
// construction; mutating it afterwards has no effect on a live agent.
type Config struct {
	// Instructions fills the system slot. Empty means DefaultInstructions.
	Instructions string

	// Markers configure the call protocol; zero fields use the defaults.
	Markers Markers

	// CorrectiveRole is the role used for corrective ledger entries.
	// Empty means RoleUser.
	CorrectiveRole Role

	// FinishGuard, when set, gates termination on finish calls.
	FinishGuard FinishGuard

	// Per-capability observation limits; nil falls back to the defaults.
	ToolCharLimits map[string]int
	ToolLineLimits map[string]int

	EnableLoopDetection bool
	LoopDetectionWindow int
}

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		Instructions:        DefaultInstructions,
		Markers:             DefaultMarkers(),
		CorrectiveRole:      RoleUser,
		EnableLoopDetection: true,
		LoopDetectionWindow: 10,
	}
}

// Agent is the orchestrator: it ties the ledger, the protocol decoder,
// and the capability registry together into the step state machine. One
// Agent owns one Ledger/Registry pair for one run; it is not safe for
// concurrent use and a second run requires a fresh Agent.
type Agent struct {
	id       string
	config   Config
	provider completion.Provider
	protocol *Protocol
	ledger   *Ledger
	registry *Registry
	emitter  *EventEmitter
	state    State

	systemSlot int
	taskSlot   int

	callSigs []string
}

// New creates an agent in the INIT state: the system-instructions slot and
// an empty task slot are appended, and the mandatory finish capability is
// registered (callers may overwrite it with a richer one, such as
// PatchFinishCapability).
func New(provider completion.Provider, config *Config) *Agent {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultInstructions
	}
	if cfg.CorrectiveRole == "" {
		cfg.CorrectiveRole = RoleUser
	}
	if cfg.LoopDetectionWindow <= 0 {
		cfg.LoopDetectionWindow = 10
	}

	runID := uuid.New().String()

	a := &Agent{
		id:       runID,
		config:   cfg,
		provider: provider,
		protocol: NewProtocol(cfg.Markers),
		ledger:   NewLedger(),
		registry: NewRegistry(),
		emitter:  NewEventEmitter(runID, 256),
		state:    StateInit,
	}

	a.systemSlot = a.ledger.Append(RoleSystem, cfg.Instructions)
	a.ledger.markSlot(a.systemSlot)
	a.taskSlot = a.ledger.Append(RoleUser, "")
	a.ledger.markSlot(a.taskSlot)

	a.registry.Register(Capability{
		Name:        FinishCapabilityName,
		Params:      []string{"result"},
		Description: "Call this with the final result when the task is solved. The result is returned by the run.",
		Invoke: func(args map[string]string) (string, error) {
			return args["result"], nil
		},
	})

	return a
}

// ID returns the run identifier.
func (a *Agent) ID() string { return a.id }

// State returns the current lifecycle state.
func (a *Agent) State() State { return a.state }

// Registry returns the capability registry for setup-time registration.
// The registry must be populated before Run; mutating it mid-run is not
// supported.
func (a *Agent) Registry() *Registry { return a.registry }

// Register adds capabilities to the registry.
func (a *Agent) Register(caps ...Capability) {
	a.registry.Register(caps...)
}

// Events returns the event channel for the host application.
func (a *Agent) Events() <-chan RunEvent { return a.emitter.Events() }

// History returns a copy of the ledger contents.
func (a *Agent) History() []Message { return a.ledger.Messages() }

// Protocol returns the call protocol in use.
func (a *Agent) Protocol() *Protocol { return a.protocol }

// Run executes the step loop for one task: fill the task slot, then
// alternate completion and capability dispatch until finish is accepted or
// the step budget is exhausted. It returns the final result.
func (a *Agent) Run(ctx context.Context, task string, maxSteps int) (string, error) {
	if a.state == StateTerminated {
		return "", fmt.Errorf("agent run already terminated")
	}
	if maxSteps < 1 {
		maxSteps = 1
	}
	if maxSteps > MaxStepCeiling {
		a.emitter.Emit(EventWarning, map[string]interface{}{
			"message": fmt.Sprintf("step budget %d exceeds ceiling, clamping to %d", maxSteps, MaxStepCeiling),
		})
		maxSteps = MaxStepCeiling
	}

	if err := a.ledger.SetSlotContent(a.taskSlot, task); err != nil {
		return "", err
	}

	a.state = StateRunning
	a.emitter.Emit(EventRunStart, map[string]interface{}{
		"task":      task,
		"max_steps": maxSteps,
	})

	for step := 0; step < maxSteps; step++ {
		select {
		case <-ctx.Done():
			a.terminate()
			return "", ctx.Err()
		default:
		}

		a.emitter.Emit(EventStepStart, map[string]interface{}{"step": step})

		raw, err := a.complete(ctx)
		if err != nil {
			if !completion.IsRetryable(err) {
				a.terminate()
				a.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
				return "", fmt.Errorf("unrecoverable completion error: %w", err)
			}
			// Transient failure after retries: consume the step and move on.
			a.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
			a.corrective(fmt.Sprintf("The previous request could not be completed (%v). Continue from where you left off.", err))
			continue
		}

		parsed, err := a.protocol.Parse(raw)
		if err != nil {
			a.emitter.Emit(EventDecodeError, map[string]interface{}{
				"error":    err.Error(),
				"response": raw,
			})
			a.corrective(fmt.Sprintf("The previous response could not be parsed (%v). Respond with exactly one function call using this format:\n%s", err, a.protocol.Template()))
			continue
		}

		a.ledger.Append(RoleAssistant, parsed.Thought)

		if _, ok := a.registry.Lookup(parsed.Name); !ok {
			a.corrective(fmt.Sprintf("The function %q is not recognized. Use one of the available tools.", parsed.Name))
			continue
		}

		a.emitter.Emit(EventToolStart, map[string]interface{}{
			"tool":      parsed.Name,
			"arguments": parsed.Arguments,
		})

		result, err := a.registry.Invoke(parsed.Name, parsed.Arguments)
		if err != nil {
			var argErr *ArgumentError
			if errors.As(err, &argErr) {
				// Schema mismatch is a dispatch error, not a tool failure.
				a.corrective(fmt.Sprintf("The call to %q was invalid: %v. Check the tool's parameter list.", parsed.Name, argErr))
				continue
			}
			// Capability failure becomes the tool's own error observation.
			observation := fmt.Sprintf("ERROR: %v", err)
			a.emitter.Emit(EventToolEnd, map[string]interface{}{
				"tool":  parsed.Name,
				"error": err.Error(),
			})
			a.appendObservation(parsed.Name, observation)
			continue
		}

		a.emitter.Emit(EventToolEnd, map[string]interface{}{
			"tool":   parsed.Name,
			"output": result,
		})
		a.appendObservation(parsed.Name, result)

		if parsed.Name == FinishCapabilityName {
			if a.config.FinishGuard != nil {
				if ok, reason := a.config.FinishGuard(); !ok {
					a.emitter.Emit(EventFinishRejected, map[string]interface{}{"reason": reason})
					a.corrective(fmt.Sprintf("Finishing now was rejected: %s", reason))
					continue
				}
			}
			a.terminate()
			return result, nil
		}

		a.detectLoop(parsed)
	}

	// Budget exhausted: force an implicit finish with the sentinel result.
	a.emitter.Emit(EventBudgetExhausted, map[string]interface{}{"max_steps": maxSteps})
	result, err := a.registry.Invoke(FinishCapabilityName, map[string]string{"result": BudgetExhaustedResult})
	a.terminate()
	if err != nil {
		return BudgetExhaustedResult, nil
	}
	return result, nil
}

// complete renders the request from the ledger and calls the provider.
// This is the run's only blocking point per iteration.
func (a *Agent) complete(ctx context.Context) (string, error) {
	system, _ := a.ledger.Get(a.systemSlot)
	task, _ := a.ledger.Get(a.taskSlot)

	req := completion.Request{
		System:        BuildSystemBlock(system.Content, a.registry, a.protocol),
		Task:          renderMessage(task),
		Transcript:    a.ledger.RenderTranscript(a.systemSlot, a.taskSlot),
		StopSequences: []string{a.protocol.StopSequence()},
	}
	return a.provider.Complete(ctx, req)
}

// corrective appends a corrective ledger entry steering the model back
// onto the protocol.
func (a *Agent) corrective(content string) {
	a.ledger.Append(a.config.CorrectiveRole, content)
	a.emitter.Emit(EventCorrective, map[string]interface{}{"content": content})
}

// appendObservation truncates and appends a tool observation.
func (a *Agent) appendObservation(toolName, observation string) {
	truncated := TruncateToolOutput(observation, toolName, a.config.ToolCharLimits, a.config.ToolLineLimits)
	a.ledger.Append(RoleTool, truncated)
}

// detectLoop records the call signature and injects a corrective entry
// when the recent calls follow a repeating pattern.
func (a *Agent) detectLoop(parsed *ParsedCall) {
	if !a.config.EnableLoopDetection {
		return
	}
	a.callSigs = append(a.callSigs, callSignature(parsed.Name, parsed.Arguments))
	if DetectLoop(a.callSigs, a.config.LoopDetectionWindow) {
		warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", a.config.LoopDetectionWindow)
		a.corrective(warning)
		a.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": warning})
		a.callSigs = a.callSigs[:0]
	}
}

func (a *Agent) terminate() {
	a.state = StateTerminated
	a.emitter.Emit(EventRunEnd, map[string]interface{}{"state": string(StateTerminated)})
	a.emitter.Close()
}
