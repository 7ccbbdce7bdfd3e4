// Package reactloop implements a ReAct-style orchestration engine: an
// autonomous loop that alternates between querying a language model for a
// reasoning step and executing exactly one tool call decoded from the
// model's raw text output, until the finish capability is invoked or the
// step budget runs out.
//
// The package is organized around these core concepts:
//
//   - Ledger: the append-only conversation record with stable ids. The
//     system-instructions entry and the task entry are mutable "slots";
//     everything else is immutable history.
//   - Protocol: the strict textual call format. A single function call is
//     recovered from unstructured output by scanning the marker literals
//     backward from the end of the text, so only the final complete call
//     block is honored.
//   - Registry: named capabilities with declared parameter schemas,
//     validated against decoded arguments before invocation.
//   - Agent: the step state machine tying ledger, protocol, registry, and
//     the completion provider together, including termination gating and
//     the step budget.
//   - ExecutionEnvironment: abstraction for where tool side effects run,
//     with a local implementation.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	provider, _ := completion.NewGollmProvider("openai")
//	env := reactloop.NewLocalEnvironment("/path/to/project")
//	agent := reactloop.New(provider, nil)
//	reactloop.RegisterCoreTools(agent.Registry(), env)
//
//	result, err := agent.Run(ctx, "Fix the failing test in pkg/parser", 50)
package reactloop
