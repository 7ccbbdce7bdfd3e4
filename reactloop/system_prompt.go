package reactloop

import (
	"fmt"
	"strings"
	"time"
)

// DefaultInstructions is the default persona and procedure block for the
// system slot. The tool catalog and response template are appended at
// render time, so instructions never need to duplicate them.
const DefaultInstructions = `You are a ReAct agent solving a software engineering task.
At every step you will REASON about what to do next, and then you will ACT by calling exactly one of your available TOOLS.
The user provides a task description; use the tools to gather information about the codebase and modify files as needed.
When you have completed the task, you MUST call the finish tool with the final result.
Every response, including the final one, MUST conform to the response format provided below.

Always follow these rules:
- You MUST ALWAYS respond using the specified response format.
- You MUST call exactly one tool per response.
- You MUST NOT make up tools; only use the ones provided.
- You MUST call the finish tool when you have completed the task.
- DO NOT prompt the user for clarifications or approvals. The user cannot respond while you are working.

If you cannot complete the task within the step limit, call finish with the best partial result you have. A partial solution is better than no solution.`

// BuildSystemBlock assembles the full system block: instructions, the
// capability catalog, and the response format template. The template is
// rendered verbatim so the model's output is decodable.
func BuildSystemBlock(instructions string, registry *Registry, protocol *Protocol) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n--- AVAILABLE TOOLS ---\n")
	sb.WriteString(registry.Describe())
	sb.WriteString("\n--- RESPONSE FORMAT ---\n")
	sb.WriteString(protocol.Template())
	return sb.String()
}

// BuildEnvironmentContext generates a structured environment context block
// suitable for appending to the instructions.
func BuildEnvironmentContext(env ExecutionEnvironment) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", env.WorkingDirectory())
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}
