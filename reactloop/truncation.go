package reactloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how an observation is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per capability.
var DefaultToolCharLimits = map[string]int{
	"run_bash_cmd":    30000,
	"show_file":       50000,
	"grep_in_file":    20000,
	"list_dir":        20000,
	"replace_in_file": 10000,
	"append_to_file":  10000,
	"create_file":     1000,
}

// Default truncation modes per capability.
var DefaultTruncationModes = map[string]TruncationMode{
	"run_bash_cmd":    TruncateHeadTail,
	"show_file":       TruncateHeadTail,
	"grep_in_file":    TruncateTail,
	"list_dir":        TruncateTail,
	"replace_in_file": TruncateTail,
	"append_to_file":  TruncateTail,
	"create_file":     TruncateTail,
}

// Default line limits per capability (applied after character truncation).
var DefaultToolLineLimits = map[string]int{
	"run_bash_cmd": 256,
	"grep_in_file": 200,
	"list_dir":     500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed. "+
			"The full output is available in the event stream.]\n\n", removed) +
			output[len(output)-maxChars:]

	default: // head_tail
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"The full output is available in the event stream. "+
				"If you need to see specific parts, re-run the tool with more targeted parameters.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies the full truncation pipeline for a
// capability's observation before it is appended to the ledger:
// character-based truncation first (handles pathological cases), then
// line-based truncation for readability.
func TruncateToolOutput(output string, toolName string, charLimits map[string]int, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = 30000
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}

	result := TruncateOutput(output, maxChars, mode)

	maxLines := 0
	if lineLimits != nil {
		if ml, ok := lineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines == 0 {
		if ml, ok := DefaultToolLineLimits[toolName]; ok {
			maxLines = ml
		}
	}
	if maxLines > 0 {
		result = TruncateLines(result, maxLines)
	}

	return result
}
