package reactloop

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RegisterCoreTools registers the standard file and shell capabilities
// backed by the given execution environment.
func RegisterCoreTools(reg *Registry, env ExecutionEnvironment) {
	reg.Register(
		runBashCmdCapability(env),
		showFileCapability(env),
		createFileCapability(env),
		appendToFileCapability(env),
		replaceInFileCapability(env),
		listDirCapability(env),
		grepInFileCapability(env),
	)
}

func runBashCmdCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "run_bash_cmd",
		Params:      []string{"command"},
		Description: "Run the command in a bash shell and return the output. Fails with the partial output if the command exits nonzero or times out.",
		Invoke: func(args map[string]string) (string, error) {
			return env.RunCommand(context.Background(), args["command"])
		},
	}
}

func showFileCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "show_file",
		Params:      []string{"file_path"},
		Description: "Show the content of the file.",
		Invoke: func(args map[string]string) (string, error) {
			return env.ShowFile(args["file_path"])
		},
	}
}

func createFileCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "create_file",
		Params:      []string{"file_path", "content"},
		Description: "Create a new file with the given content, creating parent directories if needed.",
		Invoke: func(args map[string]string) (string, error) {
			return env.CreateFile(args["file_path"], args["content"])
		},
	}
}

func appendToFileCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "append_to_file",
		Params:      []string{"file_path", "content"},
		Description: "Append content to the end of a file, creating it if missing. Returns the updated tail of the file.",
		Invoke: func(args map[string]string) (string, error) {
			return env.AppendFile(args["file_path"], args["content"])
		},
	}
}

func replaceInFileCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:   "replace_in_file",
		Params: []string{"file_path", "from_line", "to_line", "content"},
		Description: "Replace the content of the file from from_line to to_line (1-indexed, inclusive) with the given content. " +
			"Returns the updated content of the file.",
		Invoke: func(args map[string]string) (string, error) {
			fromLine, err := strconv.Atoi(strings.TrimSpace(args["from_line"]))
			if err != nil {
				return "", fmt.Errorf("from_line must be an integer: %q", args["from_line"])
			}
			toLine, err := strconv.Atoi(strings.TrimSpace(args["to_line"]))
			if err != nil {
				return "", fmt.Errorf("to_line must be an integer: %q", args["to_line"])
			}
			return env.ReplaceLines(args["file_path"], fromLine, toLine, args["content"])
		},
	}
}

func listDirCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "list_dir",
		Params:      []string{"path"},
		Description: "List files and directories in a given directory (non-recursive).",
		Invoke: func(args map[string]string) (string, error) {
			return env.ListDir(args["path"])
		},
	}
}

func grepInFileCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        "grep_in_file",
		Params:      []string{"file_path", "pattern"},
		Description: "Return lines in a file that match a regex pattern, with line numbers.",
		Invoke: func(args map[string]string) (string, error) {
			return env.GrepFile(args["file_path"], args["pattern"])
		},
	}
}

// PatchFinishCapability returns a finish capability that materializes the
// run's result as a version-control patch: it stages all changes and
// returns the cached diff, falling back to the model's own result text
// when there are no changes to diff.
func PatchFinishCapability(env ExecutionEnvironment) Capability {
	return Capability{
		Name:        FinishCapabilityName,
		Params:      []string{"result"},
		Description: "Call this with the final result when the task is solved. Generates a patch of all code changes and returns it as the submission.",
		Invoke: func(args map[string]string) (string, error) {
			result := args["result"]
			patch, err := env.GeneratePatch(context.Background())
			if err != nil {
				return fmt.Sprintf("%s\n\nError generating patch: %v", result, err), nil
			}
			if strings.TrimSpace(patch) == "" {
				return fmt.Sprintf("%s\n\nNo changes detected to generate a patch.", result), nil
			}
			return patch, nil
		},
	}
}

// PatchFinishGuard returns a finish guard that rejects termination while
// no changes are pending in the environment.
func PatchFinishGuard(env ExecutionEnvironment) FinishGuard {
	return func() (bool, string) {
		if env.HasPendingChanges(context.Background()) {
			return true, ""
		}
		return false, "no code changes are pending; make the required changes in the source files before finishing"
	}
}
