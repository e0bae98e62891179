package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

// readTaskList returns the raw task list from --text, a file argument, or
// stdin when the argument is "-" or absent and stdin is piped.
func readTaskList(args []string, text string, stdin io.Reader) (string, error) {
	if text != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("pass either a task file or --text, not both")
		}
		return text, nil
	}
	if len(args) == 0 || args[0] == "-" {
		if stdin == nil {
			return "", fmt.Errorf("no task list given: pass a file, --text, or pipe one on stdin")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read task list: %w", err)
	}
	return string(data), nil
}

// readFramework interprets --framework: "@path" reads the file, anything else
// is the context itself. Empty means no framework context.
func readFramework(value string) (*string, error) {
	if value == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(value, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read framework context: %w", err)
		}
		s := string(data)
		return &s, nil
	}
	return &value, nil
}

// buildInput assembles the task-list input for a command.
func buildInput(args []string, text, framework string, stdin io.Reader) (models.TaskListInput, error) {
	raw, err := readTaskList(args, text, stdin)
	if err != nil {
		return models.TaskListInput{}, err
	}
	fw, err := readFramework(framework)
	if err != nil {
		return models.TaskListInput{}, err
	}
	return models.TaskListInput{RawText: raw, FrameworkContext: fw}, nil
}

// stdinIfPiped returns os.Stdin unless it is a terminal.
func stdinIfPiped() io.Reader {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return os.Stdin
}
