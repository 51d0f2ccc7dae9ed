package magma

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecPreprocessor pipes a file's contents through an external compiler on
// stdin and takes its stdout as the new contents. It backs the less, stylus
// and coffeescript built-ins.
type ExecPreprocessor struct {
	Command string
	Args    []string
}

// NewExecPreprocessor creates a preprocessor running command with args.
func NewExecPreprocessor(command string, args ...string) ExecPreprocessor {
	return ExecPreprocessor{Command: command, Args: args}
}

// Preprocess runs the command with the file contents on stdin.
func (p ExecPreprocessor) Preprocess(ctx context.Context, file *File, _ *Config) (string, error) {
	cmd := exec.CommandContext(ctx, p.Command, p.Args...) //#nosec G204 -- command comes from the registry
	cmd.Stdin = strings.NewReader(file.Contents)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", p.Command, err)
		}
		return "", fmt.Errorf("%s: %w: %s", p.Command, err, msg)
	}
	return stdout.String(), nil
}
