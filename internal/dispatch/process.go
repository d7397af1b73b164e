package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"tubewatch/internal/render"
)

// ProcessData is the Data payload of a process rule.
type ProcessData struct {
	Args string `json:"args"`
}

var commandContext = exec.CommandContext

func runProcess(ctx context.Context, binary string, data ProcessData, vars render.Vars) (string, error) {
	args, err := shlex.Split(render.String(data.Args, vars, render.Plain))
	if err != nil {
		return "", fmt.Errorf("%w: split args: %v", ErrInvalidRule, err)
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, binary, args...) //nolint:gosec // binary and args come from operator-defined rules
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &ProcessError{ExitCode: code, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}
