package workload

import (
	"context"
	"errors"
	"os/exec"
)

// Exec runs a command per invocation. Output is discarded.
type Exec struct {
	path string
	args []string
}

// NewExec resolves the command on PATH once, up front.
func NewExec(command []string) (*Exec, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("command is required")
	}
	path, err := exec.LookPath(command[0])
	if err != nil {
		return nil, err
	}
	return &Exec{path: path, args: append([]string(nil), command[1:]...)}, nil
}

func (e *Exec) Do(ctx context.Context) error {
	return exec.CommandContext(ctx, e.path, e.args...).Run()
}
