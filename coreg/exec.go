package coreg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/airbusgeo/reserve-monitor/service"
	"github.com/airbusgeo/reserve-monitor/service/log"
)

// DefaultCommand is the arosics command line interface
const DefaultCommand = "arosics"

// ExecEngine runs arosics on the host
type ExecEngine struct {
	Command string
	Mode    Mode
	Env     []string
}

// NewExecEngine returns an engine running the command (DefaultCommand if empty)
func NewExecEngine(command string, mode Mode) *ExecEngine {
	if command == "" {
		command = DefaultCommand
	}
	return &ExecEngine{Command: command, Mode: mode}
}

// Coregister implements Coregistrator
func (e *ExecEngine) Coregister(ctx context.Context, ref, target, out string) error {
	if _, err := exec.LookPath(e.Command); err != nil {
		return service.MakeFatal(fmt.Errorf("Coregister: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return fmt.Errorf("Coregister.MkdirAll: %w", err)
	}
	tmp := service.AtomicPath(out)
	cmd := exec.Command(e.Command, Args(e.Mode, ref, target, tmp)...)
	cmd.Env = append(os.Environ(), e.Env...)
	filter := &arosicsLogFilter{}
	if err := log.Exec(ctx, cmd, log.WithFilter(filter)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("Coregister[%s]: %w", filepath.Base(target), filter.WrapError(err))
	}
	if !service.FileExists(tmp) {
		return fmt.Errorf("Coregister[%s]: no output", filepath.Base(target))
	}
	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("Coregister.Rename: %w", err)
	}
	return nil
}
