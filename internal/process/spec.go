package process

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Spec describes a subprocess to spawn. Argv is executed directly, never
// through a shell.
type Spec struct {
	Command string        `json:"command"`
	Args    []string      `json:"args,omitempty"`
	WorkDir string        `json:"work_dir,omitempty"`
	Env     []string      `json:"env,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Validate checks that the spec can be spawned.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("command is required")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0")
	}
	return nil
}

// BuildCommand constructs the *exec.Cmd for the spec with process group
// attributes set. Environment and stdio wiring are the supervisor's job.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- spawning configured commands is this package's purpose
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	configureSysProcAttr(cmd)
	return cmd
}
