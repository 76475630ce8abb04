//go:build !windows

package process

import "testing"

func TestBuildCommandSetsProcessGroup(t *testing.T) {
	s := Spec{Command: "sleep", Args: []string{"1"}}
	cmd := s.BuildCommand()
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatalf("expected Setpgid process group attribute")
	}
}
