package process

import (
	"testing"
	"time"
)

func TestSpecValidate(t *testing.T) {
	good := Spec{Command: "echo", Args: []string{"hi"}, Timeout: time.Second}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	bad := Spec{}
	if err := bad.Validate(); err == nil {
		t.Fatalf("empty command should fail validation")
	}
	bad = Spec{Command: "   "}
	if err := bad.Validate(); err == nil {
		t.Fatalf("blank command should fail validation")
	}
	bad = Spec{Command: "echo", Timeout: -time.Second}
	if err := bad.Validate(); err == nil {
		t.Fatalf("negative timeout should fail validation")
	}
}

func TestBuildCommand(t *testing.T) {
	s := Spec{Command: "echo", Args: []string{"a", "b"}, WorkDir: "/tmp"}
	cmd := s.BuildCommand()
	if len(cmd.Args) != 3 || cmd.Args[1] != "a" || cmd.Args[2] != "b" {
		t.Fatalf("argv not preserved: %v", cmd.Args)
	}
	if cmd.Dir != "/tmp" {
		t.Fatalf("workdir not set: %q", cmd.Dir)
	}
	if cmd.SysProcAttr == nil {
		t.Fatalf("process group attributes not configured")
	}
}
