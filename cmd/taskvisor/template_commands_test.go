package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCommand_GetTemplatesDirectory(t *testing.T) {
	cmd := command{}

	expectedDir := "templates"
	actualDir := cmd.getTemplatesDirectory()

	if actualDir != expectedDir {
		t.Errorf("expected templates directory '%s', got '%s'", expectedDir, actualDir)
	}
}

func TestCommand_TemplateCreate(t *testing.T) {
	tempDir := t.TempDir()
	originalWd, _ := os.Getwd()
	defer func() { _ = os.Chdir(originalWd) }()

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}

	cmd := command{}

	tests := []struct {
		name         string
		flags        TemplateCreateFlags
		expectError  bool
		validateFile func(t *testing.T, filePath string)
	}{
		{
			name: "create_heartbeat_template",
			flags: TemplateCreateFlags{
				Type: "heartbeat",
				ID:   "api-heartbeat",
			},
			expectError: false,
			validateFile: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				if err != nil {
					t.Errorf("failed to read file: %v", err)
					return
				}
				contentStr := string(content)
				if !strings.Contains(contentStr, "api-heartbeat") {
					t.Error("template should contain schedule id")
				}
				if !strings.Contains(contentStr, "@every 30s") {
					t.Error("heartbeat template should contain its interval")
				}
			},
		},
		{
			name: "create_backup_template",
			flags: TemplateCreateFlags{
				Type: "backup",
				ID:   "db-backup",
			},
			expectError: false,
			validateFile: func(t *testing.T, filePath string) {
				content, err := os.ReadFile(filePath)
				if err != nil {
					t.Errorf("failed to read file: %v", err)
					return
				}
				contentStr := string(content)
				if !strings.Contains(contentStr, "db-backup") {
					t.Error("template should contain schedule id")
				}
				if !strings.Contains(contentStr, "priority") {
					t.Error("backup template should contain a priority field")
				}
			},
		},
		{
			name: "create_template_with_custom_output",
			flags: TemplateCreateFlags{
				Type:   "poller",
				ID:     "data-sync",
				Output: filepath.Join(tempDir, "custom-poller.json"),
			},
			expectError: false,
			validateFile: func(t *testing.T, filePath string) {
				if !strings.HasSuffix(filePath, "custom-poller.json") {
					t.Errorf("expected custom output path, got %s", filePath)
				}
				if _, err := os.Stat(filePath); err != nil {
					t.Errorf("expected file to exist: %v", err)
				}
			},
		},
		{
			name: "default_id_from_type",
			flags: TemplateCreateFlags{
				Type: "simple",
			},
			expectError: false,
			validateFile: func(t *testing.T, filePath string) {
				if !strings.HasSuffix(filePath, "simple-sample.json") {
					t.Errorf("expected default id filename, got %s", filePath)
				}
			},
		},
		{
			name: "unknown_type",
			flags: TemplateCreateFlags{
				Type: "nope",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cmd.TemplateCreate(tt.flags)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("TemplateCreate: %v", err)
			}

			filePath := tt.flags.Output
			if filePath == "" {
				id := tt.flags.ID
				if id == "" {
					id = tt.flags.Type + "-sample"
				}
				filePath = filepath.Join("templates", id+".json")
			}
			if tt.validateFile != nil {
				tt.validateFile(t, filePath)
			}
		})
	}
}

func TestCommand_TemplateCreateForceOverwrite(t *testing.T) {
	tempDir := t.TempDir()
	cmd := command{}
	out := filepath.Join(tempDir, "dup.json")

	if err := cmd.TemplateCreate(TemplateCreateFlags{Type: "simple", ID: "dup", Output: out}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := cmd.TemplateCreate(TemplateCreateFlags{Type: "simple", ID: "dup", Output: out}); err == nil {
		t.Fatal("expected error without --force when file exists")
	}
	if err := cmd.TemplateCreate(TemplateCreateFlags{Type: "simple", ID: "dup", Output: out, Force: true}); err != nil {
		t.Fatalf("force create: %v", err)
	}
}
