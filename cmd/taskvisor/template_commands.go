package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loykin/taskvisor/pkg/template"
)

// getTemplatesDirectory returns the templates directory path
func (c command) getTemplatesDirectory() string {
	return "templates"
}

// TemplateCreate creates a new schedule template file
func (c command) TemplateCreate(f TemplateCreateFlags) error {
	// Use provided id or default based on type
	scheduleID := f.ID
	if scheduleID == "" {
		scheduleID = f.Type + "-sample"
	}

	// Determine output file path
	outputPath := f.Output
	if outputPath == "" {
		templatesDir := c.getTemplatesDirectory()
		if err := os.MkdirAll(templatesDir, 0o755); err != nil {
			return fmt.Errorf("failed to create templates directory: %w", err)
		}
		outputPath = filepath.Join(templatesDir, scheduleID+".json")
	}

	// Check if file already exists and force flag not set
	if _, err := os.Stat(outputPath); err == nil && !f.Force {
		return fmt.Errorf("template file '%s' already exists (use --force to overwrite)", outputPath)
	}

	generator := template.NewGenerator()
	content, err := generator.GenerateJSON(template.TemplateType(f.Type), scheduleID)
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}

	if err := os.WriteFile(outputPath, content, 0o644); err != nil {
		return fmt.Errorf("failed to write template file: %w", err)
	}

	fmt.Printf("Template '%s' created: %s\n", scheduleID, outputPath)
	fmt.Printf("Edit the template and register with: curl -X POST --data @%s http://localhost:8080/api/schedules\n", outputPath)
	return nil
}
