// Package template generates starter schedule definitions for common
// recurring-task shapes. Generated output matches the daemon's schedule
// wire format, so a file can be posted to /schedules unchanged or pasted
// into the config after converting to TOML.
package template

import (
	"encoding/json"
	"fmt"
)

// TemplateType represents the kind of schedule to generate
type TemplateType string

const (
	TypeHeartbeat   TemplateType = "heartbeat"
	TypeMonitor     TemplateType = "monitor"
	TypeCleanup     TemplateType = "cleanup"
	TypeMaintenance TemplateType = "maintenance"
	TypeBackup      TemplateType = "backup"
	TypePoller      TemplateType = "poller"
	TypeSync        TemplateType = "sync"
	TypeReport      TemplateType = "report"
	TypeSimple      TemplateType = "simple"
	TypeBasic       TemplateType = "basic"
)

// TaskTemplate is the task blueprint embedded in a schedule definition.
type TaskTemplate struct {
	Type     string            `json:"type"`
	Priority string            `json:"priority,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ScheduleTemplate represents a schedule definition template
type ScheduleTemplate struct {
	ID       string       `json:"id"`
	Expr     string       `json:"expr"`
	Template TaskTemplate `json:"template"`
	Enabled  bool         `json:"enabled"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a schedule template based on the specified type and id
func (g *Generator) Generate(templateType TemplateType, id string) (*ScheduleTemplate, error) {
	switch templateType {
	case TypeHeartbeat, TypeMonitor:
		return g.generateHeartbeatTemplate(id), nil
	case TypeCleanup, TypeMaintenance:
		return g.generateCleanupTemplate(id), nil
	case TypeBackup:
		return g.generateBackupTemplate(id), nil
	case TypePoller, TypeSync:
		return g.generatePollerTemplate(id), nil
	case TypeReport:
		return g.generateReportTemplate(id), nil
	case TypeSimple, TypeBasic:
		return g.generateSimpleTemplate(id), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: heartbeat, cleanup, backup, poller, report, simple)", templateType)
	}
}

// GenerateJSON creates a JSON representation of the template
func (g *Generator) GenerateJSON(templateType TemplateType, id string) ([]byte, error) {
	tmpl, err := g.Generate(templateType, id)
	if err != nil {
		return nil, err
	}

	jsonData, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}

	return jsonData, nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeHeartbeat),
		string(TypeCleanup),
		string(TypeBackup),
		string(TypePoller),
		string(TypeReport),
		string(TypeSimple),
	}
}

// Helper functions to create specific templates

func (g *Generator) generateHeartbeatTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "@every 30s",
		Template: TaskTemplate{
			Type:     "command",
			Priority: "low",
			Metadata: map[string]string{
				"command": "curl",
				"args":    "-fsS http://localhost:8080/healthz",
				"timeout": "10s",
			},
		},
		Enabled: true,
	}
}

func (g *Generator) generateCleanupTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "0 3 * * *",
		Template: TaskTemplate{
			Type:     "command",
			Priority: "low",
			Metadata: map[string]string{
				"command": "find",
				"args":    "/var/tmp/" + id + " -mtime +7 -delete",
			},
		},
		Enabled: true,
	}
}

func (g *Generator) generateBackupTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "@every 24h",
		Template: TaskTemplate{
			Type:     "command",
			Priority: "high",
			Metadata: map[string]string{
				"command": "pg_dump",
				"args":    "-f /var/backups/" + id + ".sql app",
				"timeout": "1h",
			},
		},
		Enabled: true,
	}
}

func (g *Generator) generatePollerTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "* * * * *",
		Template: TaskTemplate{
			Type:     "command",
			Metadata: map[string]string{
				"command": "./" + id,
				"args":    "--once",
			},
		},
		Enabled: true,
	}
}

func (g *Generator) generateReportTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "0 9 * * 1",
		Template: TaskTemplate{
			Type:     "command",
			Metadata: map[string]string{
				"command": "./report-generator",
				"args":    "--name " + id,
				"timeout": "30m",
			},
		},
		Enabled: true,
	}
}

func (g *Generator) generateSimpleTemplate(id string) *ScheduleTemplate {
	return &ScheduleTemplate{
		ID:   id,
		Expr: "@every 1m",
		Template: TaskTemplate{
			Type:     "command",
			Metadata: map[string]string{
				"command": "echo",
				"args":    id,
			},
		},
		Enabled: true,
	}
}
