// Package config loads the TOML configuration for the daemon and maps it
// onto the engine's option structs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/taskvisor/internal/logger"
	"github.com/loykin/taskvisor/internal/task"
)

// Config is the top-level TOML structure.
//
//	[engine]
//	tick_interval = "5s"
//	max_concurrent = 3
//	grace_period = "5s"
//	env = ["TASK_ENV=prod"]
//
//	[store]
//	dsn = "sqlite://taskvisor.db"
//
//	[server]
//	listen = ":8080"
//	base_path = "/api"
//
//	[history]
//	sinks = ["clickhouse://localhost:9000/taskvisor"]
//
//	[[schedules]]
//	id = "cleanup"
//	expr = "@every 1h"
//	type = "command"
type Config struct {
	Engine    EngineConfig     `toml:"engine" mapstructure:"engine"`
	Store     StoreConfig      `toml:"store" mapstructure:"store"`
	Log       logger.Config    `toml:"log" mapstructure:"log"`
	Server    ServerConfig     `toml:"server" mapstructure:"server"`
	History   HistoryConfig    `toml:"history" mapstructure:"history"`
	Schedules []ScheduleConfig `toml:"schedules" mapstructure:"schedules"`
}

// EngineConfig tunes the queue and the supervisor. Zero values fall back to
// the defaults of the component they configure.
type EngineConfig struct {
	TickInterval    time.Duration `toml:"tick_interval" mapstructure:"tick_interval"`
	MaxConcurrent   int           `toml:"max_concurrent" mapstructure:"max_concurrent"`
	GracePeriod     time.Duration `toml:"grace_period" mapstructure:"grace_period"`
	MaxOutputBytes  int64         `toml:"max_output_bytes" mapstructure:"max_output_bytes"`
	MaxOutputChunks int           `toml:"max_output_chunks" mapstructure:"max_output_chunks"`
	Env             []string      `toml:"env" mapstructure:"env"`
}

type StoreConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
	Key string `toml:"key" mapstructure:"key"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

type HistoryConfig struct {
	Sinks []string `toml:"sinks" mapstructure:"sinks"`
}

// ScheduleConfig declares a recurring schedule in the config file.
type ScheduleConfig struct {
	ID        string            `toml:"id" mapstructure:"id"`
	Expr      string            `toml:"expr" mapstructure:"expr"`
	Type      string            `toml:"type" mapstructure:"type"`
	Priority  string            `toml:"priority" mapstructure:"priority"`
	SessionID string            `toml:"session_id" mapstructure:"session_id"`
	ProjectID string            `toml:"project_id" mapstructure:"project_id"`
	Enabled   bool              `toml:"enabled" mapstructure:"enabled"`
	Metadata  map[string]string `toml:"metadata" mapstructure:"metadata"`
}

// ToSchedule converts the config entry into the queue's schedule type.
func (s ScheduleConfig) ToSchedule() (task.Schedule, error) {
	prio, err := task.ParsePriority(s.Priority)
	if err != nil {
		return task.Schedule{}, fmt.Errorf("schedule %q: %w", s.ID, err)
	}
	sched := task.Schedule{
		ID:      s.ID,
		Expr:    s.Expr,
		Enabled: s.Enabled,
		Template: task.Template{
			Type:      s.Type,
			Priority:  prio,
			SessionID: s.SessionID,
			ProjectID: s.ProjectID,
			Metadata:  s.Metadata,
		},
	}
	sched.GetDefaults()
	if err := sched.Validate(); err != nil {
		return task.Schedule{}, fmt.Errorf("schedule %q: %w", s.ID, err)
	}
	return sched, nil
}

// Load reads and validates a TOML config file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Store.DSN == "" {
		c.Store.DSN = "taskvisor.db"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api"
	}
}

// Validate rejects values the engine would later choke on, naming the
// offending entry.
func (c *Config) Validate() error {
	if c.Engine.TickInterval < 0 {
		return fmt.Errorf("engine.tick_interval must not be negative")
	}
	if c.Engine.MaxConcurrent < 0 {
		return fmt.Errorf("engine.max_concurrent must not be negative")
	}
	if c.Engine.GracePeriod < 0 {
		return fmt.Errorf("engine.grace_period must not be negative")
	}
	seen := make(map[string]bool)
	for _, s := range c.Schedules {
		// A stable id is what makes a config schedule recognizable across
		// restarts; without one it would be re-registered on every boot.
		if s.ID == "" {
			return fmt.Errorf("schedule id is required (expr %q)", s.Expr)
		}
		if seen[s.ID] {
			return fmt.Errorf("schedule %q defined twice", s.ID)
		}
		seen[s.ID] = true
		if _, err := s.ToSchedule(); err != nil {
			return err
		}
	}
	return nil
}

// TaskSchedules converts all configured schedules.
func (c *Config) TaskSchedules() ([]task.Schedule, error) {
	out := make([]task.Schedule, 0, len(c.Schedules))
	for _, s := range c.Schedules {
		sched, err := s.ToSchedule()
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, nil
}
