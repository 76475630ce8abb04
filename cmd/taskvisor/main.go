package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string // Only config path for the serve command
}

// APIFlags hold the daemon connection settings shared by client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

// TaskAddFlags holds flags for task add
type TaskAddFlags struct {
	Type     string
	Priority string
	Session  string
	Project  string
	Meta     []string
	API      APIFlags
}

// TaskGetFlags holds flags for task get and task cancel
type TaskGetFlags struct {
	ID  string
	API APIFlags
}

// TaskListFlags holds flags for task list
type TaskListFlags struct {
	Session string
	Project string
	Status  string
	API     APIFlags
}

// ScheduleAddFlags holds flags for schedule add
type ScheduleAddFlags struct {
	ID       string
	Expr     string
	Type     string
	Priority string
	Meta     []string
	Disabled bool
	API      APIFlags
}

// ScheduleIDFlags holds flags for schedule remove/enable/disable
type ScheduleIDFlags struct {
	ID  string
	API APIFlags
}

// ProcSpawnFlags holds flags for proc spawn
type ProcSpawnFlags struct {
	Command string
	Args    []string
	WorkDir string
	Env     []string
	Timeout time.Duration
	Wait    bool
	API     APIFlags
}

// ProcIDFlags holds flags for proc status/kill
type ProcIDFlags struct {
	ID  uint64
	API APIFlags
}

// ProcWaitFlags holds flags for proc wait
type ProcWaitFlags struct {
	ID      uint64
	Timeout time.Duration
	API     APIFlags
}

// TemplateCreateFlags holds flags for the template command
type TemplateCreateFlags struct {
	ID     string
	Type   string
	Output string
	Force  bool
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	tvCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createTaskCommand(tvCommand),
		createScheduleCommand(tvCommand),
		createProcCommand(tvCommand),
		createTemplateCommand(tvCommand),
		createServeCommand(globalFlags),
		createVersionCommand(),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "taskvisor",
		Short: "Task scheduling and process supervision tool",
		Long: `Taskvisor runs background tasks on a prioritized queue and supervises
external subprocesses with bounded output capture.

Examples:
  taskvisor serve --config=config.toml
  taskvisor task add --type=command --meta command=echo --meta "args=hello"
  taskvisor proc spawn --command=sleep --args=60
  taskvisor task list --api-url=http://remote:8080/api`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (serve only)")
	return root
}

// addAPIFlags attaches the shared daemon connection flags to a command.
func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.URL, "api-url", "", "daemon URL (default http://127.0.0.1:8080/api)")
	cmd.Flags().DurationVar(&f.Timeout, "api-timeout", 10*time.Second, "request timeout")
}

// createTaskCommand creates the task command with subcommands
func createTaskCommand(tvCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Task queue commands",
		Long: `Enqueue, inspect and cancel background tasks on a running daemon.

Examples:
  taskvisor task add --type=command --priority=high --meta command=backup.sh
  taskvisor task list --status=running
  taskvisor task pending
  taskvisor task cancel --id=<task-id>`,
	}
	cmd.AddCommand(
		createTaskAddCommand(tvCommand),
		createTaskGetCommand(tvCommand),
		createTaskListCommand(tvCommand),
		createTaskPendingCommand(tvCommand),
		createTaskCancelCommand(tvCommand),
	)
	return cmd
}

func createTaskAddCommand(tvCommand command) *cobra.Command {
	flags := &TaskAddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Enqueue a new task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TaskAdd(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Type, "type", "", "task type tag (required)")
	cmd.Flags().StringVar(&flags.Priority, "priority", "", "urgent|high|medium|low (default medium)")
	cmd.Flags().StringVar(&flags.Session, "session", "", "session id")
	cmd.Flags().StringVar(&flags.Project, "project", "", "project id")
	cmd.Flags().StringArrayVar(&flags.Meta, "meta", nil, "metadata key=value (repeatable)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
	return cmd
}

func createTaskGetCommand(tvCommand command) *cobra.Command {
	flags := &TaskGetFlags{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a task by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TaskGet(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "task id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createTaskListCommand(tvCommand command) *cobra.Command {
	flags := &TaskListFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TaskList(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Session, "session", "", "filter by session id")
	cmd.Flags().StringVar(&flags.Project, "project", "", "filter by project id")
	cmd.Flags().StringVar(&flags.Status, "status", "", "filter by status (pending|running|completed|failed)")
	addAPIFlags(cmd, &flags.API)
	return cmd
}

func createTaskPendingCommand(tvCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending tasks in dispatch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TaskPending(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createTaskCancelCommand(tvCommand command) *cobra.Command {
	flags := &TaskGetFlags{}
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending or running task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TaskCancel(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "task id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createScheduleCommand creates the schedule command with subcommands
func createScheduleCommand(tvCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Recurring schedule commands",
		Long: `Manage recurring schedules that enqueue tasks on a cadence.

Examples:
  taskvisor schedule add --id=nightly --expr="0 2 * * *" --type=command --meta command=backup.sh
  taskvisor schedule add --id=beat --expr="@every 30s" --type=heartbeat
  taskvisor schedule list
  taskvisor schedule remove --id=nightly`,
	}
	cmd.AddCommand(
		createScheduleAddCommand(tvCommand),
		createScheduleListCommand(tvCommand),
		createScheduleRemoveCommand(tvCommand),
		createScheduleEnableCommand(tvCommand, true),
		createScheduleEnableCommand(tvCommand, false),
	)
	return cmd
}

func createScheduleAddCommand(tvCommand command) *cobra.Command {
	flags := &ScheduleAddFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a recurring schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ScheduleAdd(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "schedule id (generated when empty)")
	cmd.Flags().StringVar(&flags.Expr, "expr", "", `recurrence: "* * * * *", five-field, or @every <duration> (required)`)
	cmd.Flags().StringVar(&flags.Type, "type", "", "task type the schedule enqueues (required)")
	cmd.Flags().StringVar(&flags.Priority, "priority", "", "priority of created tasks")
	cmd.Flags().StringArrayVar(&flags.Meta, "meta", nil, "template metadata key=value (repeatable)")
	cmd.Flags().BoolVar(&flags.Disabled, "disabled", false, "register disabled")
	addAPIFlags(cmd, &flags.API)
	for _, name := range []string{"expr", "type"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return cmd
}

func createScheduleListCommand(tvCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ScheduleList(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createScheduleRemoveCommand(tvCommand command) *cobra.Command {
	flags := &ScheduleIDFlags{}
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ScheduleRemove(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "schedule id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createScheduleEnableCommand(tvCommand command, enable bool) *cobra.Command {
	use, short := "enable", "Enable a schedule"
	if !enable {
		use, short = "disable", "Disable a schedule"
	}
	flags := &ScheduleIDFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ScheduleEnable(*flags, enable)
		},
	}
	cmd.Flags().StringVar(&flags.ID, "id", "", "schedule id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createProcCommand creates the proc command with subcommands
func createProcCommand(tvCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proc",
		Short: "Supervised process commands",
		Long: `Spawn and control subprocesses supervised by the daemon.

Examples:
  taskvisor proc spawn --command=sh --args=-c --args="sleep 5; echo done" --wait
  taskvisor proc list
  taskvisor proc status --id=3
  taskvisor proc kill --id=3`,
	}
	cmd.AddCommand(
		createProcSpawnCommand(tvCommand),
		createProcStatusCommand(tvCommand),
		createProcListCommand(tvCommand),
		createProcKillCommand(tvCommand),
		createProcWaitCommand(tvCommand),
	)
	return cmd
}

func createProcSpawnCommand(tvCommand command) *cobra.Command {
	flags := &ProcSpawnFlags{}
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Spawn a supervised subprocess",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ProcSpawn(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Command, "command", "", "binary to run, argv style (required)")
	cmd.Flags().StringArrayVar(&flags.Args, "args", nil, "argument (repeatable)")
	cmd.Flags().StringVar(&flags.WorkDir, "work-dir", "", "working directory (absolute)")
	cmd.Flags().StringArrayVar(&flags.Env, "env", nil, "environment KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "kill the process after this long (0 = no timeout)")
	cmd.Flags().BoolVar(&flags.Wait, "wait", false, "wait for completion and print the final status")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("command"); err != nil {
		panic(err)
	}
	return cmd
}

func createProcStatusCommand(tvCommand command) *cobra.Command {
	flags := &ProcIDFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a live process with its captured output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ProcStatus(*flags)
		},
	}
	cmd.Flags().Uint64Var(&flags.ID, "id", 0, "process id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createProcListCommand(tvCommand command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ProcList(*flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createProcKillCommand(tvCommand command) *cobra.Command {
	flags := &ProcIDFlags{}
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Terminate a process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ProcKill(*flags)
		},
	}
	cmd.Flags().Uint64Var(&flags.ID, "id", 0, "process id (required)")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

func createProcWaitCommand(tvCommand command) *cobra.Command {
	flags := &ProcWaitFlags{}
	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until a process finishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.ProcWait(*flags)
		},
	}
	cmd.Flags().Uint64Var(&flags.ID, "id", 0, "process id (required)")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 30*time.Second, "give up after this long")
	addAPIFlags(cmd, &flags.API)
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(err)
	}
	return cmd
}

// createTemplateCommand creates the template command
func createTemplateCommand(tvCommand command) *cobra.Command {
	flags := &TemplateCreateFlags{}
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create schedule templates",
		Long: `Create schedule definition templates for common recurring-task shapes.
Generated files match the /schedules wire format and can be posted as-is.

Supported template types:
  heartbeat - Periodic health probe
  cleanup   - Nightly file cleanup
  backup    - Daily backup with a timeout
  poller    - Every-minute worker run
  report    - Weekly report generation
  simple    - Basic echo schedule

Examples:
  taskvisor template --type=heartbeat --id=api-heartbeat
  taskvisor template --type=backup --output=./db-backup.json
  taskvisor template --type=simple --id=hello --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tvCommand.TemplateCreate(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Type, "type", "", "template type (required): heartbeat, cleanup, backup, poller, report, simple")
	cmd.Flags().StringVar(&flags.ID, "id", "", "schedule id for template (defaults to type-sample)")
	cmd.Flags().StringVar(&flags.Output, "output", "", "output file path (defaults to templates/id.json)")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite existing template file")
	if err := cmd.MarkFlagRequired("type"); err != nil {
		panic(err)
	}
	return cmd
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the taskvisor daemon",
		Long: `Start the taskvisor daemon: dispatch loop, process supervisor and HTTP API.
All configuration is loaded from a TOML config file.

Examples:
  taskvisor serve --config=config.toml
  taskvisor serve config.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(&ServeFlags{ConfigPath: globalFlags.ConfigPath}, args)
		},
	}
	return cmd
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskvisor version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("taskvisor", version)
		},
	}
}
