package main

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/taskvisor/pkg/client"
)

// command bundles the method-style handlers the cobra builders delegate to.
// All of them talk to a running daemon over its HTTP API.
type command struct{}

func newAPIClient(f APIFlags) *client.Client {
	base := f.URL
	if base == "" {
		base = "http://127.0.0.1:8080/api"
	}
	return client.New(client.Config{BaseURL: base, Timeout: f.Timeout})
}

// waitAPIFlags widens the HTTP timeout so the client outlives a server-side
// wait of the given length.
func waitAPIFlags(f APIFlags, wait time.Duration) APIFlags {
	if f.Timeout < wait+5*time.Second {
		f.Timeout = wait + 5*time.Second
	}
	return f
}

// TaskAdd enqueues a task on the daemon
func (c command) TaskAdd(f TaskAddFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	meta, err := parseMetadata(f.Meta)
	if err != nil {
		return err
	}
	t, err := cl.AddTask(ctx, client.TaskRequest{
		Type:      f.Type,
		Priority:  f.Priority,
		SessionID: f.Session,
		ProjectID: f.Project,
		Metadata:  meta,
	})
	if err != nil {
		return err
	}
	printJSON(t)
	return nil
}

// TaskGet prints a single task
func (c command) TaskGet(f TaskGetFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	t, err := cl.GetTask(ctx, f.ID)
	if err != nil {
		return err
	}
	printJSON(t)
	return nil
}

// TaskList prints tasks matching the filter flags
func (c command) TaskList(f TaskListFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	ts, err := cl.ListTasks(ctx, client.TaskQuery{
		SessionID: f.Session,
		ProjectID: f.Project,
		Status:    f.Status,
	})
	if err != nil {
		return err
	}
	printJSON(ts)
	return nil
}

// TaskPending prints pending tasks in the order the dispatcher will take them
func (c command) TaskPending(f APIFlags) error {
	cl := newAPIClient(f)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	ts, err := cl.PendingTasks(ctx)
	if err != nil {
		return err
	}
	printJSON(ts)
	return nil
}

// TaskCancel cancels a pending or running task
func (c command) TaskCancel(f TaskGetFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	if err := cl.CancelTask(ctx, f.ID); err != nil {
		return err
	}
	fmt.Printf("Task cancelled: %s\n", f.ID)
	return nil
}

// ScheduleAdd registers a recurring schedule
func (c command) ScheduleAdd(f ScheduleAddFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	meta, err := parseMetadata(f.Meta)
	if err != nil {
		return err
	}
	s, err := cl.AddSchedule(ctx, client.ScheduleRequest{
		ID:   f.ID,
		Expr: f.Expr,
		Template: client.TaskRequest{
			Type:     f.Type,
			Priority: f.Priority,
			Metadata: meta,
		},
		Enabled: !f.Disabled,
	})
	if err != nil {
		return err
	}
	printJSON(s)
	return nil
}

// ScheduleList prints all registered schedules
func (c command) ScheduleList(f APIFlags) error {
	cl := newAPIClient(f)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	ss, err := cl.Schedules(ctx)
	if err != nil {
		return err
	}
	printJSON(ss)
	return nil
}

// ScheduleRemove removes a schedule
func (c command) ScheduleRemove(f ScheduleIDFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	if err := cl.RemoveSchedule(ctx, f.ID); err != nil {
		return err
	}
	fmt.Printf("Schedule removed: %s\n", f.ID)
	return nil
}

// ScheduleEnable flips a schedule on or off
func (c command) ScheduleEnable(f ScheduleIDFlags, enable bool) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	if err := cl.EnableSchedule(ctx, f.ID, enable); err != nil {
		return err
	}
	if enable {
		fmt.Printf("Schedule enabled: %s\n", f.ID)
	} else {
		fmt.Printf("Schedule disabled: %s\n", f.ID)
	}
	return nil
}

// ProcSpawn starts a supervised subprocess, optionally waiting for it
func (c command) ProcSpawn(f ProcSpawnFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	info, err := cl.Spawn(ctx, client.SpawnRequest{
		Command: f.Command,
		Args:    f.Args,
		WorkDir: f.WorkDir,
		Env:     f.Env,
		Timeout: f.Timeout,
	})
	if err != nil {
		return err
	}
	if !f.Wait {
		printJSON(info)
		return nil
	}

	// With a spawn timeout the process is force-killed shortly after it, so
	// waiting a little longer than that is enough. Without one, cap at 30s.
	wait := 30 * time.Second
	if f.Timeout > 0 {
		wait = f.Timeout + 10*time.Second
	}
	wcl := newAPIClient(waitAPIFlags(f.API, wait))
	info, err = wcl.WaitProcess(ctx, info.ID, wait)
	if err != nil {
		return err
	}
	printJSON(info)
	return nil
}

// ProcStatus prints a live process snapshot with its captured output
func (c command) ProcStatus(f ProcIDFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	info, err := cl.Process(ctx, f.ID)
	if err != nil {
		return err
	}
	printJSON(info)
	return nil
}

// ProcList prints all live processes
func (c command) ProcList(f APIFlags) error {
	cl := newAPIClient(f)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	infos, err := cl.Processes(ctx)
	if err != nil {
		return err
	}
	printJSON(infos)
	return nil
}

// ProcKill asks the daemon to terminate a process
func (c command) ProcKill(f ProcIDFlags) error {
	cl := newAPIClient(f.API)
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	if err := cl.KillProcess(ctx, f.ID); err != nil {
		return err
	}
	fmt.Printf("Process kill requested: %d\n", f.ID)
	return nil
}

// ProcWait blocks until a process finishes and prints its final snapshot
func (c command) ProcWait(f ProcWaitFlags) error {
	cl := newAPIClient(waitAPIFlags(f.API, f.Timeout))
	ctx := context.Background()
	if !cl.IsReachable(ctx) {
		return fmt.Errorf("daemon not reachable - please start daemon first with 'taskvisor serve'")
	}

	info, err := cl.WaitProcess(ctx, f.ID, f.Timeout)
	if err != nil {
		return err
	}
	printJSON(info)
	return nil
}
