package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"github.com/stagecraft/stagehand/internal/client"
	"github.com/stagecraft/stagehand/internal/config"
	"github.com/stagecraft/stagehand/internal/daemon"
	"github.com/stagecraft/stagehand/internal/task"
	"github.com/stagecraft/stagehand/pkg/clog"
)

var (
	app       = kingpin.New("stagehand", "Production crew task scheduler for a virtual theater")
	daemonURL = app.Flag("daemon", "Daemon base URL").Default("http://127.0.0.1:8765").String()

	startCmd = app.Command("start", "Start the stagehand daemon")

	taskCmd = app.Command("task", "Task management commands")

	taskCreateCmd      = taskCmd.Command("create", "Create a new task")
	taskCreateName     = taskCreateCmd.Arg("name", "Task name").Required().String()
	taskCreateDesc     = taskCreateCmd.Flag("description", "Task description").String()
	taskCreateType     = taskCreateCmd.Flag("type", "Task type").Default("general").String()
	taskCreatePriority = taskCreateCmd.Flag("priority", "critical, high, medium or low").Default("medium").String()
	taskCreateRoles    = taskCreateCmd.Flag("role", "Required crew role (repeatable)").Strings()
	taskCreateDeps     = taskCreateCmd.Flag("depends-on", "Dependency task ID (repeatable)").Strings()

	taskListCmd = taskCmd.Command("list", "List all tasks")

	taskShowCmd = taskCmd.Command("show", "Show task details")
	taskShowID  = taskShowCmd.Arg("id", "Task ID").Required().String()

	taskCancelCmd = taskCmd.Command("cancel", "Cancel a task")
	taskCancelID  = taskCancelCmd.Arg("id", "Task ID").Required().String()

	agentListCmd = app.Command("agents", "List crew agents")

	statusCmd = app.Command("status", "Show scheduler status")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case startCmd.FullCommand():
		err = runDaemon(ctx)
	case taskCreateCmd.FullCommand():
		err = createTask(ctx)
	case taskListCmd.FullCommand():
		err = listTasks(ctx)
	case taskShowCmd.FullCommand():
		err = showTask(ctx)
	case taskCancelCmd.FullCommand():
		err = cancelTask(ctx)
	case agentListCmd.FullCommand():
		err = listAgents(ctx)
	case statusCmd.FullCommand():
		err = showStatus(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(ctx context.Context) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	clog.Setup(env.SlogLevel())

	d, err := daemon.New(env)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func createTask(ctx context.Context) error {
	c := client.New(*daemonURL)
	t, err := c.CreateTask(ctx, task.Definition{
		Name:          *taskCreateName,
		Description:   *taskCreateDesc,
		Type:          *taskCreateType,
		Priority:      *taskCreatePriority,
		RequiredRoles: *taskCreateRoles,
		Dependencies:  *taskCreateDeps,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s (%s queue, %s)\n", t.ID, t.Queue, t.Priority)
	return nil
}

func listTasks(ctx context.Context) error {
	tasks, err := client.New(*daemonURL).ListTasks(ctx)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks")
		return nil
	}
	fmt.Printf("%-28s %-12s %-10s %-9s %4s  %s\n", "ID", "QUEUE", "STATUS", "PRIORITY", "PROG", "NAME")
	for _, t := range tasks {
		fmt.Printf("%-28s %-12s %-10s %-9s %3d%%  %s\n",
			t.ID, t.Queue, t.Status, t.Priority, t.Progress, t.Name)
	}
	return nil
}

func showTask(ctx context.Context) error {
	t, err := client.New(*daemonURL).GetTask(ctx, *taskShowID)
	if err != nil {
		return err
	}
	fmt.Printf("ID:        %s\n", t.ID)
	fmt.Printf("Name:      %s\n", t.Name)
	fmt.Printf("Queue:     %s\n", t.Queue)
	fmt.Printf("Status:    %s\n", t.Status)
	fmt.Printf("Priority:  %s\n", t.Priority)
	fmt.Printf("Progress:  %d%%\n", t.Progress)
	if len(t.RequiredRoles) > 0 {
		fmt.Printf("Roles:     %s\n", strings.Join(t.RequiredRoles, ", "))
	}
	if len(t.Dependencies) > 0 {
		fmt.Printf("Depends:   %s\n", strings.Join(t.Dependencies, ", "))
	}
	if len(t.AssignedAgents) > 0 {
		fmt.Printf("Crew:      %s\n", strings.Join(t.AssignedAgents, ", "))
	}
	for _, d := range t.Deliverables {
		ref, ok := t.Results.Deliverables[d.Name]
		mark := " "
		if ok {
			mark = "x"
		}
		fmt.Printf("  [%s] deliverable %s %s\n", mark, d.Name, ref)
	}
	for _, g := range t.QualityGates {
		fmt.Printf("  [%s] gate %s\n", t.Results.Gates[g.Name], g.Name)
	}
	if t.FailureReason != "" {
		fmt.Printf("Failure:   %s\n", t.FailureReason)
	}
	return nil
}

func cancelTask(ctx context.Context) error {
	if err := client.New(*daemonURL).CancelTask(ctx, *taskCancelID); err != nil {
		return err
	}
	fmt.Printf("Cancelled task %s\n", *taskCancelID)
	return nil
}

func listAgents(ctx context.Context) error {
	agents, err := client.New(*daemonURL).ListAgents(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-22s %-18s %-8s %s\n", "ID", "ROLE", "STATUS", "TASK")
	for _, a := range agents {
		fmt.Printf("%-22s %-18s %-8s %s\n", a.ID, a.Role, a.Status, a.TaskID)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	st, err := client.New(*daemonURL).Status(ctx)
	if err != nil {
		return err
	}
	m := st.Scheduler.Metrics
	fmt.Printf("Tasks: %d total, %d completed, %d failed (%d%% success, avg %dms)\n",
		m.TotalTasks, m.CompletedTasks, m.FailedTasks, m.SuccessRatePercent, m.AverageDurationMillis)
	for cat, n := range st.Scheduler.Queues {
		fmt.Printf("  queue %-12s %d pending\n", cat, n)
	}
	busy := 0
	for _, a := range st.Agents {
		if a.Status == "BUSY" {
			busy++
		}
	}
	fmt.Printf("Agents: %d total, %d busy\n", len(st.Agents), busy)
	return nil
}
