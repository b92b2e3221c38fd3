package event

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Hook is a shell command run when a matching event fires. Configured from
// YAML alongside the agent roster.
type Hook struct {
	Name    string    `yaml:"name"`
	Event   EventType `yaml:"event"`
	Command string    `yaml:"command"`
	Timeout int       `yaml:"timeout,omitempty"` // seconds
}

// HookExecutor executes hooks in response to events.
type HookExecutor struct {
	hooks  []Hook
	parser *syntax.Parser
}

// NewHookExecutor creates a new hook executor, rejecting hooks whose
// commands do not parse.
func NewHookExecutor(hooks []Hook) (*HookExecutor, error) {
	parser := syntax.NewParser()
	for _, hook := range hooks {
		if _, err := parser.Parse(strings.NewReader(hook.Command), hook.Name); err != nil {
			return nil, fmt.Errorf("hook %s has invalid command: %w", hook.Name, err)
		}
	}
	return &HookExecutor{
		hooks:  hooks,
		parser: parser,
	}, nil
}

// Execute runs all hooks that match the given event.
func (he *HookExecutor) Execute(ctx context.Context, eventMsg *EventMessage) error {
	for _, hook := range he.hooks {
		if hook.Event != eventMsg.Type {
			continue
		}
		if err := he.executeHook(ctx, hook, eventMsg); err != nil {
			return fmt.Errorf("failed to execute hook %s: %w", hook.Name, err)
		}
	}
	return nil
}

func (he *HookExecutor) executeHook(ctx context.Context, hook Hook, eventMsg *EventMessage) error {
	env := append(os.Environ(),
		fmt.Sprintf("STAGEHAND_EVENT_TYPE=%s", eventMsg.Type),
		fmt.Sprintf("STAGEHAND_EVENT_ID=%s", eventMsg.ID),
		fmt.Sprintf("STAGEHAND_EVENT_SOURCE=%s", eventMsg.Source),
		fmt.Sprintf("STAGEHAND_EVENT_TIMESTAMP=%s", eventMsg.Timestamp.Format(time.RFC3339)),
		fmt.Sprintf("STAGEHAND_EVENT_DATA=%s", string(eventMsg.Data)),
	)

	timeout := 30 * time.Second
	if hook.Timeout > 0 {
		timeout = time.Duration(hook.Timeout) * time.Second
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	file, err := he.parser.Parse(strings.NewReader(hook.Command), hook.Name)
	if err != nil {
		return fmt.Errorf("failed to parse hook command: %w", err)
	}

	runner, err := interp.New(
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, os.Stdout, os.Stderr),
	)
	if err != nil {
		return fmt.Errorf("failed to create shell runner: %w", err)
	}

	if err := runner.Run(hookCtx, file); err != nil {
		return fmt.Errorf("hook command failed: %w", err)
	}
	return nil
}

// RegisterHooks subscribes the executor to every topic its hooks name.
func RegisterHooks(bus *Bus, executor *HookExecutor) error {
	topics := map[EventType]bool{}
	for _, hook := range executor.hooks {
		topics[hook.Event] = true
	}
	for eventType := range topics {
		err := bus.SubscribeAsync(string(eventType), fmt.Sprintf("hook-%s", eventType), func(ctx context.Context, msg *EventMessage) error {
			if err := executor.Execute(ctx, msg); err != nil {
				slog.Error("event hook failed", "type", msg.Type, "error", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
