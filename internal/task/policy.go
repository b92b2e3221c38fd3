package task

import (
	"fmt"

	"github.com/stagecraft/stagehand/internal/agent"
)

// FailurePolicy decides during a monitoring pass whether an
// in-progress task has failed. The returned string is the failure
// reason when the first result is true.
type FailurePolicy interface {
	Failed(t *Task, crew []*agent.Agent) (string, bool)
}

// BlockPolicy decides whether a task is currently impeded. A task it
// reports blocked stays monitored and returns to in_progress once the
// condition clears.
type BlockPolicy interface {
	Blocked(t *Task, crew []*agent.Agent) (Blocker, bool)
}

// CrewErrored fails a task once every assigned agent sits in the error
// state. A single healthy agent keeps the task alive.
type CrewErrored struct{}

func (CrewErrored) Failed(t *Task, crew []*agent.Agent) (string, bool) {
	if len(crew) == 0 {
		return "", false
	}
	for _, a := range crew {
		if a.Status() != agent.StatusError {
			return "", false
		}
	}
	return "all assigned crew reported errors", true
}

// CrewStalled blocks a task while any assigned agent reports the
// blocked state.
type CrewStalled struct{}

func (CrewStalled) Blocked(t *Task, crew []*agent.Agent) (Blocker, bool) {
	for _, a := range crew {
		if a.Status() == agent.StatusBlocked {
			return Blocker{
				Reason:     fmt.Sprintf("agent %s is blocked", a.ID()),
				ReportedBy: a.ID(),
			}, true
		}
	}
	return Blocker{}, false
}
