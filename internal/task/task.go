package task

import (
	"time"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

// Status is the lifecycle state of a production task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority orders tasks within a queue. Lower rank drains first.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

var priorityNames = map[Priority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityMedium:   "medium",
	PriorityLow:      "low",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return "medium"
}

// ParsePriority maps a label to its rank. The empty string defaults to
// medium; anything else unknown is rejected.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "":
		return PriorityMedium, nil
	case "critical":
		return PriorityCritical, nil
	case "high":
		return PriorityHigh, nil
	case "medium":
		return PriorityMedium, nil
	case "low":
		return PriorityLow, nil
	}
	return PriorityMedium, cerr.Errorf(cerr.InvalidArgument, nil, "unknown priority %q", s)
}

func (p Priority) MarshalYAML() (interface{}, error) { return p.String(), nil }

func (p *Priority) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// GatePassed is the only gate result that counts toward completion.
const GatePassed = "passed"

// Deliverable names an artifact the crew must produce before the task
// can complete.
type Deliverable struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// QualityGate is a named check that must record a passed result before
// the task can complete.
type QualityGate struct {
	Name     string `yaml:"name" json:"name"`
	Criteria string `yaml:"criteria,omitempty" json:"criteria,omitempty"`
}

// Blocker records one impediment reported against a task.
type Blocker struct {
	Reason     string    `yaml:"reason" json:"reason"`
	ReportedBy string    `yaml:"reported_by,omitempty" json:"reportedBy,omitempty"`
	At         time.Time `yaml:"at" json:"at"`
}

// Results holds what the crew has turned in so far: asset references
// keyed by deliverable name and outcomes keyed by gate name.
type Results struct {
	Deliverables map[string]string `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
	Gates        map[string]string `yaml:"gates,omitempty" json:"gates,omitempty"`
}

// Task is one unit of production work moving through the scheduler.
type Task struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string `yaml:"type" json:"type"`

	Priority      Priority `yaml:"priority" json:"priority"`
	Queue         Category `yaml:"queue" json:"queue"`
	RequiredRoles []string `yaml:"required_roles,omitempty" json:"requiredRoles,omitempty"`
	Dependencies  []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	Deliverables []Deliverable `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
	QualityGates []QualityGate `yaml:"quality_gates,omitempty" json:"qualityGates,omitempty"`

	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty" json:"estimatedDuration,omitempty"`
	Deadline          time.Time     `yaml:"deadline,omitempty" json:"deadline,omitempty"`

	Status         Status    `yaml:"status" json:"status"`
	Progress       int       `yaml:"progress" json:"progress"`
	AssignedAgents []string  `yaml:"assigned_agents,omitempty" json:"assignedAgents,omitempty"`
	Blockers       []Blocker `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	Feedback       []string  `yaml:"feedback,omitempty" json:"feedback,omitempty"`
	FailureReason  string    `yaml:"failure_reason,omitempty" json:"failureReason,omitempty"`

	Results Results `yaml:"results,omitempty" json:"results,omitempty"`

	CreatedAt   time.Time `yaml:"created_at" json:"createdAt"`
	StartedAt   time.Time `yaml:"started_at,omitempty" json:"startedAt,omitempty"`
	CompletedAt time.Time `yaml:"completed_at,omitempty" json:"completedAt,omitempty"`
}

// ContractMet reports whether every declared deliverable has a recorded
// asset and every quality gate has recorded a passed result. A task
// with no deliverables and no gates is trivially satisfied.
func (t *Task) ContractMet() bool {
	for _, d := range t.Deliverables {
		if _, ok := t.Results.Deliverables[d.Name]; !ok {
			return false
		}
	}
	for _, g := range t.QualityGates {
		if t.Results.Gates[g.Name] != GatePassed {
			return false
		}
	}
	return true
}

// DurationMillis is wall time from execution start to completion.
func (t *Task) DurationMillis() int64 {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt).Milliseconds()
}

// DeliverableNames flattens the declared deliverables for event payloads.
func (t *Task) DeliverableNames() []string {
	names := make([]string, 0, len(t.Deliverables))
	for _, d := range t.Deliverables {
		names = append(names, d.Name)
	}
	return names
}

func (t *Task) hasDeliverable(name string) bool {
	for _, d := range t.Deliverables {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (t *Task) hasGate(name string) bool {
	for _, g := range t.QualityGates {
		if g.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand outside the scheduler lock.
func (t *Task) Clone() *Task {
	c := *t
	c.RequiredRoles = append([]string(nil), t.RequiredRoles...)
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Deliverables = append([]Deliverable(nil), t.Deliverables...)
	c.QualityGates = append([]QualityGate(nil), t.QualityGates...)
	c.AssignedAgents = append([]string(nil), t.AssignedAgents...)
	c.Blockers = append([]Blocker(nil), t.Blockers...)
	c.Feedback = append([]string(nil), t.Feedback...)
	c.Results = Results{
		Deliverables: cloneStringMap(t.Results.Deliverables),
		Gates:        cloneStringMap(t.Results.Gates),
	}
	return &c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Definition is the caller-facing shape for creating a task. Zero
// values take scheduler defaults.
type Definition struct {
	ID                string        `yaml:"id,omitempty" json:"id,omitempty"`
	Name              string        `yaml:"name" json:"name"`
	Description       string        `yaml:"description,omitempty" json:"description,omitempty"`
	Type              string        `yaml:"type,omitempty" json:"type,omitempty"`
	Priority          string        `yaml:"priority,omitempty" json:"priority,omitempty"`
	RequiredRoles     []string      `yaml:"required_roles,omitempty" json:"requiredRoles,omitempty"`
	Dependencies      []string      `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Deliverables      []Deliverable `yaml:"deliverables,omitempty" json:"deliverables,omitempty"`
	QualityGates      []QualityGate `yaml:"quality_gates,omitempty" json:"qualityGates,omitempty"`
	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty" json:"estimatedDuration,omitempty"`
	Deadline          time.Time     `yaml:"deadline,omitempty" json:"deadline,omitempty"`
}
