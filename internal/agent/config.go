package agent

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/stagecraft/stagehand/internal/event"
)

// ScalingConfig bounds the autoscaler for one role.
type ScalingConfig struct {
	Min  int  `yaml:"min"`
	Max  int  `yaml:"max"`
	Auto bool `yaml:"auto"`
}

// RoleConfig describes one crew role in the roster.
type RoleConfig struct {
	Role    string         `yaml:"role"`
	Count   int            `yaml:"count"`
	Scaling *ScalingConfig `yaml:"scaling,omitempty"`
}

// Roster is the crew configuration file: which roles exist, how many agents
// of each, and which event hooks run.
type Roster struct {
	Agents []RoleConfig `yaml:"agents"`
	Hooks  []event.Hook `yaml:"hooks,omitempty"`
}

// LoadRoster reads the roster YAML, writing a default file when none
// exists.
func LoadRoster(path string) (*Roster, error) {
	if path == "" {
		path = ".stagehand/roster.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefaultRoster(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	if err := validateRoster(&roster); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}
	return &roster, nil
}

func validateRoster(roster *Roster) error {
	seen := map[string]bool{}
	for _, rc := range roster.Agents {
		if rc.Role == "" {
			return fmt.Errorf("roster entry with empty role")
		}
		if seen[rc.Role] {
			return fmt.Errorf("duplicate roster entry for role %s", rc.Role)
		}
		seen[rc.Role] = true
		if rc.Count < 0 {
			return fmt.Errorf("role %s has negative count", rc.Role)
		}
		if rc.Scaling != nil && rc.Scaling.Min > rc.Scaling.Max {
			return fmt.Errorf("role %s has scaling min > max", rc.Role)
		}
	}
	return nil
}

func createDefaultRoster(path string) (*Roster, error) {
	roster := &Roster{
		Agents: []RoleConfig{
			{Role: "director", Count: 1},
			{Role: "choreographer", Count: 1},
			{Role: "costume_designer", Count: 1},
			{Role: "lighting_designer", Count: 1},
			{Role: "actor", Count: 2, Scaling: &ScalingConfig{Min: 2, Max: 6, Auto: true}},
			{Role: "stagehand", Count: 2, Scaling: &ScalingConfig{Min: 1, Max: 4, Auto: true}},
			{Role: "stage_manager", Count: 1},
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create roster directory: %w", err)
	}
	data, err := yaml.Marshal(roster)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal default roster: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write default roster: %w", err)
	}
	return roster, nil
}
