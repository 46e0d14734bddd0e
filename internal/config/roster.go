package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSpec declares one portfolio-manager (or chairman) agent.
type AgentSpec struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// Roster is the agent lineup for a cycle, loaded from agents.yaml.
type Roster struct {
	Agents   []AgentSpec `yaml:"agents"`
	Chairman AgentSpec   `yaml:"chairman"`
}

// DefaultRoster is the lineup used when no roster file exists.
func DefaultRoster() *Roster {
	return &Roster{
		Agents: []AgentSpec{
			{Name: "pm_momentum", Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.7},
			{Name: "pm_value", Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.4},
			{Name: "pm_macro", Provider: "deepseek", Model: "deepseek-chat", Temperature: 0.6},
		},
		Chairman: AgentSpec{Name: "chairman", Provider: "deepseek", Model: "deepseek-reasoner", Temperature: 0.2},
	}
}

// LoadRoster reads and validates the roster file; a missing file falls
// back to the default lineup.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRoster(), nil
		}
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}

	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks the lineup is usable: at least two PMs for a meaningful
// peer review, unique names, and complete model references.
func (r *Roster) Validate() error {
	if len(r.Agents) < 2 {
		return fmt.Errorf("need at least 2 agents, have %d", len(r.Agents))
	}
	seen := make(map[string]bool, len(r.Agents))
	for i, a := range r.Agents {
		if a.Name == "" || a.Provider == "" || a.Model == "" {
			return fmt.Errorf("agent %d: name, provider and model are required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
	}
	if r.Chairman.Name == "" || r.Chairman.Provider == "" || r.Chairman.Model == "" {
		return fmt.Errorf("chairman: name, provider and model are required")
	}
	return nil
}
