package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of reaction operations.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario demonstrates.
	Description string `yaml:"description"`

	// Posts are created before the first step. Steps without a post use Posts[0].
	Posts []string `yaml:"posts"`

	Steps []Step `yaml:"steps"`

	// Expect holds the final state to verify, keyed by post ID.
	Expect map[string]PostExpectation `yaml:"expect,omitempty"`
}

// Step is one operation.
type Step struct {
	Post  string `yaml:"post,omitempty"`
	User  string `yaml:"user,omitempty"`
	React string `yaml:"react,omitempty"`
	Label string `yaml:"label,omitempty"`

	Remove   bool   `yaml:"remove,omitempty"`
	Recount  bool   `yaml:"recount,omitempty"`
	SetCount *int64 `yaml:"set_count,omitempty"`

	ExpectCount *int64 `yaml:"expect_count,omitempty"`
	ExpectError string `yaml:"expect_error,omitempty"`
}

// PostExpectation is the expected final state of one post.
type PostExpectation struct {
	Count     int64             `yaml:"count"`
	Reactions map[string]string `yaml:"reactions"` // user -> kind
}

// Operation names used in traces.
const (
	OpReact    = "react"
	OpRemove   = "remove"
	OpRecount  = "recount"
	OpSetCount = "set_count"
)

// op returns the operation a step performs, or "" if it names none or several.
func (s Step) op() string {
	var ops []string
	if s.React != "" {
		ops = append(ops, OpReact)
	}
	if s.Remove {
		ops = append(ops, OpRemove)
	}
	if s.Recount {
		ops = append(ops, OpRecount)
	}
	if s.SetCount != nil {
		ops = append(ops, OpSetCount)
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// Load reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario with strict field checking.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

func validate(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(sc.Posts) == 0 {
		return fmt.Errorf("posts list is required and must be non-empty")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range sc.Steps {
		op := step.op()
		if op == "" {
			return fmt.Errorf("steps[%d]: exactly one of react, remove, recount, set_count is required", i)
		}
		if (op == OpReact || op == OpRemove) && step.User == "" {
			return fmt.Errorf("steps[%d]: user is required for %s", i, op)
		}
		if step.SetCount != nil && *step.SetCount < 0 {
			return fmt.Errorf("steps[%d]: set_count must not be negative", i)
		}
	}
	return nil
}
