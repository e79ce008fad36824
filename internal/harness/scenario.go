package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario connects named clients to a set of bindings, sends frames on
// their behalf, and checks the replies, the pushed notifications, and the
// final stored state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE resource files to compile and bind.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Clients declares the connections the scenario drives, by name.
	Clients map[string]Client `yaml:"clients"`

	// Setup steps run before the flow and must all succeed (2xx).
	// They are not recorded in the transcript.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the recorded part of the scenario.
	Flow []Step `yaml:"flow"`

	// Assertions validate pushed frames and final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Client is the identity a connection authenticates as.
type Client struct {
	// User is the user name. Empty means an anonymous connection.
	User  string `yaml:"user,omitempty"`
	Admin bool   `yaml:"admin,omitempty"`
}

// Step sends one frame from one client.
type Step struct {
	// Client names the sending connection.
	Client string `yaml:"client"`

	// Send is the request frame. Numbers must be integers.
	Send map[string]any `yaml:"send,omitempty"`

	// Raw is sent verbatim instead of Send, for malformed-frame cases.
	Raw string `yaml:"raw,omitempty"`

	// Expect checks the reply. If nil, any reply is accepted.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected reply.
type Expect struct {
	// Status is the expected response_status.
	Status int `yaml:"status"`

	// Data is matched as a subset of the reply data when it is an object,
	// and exactly otherwise.
	Data any `yaml:"data,omitempty"`

	// Errors, if present, must equal the reply errors exactly.
	Errors []any `yaml:"errors,omitempty"`
}

// Assertion validates pushed frames or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "push_contains": client received a push with action and data subset
	// - "push_order": client's pushes have exactly these actions, in order
	// - "push_count": client received exactly Count pushes with action
	// - "final_state": stored entity matches Expect, or is absent
	Type string `yaml:"type"`

	// Client names the receiving connection (push_*).
	Client string `yaml:"client,omitempty"`

	// Action is the pushed action (push_contains, push_count).
	Action string `yaml:"action,omitempty"`

	// Data is the expected payload subset (push_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Count is the expected number of pushes (push_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected push sequence (push_order).
	Actions []string `yaml:"actions,omitempty"`

	// Resource and ID select the entity (final_state).
	Resource string `yaml:"resource,omitempty"`
	ID       string `yaml:"id,omitempty"`

	// Expect contains expected attribute values (final_state).
	// Subset match: only listed fields are checked.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts the entity does not exist (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertPushContains = "push_contains"
	AssertPushOrder    = "push_order"
	AssertPushCount    = "push_count"
	AssertFinalState   = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) {
			scenario.Specs[i] = filepath.Join(base, specPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if len(s.Clients) == 0 {
		return fmt.Errorf("clients map is required and must be non-empty")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(s, step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(s, i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(s *Scenario, step Step) error {
	if step.Client == "" {
		return fmt.Errorf("client is required")
	}
	if _, ok := s.Clients[step.Client]; !ok {
		return fmt.Errorf("unknown client %q", step.Client)
	}
	if (step.Send == nil) == (step.Raw == "") {
		return fmt.Errorf("exactly one of send or raw is required")
	}
	if step.Expect != nil && step.Expect.Status == 0 {
		return fmt.Errorf("expect: status is required")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertPushContains, AssertPushOrder, AssertPushCount:
		if _, ok := s.Clients[a.Client]; !ok {
			return fmt.Errorf("assertions[%d]: unknown client %q for %s", index, a.Client, a.Type)
		}
	}

	switch a.Type {
	case AssertPushContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for push_contains", index)
		}
	case AssertPushOrder:
		if a.Actions == nil {
			return fmt.Errorf("assertions[%d]: actions list is required for push_order", index)
		}
	case AssertPushCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for push_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for push_count", index)
		}
	case AssertFinalState:
		if a.Resource == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: resource and id are required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
