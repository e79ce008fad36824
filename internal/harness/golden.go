package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/bindery/internal/ir"
)

// Transcript renders a trace one frame per line:
//
//	<kind> <client> <canonical JSON frame>
//
// Frames are canonical JSON, so equal traces always render identically.
func Transcript(trace []TraceEvent) ([]byte, error) {
	var buf bytes.Buffer
	for i, event := range trace {
		frame, err := ir.MarshalCanonical(event.Frame)
		if err != nil {
			return nil, fmt.Errorf("trace[%d]: %w", i, err)
		}
		fmt.Fprintf(&buf, "%s %s %s\n", event.Kind, event.Client, frame)
	}
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the transcript doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already-computed result's transcript against
// the golden file for name.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	transcript, err := Transcript(result.Trace)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, transcript)
	return nil
}
