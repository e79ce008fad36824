package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the client's pushes to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Pushes   []TraceEvent // Pushes the asserted client received
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Pushes) > 0 {
		fmt.Fprintf(&buf, "\nPushes received:\n")
		for i, event := range e.Pushes {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, ir.MustMarshalCanonical(event.Frame))
		}
	}

	return buf.String()
}

// checkExpect compares a reply against an expect clause and returns one
// message per mismatch.
func checkExpect(expect *Expect, reply ir.Value) []string {
	var msgs []string
	obj, _ := reply.(ir.Object)

	if got := replyStatus(reply); got != expect.Status {
		msgs = append(msgs, fmt.Sprintf("status: expected %d, got %d", expect.Status, got))
	}

	if expect.Data != nil {
		want, err := ir.FromAny(expect.Data)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("data: %v", err))
		} else if got := valueOrNull(obj, "data"); !subsetMatch(got, want) {
			msgs = append(msgs, fmt.Sprintf("data: expected %s, got %s",
				ir.MustMarshalCanonical(want), ir.MustMarshalCanonical(got)))
		}
	}

	if expect.Errors != nil {
		want, err := ir.FromAny(expect.Errors)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("errors: %v", err))
		} else if got := valueOrNull(obj, "errors"); !ir.Equal(got, want) {
			msgs = append(msgs, fmt.Sprintf("errors: expected %s, got %s",
				ir.MustMarshalCanonical(want), ir.MustMarshalCanonical(got)))
		}
	}

	return msgs
}

// assertPushContains checks the client received a push with the action
// whose data contains the expected fields.
func assertPushContains(result *Result, assertion Assertion) error {
	pushes := result.Pushes(assertion.Client)
	want, err := ir.FromAny(assertion.Data)
	if err != nil {
		return fmt.Errorf("push_contains: data: %w", err)
	}
	for _, event := range pushes {
		if event.Action() == assertion.Action && subsetMatch(event.Data(), want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertPushContains,
		Expected: fmt.Sprintf("%s push to %s with data %s", assertion.Action, assertion.Client, ir.MustMarshalCanonical(want)),
		Actual:   "not found",
		Pushes:   pushes,
	}
}

// assertPushOrder checks the client's pushes carry exactly these actions,
// in this order.
func assertPushOrder(result *Result, assertion Assertion) error {
	pushes := result.Pushes(assertion.Client)
	got := make([]string, len(pushes))
	for i, event := range pushes {
		got[i] = event.Action()
	}

	if !slices.Equal(got, assertion.Actions) {
		return &AssertionError{
			Type:     AssertPushOrder,
			Expected: fmt.Sprintf("pushes to %s: %v", assertion.Client, assertion.Actions),
			Actual:   fmt.Sprintf("%v", got),
			Pushes:   pushes,
		}
	}
	return nil
}

// assertPushCount checks the client received exactly Count pushes with the
// action.
func assertPushCount(result *Result, assertion Assertion) error {
	pushes := result.Pushes(assertion.Client)
	count := 0
	for _, event := range pushes {
		if event.Action() == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertPushCount,
			Expected: fmt.Sprintf("%d %s pushes to %s", assertion.Count, assertion.Action, assertion.Client),
			Actual:   fmt.Sprintf("%d pushes", count),
			Pushes:   pushes,
		}
	}
	return nil
}

// assertFinalState loads the entity and checks the expected attributes
// with subset semantics.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	e, err := st.Get(ctx, assertion.Resource, assertion.ID)
	if errors.Is(err, store.ErrNotFound) {
		if assertion.Absent {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to exist", assertion.Resource, assertion.ID),
			Actual:   "not found",
		}
	}
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	if assertion.Absent {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to be absent", assertion.Resource, assertion.ID),
			Actual:   string(ir.MustMarshalCanonical(e.Attrs)),
		}
	}

	want, err := ir.FromAny(assertion.Expect)
	if err != nil {
		return fmt.Errorf("final_state: expect: %w", err)
	}
	if !subsetMatch(e.Attrs, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s with %s", assertion.Resource, assertion.ID, ir.MustMarshalCanonical(want)),
			Actual:   string(ir.MustMarshalCanonical(e.Attrs)),
		}
	}
	return nil
}

// subsetMatch reports whether actual contains every key of an expected
// object with an equal value. Non-object expectations must match exactly.
// An expected null matches a missing key.
func subsetMatch(actual, expected ir.Value) bool {
	want, ok := expected.(ir.Object)
	if !ok {
		return ir.Equal(actual, expected)
	}
	got, ok := actual.(ir.Object)
	if !ok {
		return false
	}
	for key, v := range want {
		if !ir.Equal(valueOrNull(got, key), v) {
			return false
		}
	}
	return true
}

func valueOrNull(obj ir.Object, key string) ir.Value {
	if v, ok := obj[key]; ok && v != nil {
		return v
	}
	return ir.Null{}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, st *store.Store) []string {
	var msgs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertPushContains:
			err = assertPushContains(result, assertion)
		case AssertPushOrder:
			err = assertPushOrder(result, assertion)
		case AssertPushCount:
			err = assertPushCount(result, assertion)
		case AssertFinalState:
			if st == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a store", i)
			} else {
				err = assertFinalState(ctx, st, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}

	return msgs
}
