package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadInline(t *testing.T, body string) *Scenario {
	t.Helper()
	s, err := LoadScenario(writeScenario(t, body))
	require.NoError(t, err)
	return s
}

func TestRun_RecordsRequestReplyAndPushes(t *testing.T) {
	s := loadInline(t, `
name: watch
description: watcher sees creates
specs: [todo.cue]
clients:
  writer: {user: w}
  watcher: {user: v}
setup:
  - client: watcher
    send: {action: subscribe_all, data: {action: create}}
flow:
  - client: writer
    send: {action: create, data: {title: a}}
    expect: {status: 201, data: {id: "1"}}
assertions:
  - type: push_count
    client: watcher
    action: create
    count: 1
  - type: push_order
    client: writer
    actions: []
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, KindRequest, result.Trace[0].Kind)
	assert.Equal(t, "writer", result.Trace[0].Client)
	assert.Equal(t, KindReply, result.Trace[1].Kind)
	assert.Equal(t, KindPush, result.Trace[2].Kind)
	assert.Equal(t, "watcher", result.Trace[2].Client)
	assert.Equal(t, "create", result.Trace[2].Action())
}

func TestRun_ExpectMismatchFails(t *testing.T) {
	s := loadInline(t, `
name: mismatch
description: wrong expectations are reported
specs: [todo.cue]
clients:
  a: {user: a}
flow:
  - client: a
    send: {action: create, data: {title: a}}
    expect: {status: 200, data: {title: b}, errors: [nope]}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "status: expected 200, got 201")
	assert.Contains(t, result.Errors[1], `data: expected {"title":"b"}`)
	assert.Contains(t, result.Errors[2], `errors: expected ["nope"], got []`)
}

func TestRun_FailingSetupIsAnError(t *testing.T) {
	s := loadInline(t, `
name: bad_setup
description: setup must succeed
specs: [todo.cue]
clients:
  a: {user: a}
setup:
  - client: a
    send: {action: create, data: {}}
flow:
  - client: a
    send: {action: list}
`)

	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup step 0: create failed with status 400")
}

func TestRun_FloatInFrameIsAnError(t *testing.T) {
	s := loadInline(t, `
name: floats
description: floats cannot be sent
specs: [todo.cue]
clients:
  a: {user: a}
flow:
  - client: a
    send: {action: create, data: {title: 1.5}}
`)

	_, err := Run(s)
	assert.ErrorContains(t, err, "floats are not supported")
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	s := loadInline(t, `
name: assertions
description: failed assertions mark the result
specs: [todo.cue]
clients:
  a: {user: a}
flow:
  - client: a
    send: {action: create, data: {title: a}}
assertions:
  - type: push_count
    client: a
    action: create
    count: 1
  - type: final_state
    resource: todo
    id: "1"
    absent: true
  - type: final_state
    resource: todo
    id: "2"
    expect: {title: a}
`)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Assertion failed: push_count")
	assert.Contains(t, result.Errors[1], "todo 1 to be absent")
	assert.Contains(t, result.Errors[2], "todo 2 to exist")
}
