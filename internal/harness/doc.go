// Package harness runs conformance scenarios against compiled resources.
//
// A scenario binds CUE resource specs, connects named clients, sends
// frames on their behalf, and records every frame that crosses a
// connection. The recorded transcript is compared against a golden file,
// and assertions check pushed notifications and final stored state.
//
// # Scenario Format
//
//	name: todo_watch
//	description: "Owners see updates to their todos"
//	specs:
//	  - ../specs/todo.cue
//	clients:
//	  alice: {user: alice}
//	  root:  {user: root, admin: true}
//	setup:
//	  - client: root
//	    send: {stream: todo, action: create, data: {title: a, owner: alice}}
//	flow:
//	  - client: alice
//	    send: {stream: todo, action: subscribe, pk: "1", data: {action: update}}
//	    expect: {status: 200}
//	  - client: alice
//	    raw: '{nope'
//	    expect: {status: 400, errors: [Malformed Request]}
//	assertions:
//	  - type: push_count
//	    client: alice
//	    action: update
//	    count: 1
//	  - type: final_state
//	    resource: todo
//	    id: "1"
//	    expect: {title: b}
//
// # Assertion Types
//
//   - push_contains: the client received a push with the action and data subset
//   - push_order: the client's pushes carry exactly these actions, in order
//   - push_count: the client received exactly N pushes with the action
//   - final_state: the stored entity has the expected attributes, or is absent
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store. Entity ids are
// assigned sequentially across resources, and pushes are recorded grouped
// by client name, so transcripts are reproducible.
package harness
