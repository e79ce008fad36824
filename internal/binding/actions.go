package binding

import (
	"context"
	"strconv"

	"github.com/roach88/bindery/internal/group"
	"github.com/roach88/bindery/internal/ir"
	"github.com/roach88/bindery/internal/paginate"
)

// Standard action names.
const (
	ActionCreate        = "create"
	ActionRetrieve      = "retrieve"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionList          = "list"
	ActionSubscribe     = "subscribe"
	ActionSubscribeAll  = "subscribe_all"
	ActionSubscribeMine = "subscribe_mine"
	ActionUnsubscribe   = "unsubscribe"
)

// Create validates the payload and persists a new entity.
type Create struct{}

func (Create) Name() string { return ActionCreate }
func (Create) Scope() Scope { return Collection }

func (Create) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	attrs, err := b.serializer.FromWire(call.Data, nil)
	if err != nil {
		return nil, 0, err
	}
	e, _, err := b.repo.Create(ctx, b.ids.Generate(), attrs)
	if err != nil {
		return nil, 0, err
	}
	data, err := b.serializer.ToWire(e)
	if err != nil {
		return nil, 0, err
	}
	return data, 201, nil
}

// Retrieve returns one entity.
type Retrieve struct{}

func (Retrieve) Name() string { return ActionRetrieve }
func (Retrieve) Scope() Scope { return Detail }

func (Retrieve) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	e, err := b.lookup(ctx, call.ID)
	if err != nil {
		return nil, 0, err
	}
	data, err := b.serializer.ToWire(e)
	if err != nil {
		return nil, 0, err
	}
	return data, 200, nil
}

// Update merges the payload over an existing entity and persists it.
type Update struct{}

func (Update) Name() string { return ActionUpdate }
func (Update) Scope() Scope { return Detail }

func (Update) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	e, _, err := b.repo.Update(ctx, call.ID, func(current ir.Object) (ir.Object, error) {
		return b.serializer.FromWire(call.Data, current)
	})
	if err != nil {
		return nil, 0, err
	}
	data, err := b.serializer.ToWire(e)
	if err != nil {
		return nil, 0, err
	}
	return data, 200, nil
}

// Delete removes an entity.
type Delete struct{}

func (Delete) Name() string { return ActionDelete }
func (Delete) Scope() Scope { return Detail }

func (Delete) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	if _, err := b.lookup(ctx, call.ID); err != nil {
		return nil, 0, err
	}
	if _, err := b.repo.Delete(ctx, call.ID); err != nil {
		return nil, 0, err
	}
	return ir.Object{}, 200, nil
}

// List returns one page of the filtered collection.
//
// Data keys: "filter" (filter expression, optional) and "page" (1-based,
// integer or numeric string, default 1).
type List struct{}

func (List) Name() string { return ActionList }
func (List) Scope() Scope { return Collection }

func (List) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	filterStr, err := stringParam(call.Data, "filter")
	if err != nil {
		return nil, 0, err
	}
	number, err := pageParam(call.Data)
	if err != nil {
		return nil, 0, err
	}

	cond, err := b.filter.Compile(filterStr)
	if err != nil {
		return nil, 0, err
	}
	qs := b.store.Query(b.spec.Name, b.base.And(cond))

	count, err := qs.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if count == 0 {
		return ir.Object{
			"count":     ir.Int(0),
			"num_pages": ir.Int(0),
			"objects":   ir.Array{},
		}, 200, nil
	}

	page, err := paginate.Paginate(ctx, qs, b.pageSize, number)
	if err != nil {
		return nil, 0, err
	}

	objects := make(ir.Array, 0, len(page.Items))
	for _, e := range page.Items {
		obj, err := b.serializer.ToWire(e)
		if err != nil {
			return nil, 0, err
		}
		objects = append(objects, obj)
	}

	out := ir.Object{
		"count":     ir.Int(page.Count),
		"num_pages": ir.Int(page.NumPages),
		"objects":   objects,
	}
	if page.HasNext {
		out["next_page"] = ir.Int(page.NextPageNumber)
	}
	return out, 200, nil
}

// Subscribe adds the connection to the group watching one existing entity
// for the action named in data["action"].
type Subscribe struct{}

func (Subscribe) Name() string { return ActionSubscribe }
func (Subscribe) Scope() Scope { return Detail }

func (Subscribe) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	// Only existing entities can be watched; an arbitrary pk would name a
	// user group.
	if _, err := b.lookup(ctx, call.ID); err != nil {
		return nil, 0, err
	}
	watched, err := watchedAction(call.Data)
	if err != nil {
		return nil, 0, err
	}
	b.members.Join(ctx, group.Detail(b.spec.Name, watched, call.ID).String(), call.Session.Conn)
	return ir.Object{"action": ir.String(watched)}, 200, nil
}

// SubscribeAll adds the connection to the broadcast group of the resource
// for the action named in data["action"]. Besides the scoped check every
// action gets, the chain must allow the broadcast.
type SubscribeAll struct{}

func (SubscribeAll) Name() string { return ActionSubscribeAll }
func (SubscribeAll) Scope() Scope { return Collection }

func (SubscribeAll) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	watched, err := watchedAction(call.Data)
	if err != nil {
		return nil, 0, err
	}
	if !b.perms.AuthorizeBroadcast(call.Session.User, watched) {
		return nil, 0, PermissionDenied()
	}
	b.members.Join(ctx, group.Broadcast(b.spec.Name, watched).String(), call.Session.Conn)
	return ir.Object{"action": ir.String(watched)}, 200, nil
}

// SubscribeMine adds the connection to the group of events on entities its
// user is interested in, for the action named in data["action"].
type SubscribeMine struct{}

func (SubscribeMine) Name() string { return ActionSubscribeMine }
func (SubscribeMine) Scope() Scope { return Collection }

func (SubscribeMine) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	watched, err := watchedAction(call.Data)
	if err != nil {
		return nil, 0, err
	}
	user := call.Session.User
	if !user.Authenticated || user.Name == "" {
		return nil, 0, PermissionDenied()
	}
	id := group.ID{Resource: b.spec.Name, Action: watched, User: user.Name}
	b.members.Join(ctx, id.String(), call.Session.Conn)
	return ir.Object{"action": ir.String(watched)}, 200, nil
}

// Unsubscribe removes the connection from the group watching one entity.
type Unsubscribe struct{}

func (Unsubscribe) Name() string { return ActionUnsubscribe }
func (Unsubscribe) Scope() Scope { return Detail }

func (Unsubscribe) Handle(ctx context.Context, b *Binding, call Call) (ir.Value, int, error) {
	if _, err := b.lookup(ctx, call.ID); err != nil {
		return nil, 0, err
	}
	watched, err := watchedAction(call.Data)
	if err != nil {
		return nil, 0, err
	}
	b.members.Leave(ctx, group.Detail(b.spec.Name, watched, call.ID).String(), call.Session.Conn)
	return ir.Object{"action": ir.String(watched)}, 200, nil
}

func watchedAction(data ir.Object) (string, error) {
	v, ok := data["action"]
	if !ok {
		return "", NewValidationError(ir.String("action required"))
	}
	s, ok := v.(ir.String)
	if !ok || s == "" {
		return "", fieldError("action", "Not a valid string.")
	}
	return string(s), nil
}

func stringParam(data ir.Object, key string) (string, error) {
	switch v := data[key].(type) {
	case nil, ir.Null:
		return "", nil
	case ir.String:
		return string(v), nil
	default:
		return "", fieldError(key, "Not a valid string.")
	}
}

func pageParam(data ir.Object) (int, error) {
	switch v := data["page"].(type) {
	case nil, ir.Null:
		return 1, nil
	case ir.Int:
		return int(v), nil
	case ir.String:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return 0, NewAPIError(404, DetailInvalidPage)
		}
		return n, nil
	default:
		return 0, NewAPIError(404, DetailInvalidPage)
	}
}
